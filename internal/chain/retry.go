package chain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// retryRPC runs fn until it succeeds, doubling the delay between attempts.
// Every failed attempt is logged with op.
func retryRPC(ctx context.Context, cfg PollConfig, logger *zap.Logger, op string, fn func(context.Context) error) error {
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := cfg.RetryBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		logger.Warn(op+" failed", zap.Error(err), zap.Int("attempt", attempt))
		if attempt >= maxRetries {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
