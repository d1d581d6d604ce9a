package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// PollConfig holds scan settings for the provider.
type PollConfig struct {
	Interval     time.Duration
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Provider polls a node for logs of attached contracts and hands them to the
// contracts in chain order. The scan cursor is the next block to fetch.
type Provider struct {
	source LogSource
	cfg    PollConfig
	logger *zap.Logger

	// pollMu serializes Poll.
	pollMu sync.Mutex

	mu        sync.Mutex
	cursor    uint64
	hasCursor bool
	epoch     uint64
	contracts map[*Contract]struct{}
}

func NewProvider(source LogSource, cfg PollConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 4 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2000
	}
	return &Provider{
		source:    source,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "provider")),
		contracts: make(map[*Contract]struct{}),
	}
}

// ResetEventsBlock moves the scan cursor to block so the next poll replays
// events from there. It fails when the head cannot be read or block is past it.
func (p *Provider) ResetEventsBlock(ctx context.Context, block uint64) error {
	head, err := p.source.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if block > head {
		return fmt.Errorf("start block %d is beyond head %d", block, head)
	}

	p.mu.Lock()
	p.cursor = block
	p.hasCursor = true
	p.epoch++
	p.mu.Unlock()

	p.logger.Info("reset events block", zap.Uint64("block", block), zap.Uint64("head", head))
	return nil
}

// Cursor returns the next block to scan and whether it has been set.
func (p *Provider) Cursor() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor, p.hasCursor
}

func (p *Provider) attach(c *Contract) {
	p.mu.Lock()
	p.contracts[c] = struct{}{}
	p.mu.Unlock()
}

func (p *Provider) detach(c *Contract) {
	p.mu.Lock()
	delete(p.contracts, c)
	p.mu.Unlock()
}

func (p *Provider) epochChanged(epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch != epoch
}

// Run polls on the configured interval until ctx is done. Poll errors are
// logged and retried on the next tick.
func (p *Provider) Run(ctx context.Context) error {
	p.logger.Info("start polling", zap.Duration("interval", p.cfg.Interval))

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll scans from the cursor to the current head once. Without attached
// contracts the cursor stays put so a later subscriber still sees the range.
func (p *Provider) Poll(ctx context.Context) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	var head uint64
	err := retryRPC(ctx, p.cfg, p.logger, "get latest block", func(ctx context.Context) error {
		var err error
		head, err = p.source.LatestBlockNumber(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}

	p.mu.Lock()
	if !p.hasCursor {
		p.cursor = head
		p.hasCursor = true
	}
	from, epoch := p.cursor, p.epoch
	contracts := make(map[common.Address][]*Contract, len(p.contracts))
	for c := range p.contracts {
		contracts[c.Address()] = append(contracts[c.Address()], c)
	}
	p.mu.Unlock()

	if from > head || len(contracts) == 0 {
		return nil
	}

	addresses := make([]common.Address, 0, len(contracts))
	topicSet := make(map[common.Hash]struct{})
	for addr, bound := range contracts {
		addresses = append(addresses, addr)
		for _, c := range bound {
			for _, topic := range c.topics() {
				topicSet[topic] = struct{}{}
			}
		}
	}
	topic0 := make([]common.Hash, 0, len(topicSet))
	for topic := range topicSet {
		topic0 = append(topic0, topic)
	}

	ranges, err := SplitRange(from, head, p.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var logs []types.Log
		err := retryRPC(ctx, p.cfg, p.logger, "filter logs", func(ctx context.Context) error {
			var err error
			logs, err = p.source.FilterLogs(ctx, blockRange.From, blockRange.To, addresses, topic0)
			return err
		})
		if err != nil {
			return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		if p.epochChanged(epoch) {
			p.logger.Debug("cursor reset during poll", zap.Uint64("from", blockRange.From))
			return nil
		}
		for _, log := range logs {
			for _, c := range contracts[log.Address] {
				c.dispatch(log)
			}
		}

		p.mu.Lock()
		if p.epoch != epoch {
			p.mu.Unlock()
			p.logger.Debug("cursor reset during poll", zap.Uint64("to", blockRange.To))
			return nil
		}
		p.cursor = blockRange.To + 1
		p.mu.Unlock()

		p.logger.Debug("scanned range",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Int("logs", len(logs)),
		)
	}

	return nil
}
