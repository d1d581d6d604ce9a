package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"eventListener/internal/model"
)

// ErrClosed is returned by Update after Close.
var ErrClosed = errors.New("listener closed")

// Inputs selects the event to follow. Any change to these fields starts a
// fresh subscription with an empty event list.
type Inputs struct {
	Contracts    *Registry
	ContractName string
	EventName    string
	Provider     Provider
	StartBlock   uint64
}

func (in Inputs) sameIdentity(other Inputs) bool {
	return in.Contracts == other.Contracts &&
		in.ContractName == other.ContractName &&
		in.EventName == other.EventName &&
		in.Provider == other.Provider &&
		in.StartBlock == other.StartBlock
}

// activation is one subscription for a fixed set of inputs. It owns its
// accumulator and is registered on the contract as the event handler.
type activation struct {
	owner   *Listener
	inputs  Inputs
	acc     *Accumulator
	cleanup func()
}

func (a *activation) HandleEvent(_ []interface{}, ev *model.EventRecord) {
	if ev == nil {
		return
	}
	a.owner.ingest(a, *ev)
}

// Listener keeps the deduplicated list of one contract event up to date for
// as long as it is open.
type Listener struct {
	logger *zap.Logger

	// lifecycle serializes Update and Close.
	lifecycle sync.Mutex

	mu      sync.Mutex
	current *activation
	closed  bool
	changes chan struct{}
}

func New(logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		logger:  logger,
		changes: make(chan struct{}, 1),
	}
}

// Update activates the listener for in. When in identifies the same
// subscription as the current one nothing happens; otherwise the current
// subscription is removed before the new one is set up.
//
// A provider error aborts the activation and is returned; the listener is
// left inactive so a later Update with the same inputs retries. A contract
// that rejects the handler is logged and leaves the listener active with no
// events.
func (l *Listener) Update(ctx context.Context, in Inputs) error {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	closed, cur := l.closed, l.current
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if cur != nil && cur.inputs.sameIdentity(in) {
		return nil
	}

	l.deactivate()
	return l.activate(ctx, in)
}

func (l *Listener) activate(ctx context.Context, in Inputs) error {
	if in.Provider != nil {
		if err := in.Provider.ResetEventsBlock(ctx, in.StartBlock); err != nil {
			return fmt.Errorf("reset events block %d: %w", in.StartBlock, err)
		}
	}

	act := &activation{owner: l, inputs: in, acc: NewAccumulator()}
	l.mu.Lock()
	l.current = act
	l.mu.Unlock()

	contract, ok := in.Contracts.Lookup(in.ContractName)
	if !ok {
		return nil
	}
	if err := contract.On(in.EventName, act); err != nil {
		l.logger.Warn("register event listener failed",
			zap.Error(err),
			zap.String("contract", in.ContractName),
			zap.String("event", in.EventName),
		)
		return nil
	}
	act.cleanup = func() {
		contract.Off(in.EventName, act)
	}

	l.logger.Debug("event listener registered",
		zap.String("contract", in.ContractName),
		zap.String("event", in.EventName),
		zap.Uint64("start_block", in.StartBlock),
	)
	return nil
}

// deactivate detaches the current activation before removing its handler so
// deliveries racing with Off are dropped.
func (l *Listener) deactivate() {
	l.mu.Lock()
	act := l.current
	l.current = nil
	if act != nil && act.acc.Len() > 0 {
		l.notifyLocked()
	}
	l.mu.Unlock()

	if act != nil && act.cleanup != nil {
		act.cleanup()
	}
}

func (l *Listener) ingest(act *activation, rec model.EventRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != act {
		return
	}
	if act.acc.Add(rec) {
		l.notifyLocked()
	}
}

func (l *Listener) notifyLocked() {
	if l.closed {
		return
	}
	select {
	case l.changes <- struct{}{}:
	default:
	}
}

// Events returns the current events in first-seen order. The returned slice
// is replaced, never modified, when events arrive; callers must not modify it.
func (l *Listener) Events() []model.EventRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return nil
	}
	return l.current.acc.Events()
}

// Changes signals after the event list changed. Signals are coalesced; read
// Events to get the latest list. The channel is closed by Close.
func (l *Listener) Changes() <-chan struct{} {
	return l.changes
}

// Close removes the subscription and discards the accumulated events.
func (l *Listener) Close() {
	l.lifecycle.Lock()
	defer l.lifecycle.Unlock()

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}

	l.deactivate()

	l.mu.Lock()
	l.closed = true
	close(l.changes)
	l.mu.Unlock()
}
