package listener

import (
	"context"
	"sort"
	"sync"

	"eventListener/internal/model"
)

// Contract is an event source bound to one on-chain program.
type Contract interface {
	On(event string, h model.EventHandler) error
	Off(event string, h model.EventHandler)
}

// Provider controls where historical event scanning starts. Implementations
// must be comparable (pointer receivers) so listeners can detect a swap.
type Provider interface {
	ResetEventsBlock(ctx context.Context, block uint64) error
}

// Registry maps logical contract names to loaded contracts.
type Registry struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

func NewRegistry() *Registry {
	return &Registry{contracts: make(map[string]Contract)}
}

// Register stores c under name, replacing any previous contract.
func (r *Registry) Register(name string, c Contract) {
	r.mu.Lock()
	r.contracts[name] = c
	r.mu.Unlock()
}

// Lookup returns the contract registered under name. A nil registry has no
// contracts.
func (r *Registry) Lookup(name string) (Contract, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	c, ok := r.contracts[name]
	r.mu.RUnlock()
	if !ok || c == nil {
		return nil, false
	}
	return c, true
}

// Names returns the registered contract names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.contracts))
	for name := range r.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
