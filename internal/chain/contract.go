package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"eventListener/internal/model"
)

// ErrDisposed is returned when registering on a disposed contract.
var ErrDisposed = errors.New("contract disposed")

// Contract is an ABI binding at one address that delivers decoded events to
// registered handlers. Logs are fed to it by a Provider.
type Contract struct {
	name     string
	address  common.Address
	abi      abi.ABI
	provider *Provider
	logger   *zap.Logger

	mu       sync.RWMutex
	handlers map[string][]model.EventHandler
	disposed bool
}

func NewContract(name string, address common.Address, contractABI abi.ABI, provider *Provider, logger *zap.Logger) *Contract {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Contract{
		name:     name,
		address:  address,
		abi:      contractABI,
		provider: provider,
		logger:   logger.With(zap.String("contract", name), zap.String("address", address.Hex())),
		handlers: make(map[string][]model.EventHandler),
	}
}

func (c *Contract) Name() string {
	return c.name
}

func (c *Contract) Address() common.Address {
	return c.address
}

// On registers h for the named ABI event.
func (c *Contract) On(event string, h model.EventHandler) error {
	if h == nil {
		return fmt.Errorf("nil handler for event %s", event)
	}
	if _, ok := c.abi.Events[event]; !ok {
		return fmt.Errorf("event %s not found in %s abi", event, c.name)
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return ErrDisposed
	}
	c.handlers[event] = append(c.handlers[event], h)
	c.mu.Unlock()

	if c.provider != nil {
		c.provider.attach(c)
	}
	return nil
}

// Off removes one registration of h for event. Unknown pairs are ignored.
func (c *Contract) Off(event string, h model.EventHandler) {
	c.mu.Lock()
	handlers := c.handlers[event]
	for i, existing := range handlers {
		if existing == h {
			handlers = append(handlers[:i:i], handlers[i+1:]...)
			break
		}
	}
	if len(handlers) == 0 {
		delete(c.handlers, event)
	} else {
		c.handlers[event] = handlers
	}
	idle := len(c.handlers) == 0
	c.mu.Unlock()

	if idle && c.provider != nil {
		c.provider.detach(c)
	}
}

// Dispose drops every handler and rejects further registrations.
func (c *Contract) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.handlers = make(map[string][]model.EventHandler)
	c.mu.Unlock()

	if c.provider != nil {
		c.provider.detach(c)
	}
}

// topics returns the signatures of events with at least one handler.
func (c *Contract) topics() []common.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]common.Hash, 0, len(c.handlers))
	for event := range c.handlers {
		out = append(out, c.abi.Events[event].ID)
	}
	return out
}

func (c *Contract) dispatch(log types.Log) {
	if len(log.Topics) == 0 {
		return
	}
	event, err := c.abi.EventByID(log.Topics[0])
	if err != nil {
		return
	}

	c.mu.RLock()
	handlers := append([]model.EventHandler(nil), c.handlers[event.Name]...)
	c.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	// Handlers never share decoded values.
	for _, h := range handlers {
		indexed, args, err := decodeEventLog(*event, log)
		if err != nil {
			c.logger.Warn("decode event log failed",
				zap.Error(err),
				zap.String("event", event.Name),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
			)
			return
		}
		rec := buildEventRecord(c.name, event.Name, log, args)
		h.HandleEvent(indexed, &rec)
	}
}

// decodeEventLog returns the indexed arguments in ABI order and all
// arguments by name.
func decodeEventLog(event abi.Event, log types.Log) ([]interface{}, map[string]interface{}, error) {
	args := make(map[string]interface{}, len(event.Inputs))
	if err := event.Inputs.NonIndexed().UnpackIntoMap(args, log.Data); err != nil {
		return nil, nil, fmt.Errorf("unpack data: %w", err)
	}

	var indexedArgs abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexedArgs = append(indexedArgs, input)
		}
	}
	if err := abi.ParseTopicsIntoMap(args, indexedArgs, log.Topics[1:]); err != nil {
		return nil, nil, fmt.Errorf("parse topics: %w", err)
	}

	indexed := make([]interface{}, 0, len(indexedArgs))
	for _, input := range indexedArgs {
		indexed = append(indexed, args[input.Name])
	}
	return indexed, args, nil
}
