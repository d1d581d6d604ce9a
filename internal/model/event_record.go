package model

import (
	"encoding/json"
	"strconv"
)

// EventRecord is a decoded contract event as delivered to listeners.
type EventRecord struct {
	Event       string                 `json:"event"`
	Contract    string                 `json:"contract,omitempty"`
	Address     string                 `json:"address"`
	BlockNumber uint64                 `json:"block_number"`
	BlockHash   string                 `json:"block_hash"`
	TxHash      string                 `json:"transaction_hash"`
	TxIndex     uint64                 `json:"transaction_index"`
	LogIndex    *uint64                `json:"log_index,omitempty"`
	Topics      []string               `json:"topics,omitempty"`
	Data        string                 `json:"data,omitempty"`
	Args        map[string]interface{} `json:"args,omitempty"`
	Removed     bool                   `json:"removed"`
}

// EventHandler receives events from a contract binding. indexed holds the
// decoded indexed arguments in ABI order; ev is nil when the binding had no
// payload to deliver.
type EventHandler interface {
	HandleEvent(indexed []interface{}, ev *EventRecord)
}

// EventKey builds the identity key of an event occurrence.
func EventKey(txHash string, logIndex uint64) string {
	return txHash + "_" + strconv.FormatUint(logIndex, 10)
}

// Key returns the identity key of the record and whether the record carries
// the event name, log index and transaction hash needed to build it.
func (r EventRecord) Key() (string, bool) {
	if r.Event == "" || r.LogIndex == nil || r.TxHash == "" {
		return "", false
	}
	return EventKey(r.TxHash, *r.LogIndex), true
}

// Uint64 returns a pointer to v, for filling optional fields.
func Uint64(v uint64) *uint64 {
	return &v
}

// MarshalJSON ensures EventRecord is encoded with stable field names.
func (r EventRecord) MarshalJSON() ([]byte, error) {
	type Alias EventRecord
	return json.Marshal(Alias(r))
}
