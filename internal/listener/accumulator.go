package listener

import (
	"bytes"
	"encoding/json"

	"eventListener/internal/model"
)

// eventState is an immutable snapshot of accumulated events. Keys keep the
// order in which they were first seen.
type eventState struct {
	keys  []string
	byKey map[string]model.EventRecord
}

func (s *eventState) with(key string, rec model.EventRecord) *eventState {
	next := &eventState{
		keys:  s.keys,
		byKey: make(map[string]model.EventRecord, len(s.byKey)+1),
	}
	for k, v := range s.byKey {
		next.byKey[k] = v
	}
	if _, ok := s.byKey[key]; !ok {
		next.keys = make([]string, len(s.keys), len(s.keys)+1)
		copy(next.keys, s.keys)
		next.keys = append(next.keys, key)
	}
	next.byKey[key] = rec
	return next
}

// Accumulator folds events into a deduplicated, insertion-ordered list keyed
// by transaction hash and log index. It is not safe for concurrent use.
type Accumulator struct {
	state   *eventState
	version uint64

	cached        []model.EventRecord
	cachedVersion uint64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		state: &eventState{byKey: map[string]model.EventRecord{}},
	}
}

// Add stores rec under its key, replacing any earlier record with the same
// key. It reports whether the accumulated list changed; records without
// identity fields are ignored.
func (a *Accumulator) Add(rec model.EventRecord) bool {
	key, ok := rec.Key()
	if !ok {
		return false
	}
	if prev, exists := a.state.byKey[key]; exists && sameRecord(prev, rec) {
		return false
	}

	a.state = a.state.with(key, rec)
	a.version++
	return true
}

// Events returns the accumulated records in first-seen order. The slice is
// shared between calls until the next change and must not be modified.
func (a *Accumulator) Events() []model.EventRecord {
	if a.cached != nil && a.cachedVersion == a.version {
		return a.cached
	}

	events := make([]model.EventRecord, 0, len(a.state.keys))
	for _, key := range a.state.keys {
		events = append(events, a.state.byKey[key])
	}
	a.cached = events
	a.cachedVersion = a.version
	return events
}

// Len returns the number of distinct events.
func (a *Accumulator) Len() int {
	return len(a.state.keys)
}

// Version increases by one on every change.
func (a *Accumulator) Version() uint64 {
	return a.version
}

func sameRecord(a, b model.EventRecord) bool {
	left, err := json.Marshal(a)
	if err != nil {
		return false
	}
	right, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(left, right)
}
