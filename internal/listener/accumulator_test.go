package listener

import (
	"reflect"
	"testing"

	"eventListener/internal/model"
)

func ping(txHash string, logIndex uint64, value int) model.EventRecord {
	return model.EventRecord{
		Event:    "Ping",
		TxHash:   txHash,
		LogIndex: model.Uint64(logIndex),
		Args:     map[string]interface{}{"value": value},
	}
}

func TestAccumulatorOverwriteKeepsOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(ping("0xA", 0, 1))
	acc.Add(ping("0xA", 0, 2))
	acc.Add(ping("0xB", 0, 3))

	want := []model.EventRecord{ping("0xA", 0, 2), ping("0xB", 0, 3)}
	if got := acc.Events(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events mismatch: %+v != %+v", got, want)
	}
}

func TestAccumulatorFirstSeenOrder(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(ping("0xC", 1, 1))
	acc.Add(ping("0xA", 0, 1))
	acc.Add(ping("0xB", 5, 1))
	acc.Add(ping("0xC", 1, 9))
	acc.Add(ping("0xA", 0, 7))

	got := acc.Events()
	keys := make([]string, 0, len(got))
	for _, ev := range got {
		key, _ := ev.Key()
		keys = append(keys, key)
	}
	want := []string{"0xC_1", "0xA_0", "0xB_5"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("order mismatch: %v != %v", keys, want)
	}
	if got[0].Args["value"] != 9 || got[1].Args["value"] != 7 {
		t.Fatalf("latest records not kept: %+v", got)
	}
}

func TestAccumulatorDistinctLogIndexSameTx(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(ping("0xA", 0, 1))
	acc.Add(ping("0xA", 1, 1))
	if acc.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", acc.Len())
	}
}

func TestAccumulatorIgnoresIncompleteRecords(t *testing.T) {
	acc := NewAccumulator()
	noIndex := ping("0xA", 0, 1)
	noIndex.LogIndex = nil
	noHash := ping("", 0, 1)
	noName := ping("0xA", 0, 1)
	noName.Event = ""

	for _, rec := range []model.EventRecord{noIndex, noHash, noName} {
		if acc.Add(rec) {
			t.Fatalf("expected incomplete record to be ignored: %+v", rec)
		}
	}
	if acc.Len() != 0 || acc.Version() != 0 {
		t.Fatalf("state changed: len=%d version=%d", acc.Len(), acc.Version())
	}
}

func TestAccumulatorRedeliveryIsNotAChange(t *testing.T) {
	acc := NewAccumulator()
	if !acc.Add(ping("0xA", 0, 1)) {
		t.Fatalf("first add should change state")
	}
	first := acc.Events()

	if acc.Add(ping("0xA", 0, 1)) {
		t.Fatalf("identical redelivery should not change state")
	}
	if acc.Version() != 1 {
		t.Fatalf("version mismatch: %d", acc.Version())
	}
	second := acc.Events()
	if &first[0] != &second[0] {
		t.Fatalf("events recomputed without a change")
	}

	acc.Add(ping("0xA", 0, 2))
	third := acc.Events()
	if &first[0] == &third[0] {
		t.Fatalf("events not recomputed after a change")
	}
	if first[0].Args["value"] != 1 {
		t.Fatalf("earlier snapshot was mutated: %+v", first[0])
	}
}

func TestAccumulatorEmptyEvents(t *testing.T) {
	acc := NewAccumulator()
	if got := acc.Events(); len(got) != 0 {
		t.Fatalf("expected no events, got %+v", got)
	}
}
