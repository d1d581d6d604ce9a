package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"eventListener/internal/model"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var row map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		out = append(out, row)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJsonlStorageReplacesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	store := NewJsonlStorage(path)
	ctx := context.Background()

	first := []model.EventRecord{
		{Event: "Ping", TxHash: "0xA", LogIndex: model.Uint64(0)},
		{Event: "Ping", TxHash: "0xB", LogIndex: model.Uint64(1)},
	}
	if err := store.PutEvents(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	if rows := readLines(t, path); len(rows) != 2 || rows[1]["transaction_hash"] != "0xB" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	second := first[:1]
	if err := store.PutEvents(ctx, second); err != nil {
		t.Fatalf("put: %v", err)
	}
	if rows := readLines(t, path); len(rows) != 1 {
		t.Fatalf("snapshot not replaced: %+v", rows)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
}

func TestJsonlStorageEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	store := NewJsonlStorage(path)
	if err := store.PutEvents(context.Background(), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected empty file, got %d bytes", info.Size())
	}
}

func TestJsonlStorageFailedWriteKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	store := NewJsonlStorage(path)
	ctx := context.Background()

	good := []model.EventRecord{{Event: "Ping", TxHash: "0xA", LogIndex: model.Uint64(0)}}
	if err := store.PutEvents(ctx, good); err != nil {
		t.Fatalf("put: %v", err)
	}

	bad := []model.EventRecord{{
		Event:    "Ping",
		TxHash:   "0xB",
		LogIndex: model.Uint64(0),
		Args:     map[string]interface{}{"value": make(chan int)},
	}}
	if err := store.PutEvents(ctx, bad); err == nil {
		t.Fatalf("expected marshal error")
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temporary file left behind: %v", err)
	}
	if rows := readLines(t, path); len(rows) != 1 || rows[0]["transaction_hash"] != "0xA" {
		t.Fatalf("previous snapshot lost: %+v", rows)
	}
}
