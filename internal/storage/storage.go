package storage

import (
	"context"

	"eventListener/internal/model"
)

// Storage defines a sink for event snapshots.
type Storage interface {
	PutEvents(ctx context.Context, events []model.EventRecord) error
}
