package store

import (
	"context"

	"bloomsync/internal/models"
)

// Store is the durable backing for the mutation queue. The queue is the only
// writer; readers outside the queue must go through the queue's snapshot.
// WriteAll replaces the full contents (queue sizes are expected to stay
// small, so whole-list overwrite keeps the store trivially consistent with
// the in-memory list).
type Store interface {
	ReadAll(ctx context.Context) ([]models.PendingMutation, error)
	WriteAll(ctx context.Context, items []models.PendingMutation) error
	Close() error
}
