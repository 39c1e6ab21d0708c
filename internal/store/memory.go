package store

import (
	"context"
	"sync"

	"bloomsync/internal/models"
)

// MemoryStore holds the queue in process memory only. Used in tests and as
// the degraded-mode fallback when a durable store stops accepting writes.
type MemoryStore struct {
	mu    sync.RWMutex
	items []models.PendingMutation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ReadAll(ctx context.Context) ([]models.PendingMutation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PendingMutation, len(s.items))
	copy(out, s.items)
	return out, nil
}

func (s *MemoryStore) WriteAll(ctx context.Context, items []models.PendingMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]models.PendingMutation, len(items))
	copy(s.items, items)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
