package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bloomsync/internal/models"
)

// FileStore keeps the queue as a single JSON file. Writes go through a
// temp file and rename so a crash mid-write never truncates the store.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) ReadAll(ctx context.Context) ([]models.PendingMutation, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var items []models.PendingMutation
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to decode store file: %w", err)
	}
	return items, nil
}

func (s *FileStore) WriteAll(ctx context.Context, items []models.PendingMutation) error {
	if items == nil {
		items = []models.PendingMutation{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode mutations: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}
