package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"bloomsync/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStore writes through to a durable primary and degrades to the
// fallback when the primary stops accepting writes. Because WriteAll always
// carries the full queue, a single successful primary write after recovery
// fully resynchronizes it.
type FailoverStore struct {
	primary   Store
	fallback  Store
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

const recoveryInterval = time.Minute

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Degraded reports whether writes are currently landing on the fallback only.
func (s *FailoverStore) Degraded() bool {
	return s.isDown.Load()
}

func (s *FailoverStore) ReadAll(ctx context.Context) ([]models.PendingMutation, error) {
	if !s.isDown.Load() {
		items, err := s.primary.ReadAll(ctx)
		if err == nil {
			return items, nil
		}
		s.logger.Error().Err(err).Msg("Primary store failed, falling back to memory")
		s.markDown()
	}
	return s.fallback.ReadAll(ctx)
}

func (s *FailoverStore) WriteAll(ctx context.Context, items []models.PendingMutation) error {
	if !s.isDown.Load() {
		err := s.primary.WriteAll(ctx, items)
		if err == nil {
			return s.fallback.WriteAll(ctx, items)
		}
		s.logger.Error().Err(err).Msg("Primary store failed, falling back to memory")
		s.markDown()
		return s.fallback.WriteAll(ctx, items)
	}

	// Try to recover after a minute; success re-syncs the whole queue.
	if s.shouldRecheck() {
		if err := s.primary.WriteAll(ctx, items); err == nil {
			s.isDown.Store(false)
			s.logger.Info().Msg("Primary store recovered")
		}
	}

	return s.fallback.WriteAll(ctx, items)
}

func (s *FailoverStore) markDown() {
	s.isDown.Store(true)
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) shouldRecheck() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) < recoveryInterval {
		return false
	}
	s.lastCheck = time.Now()
	return true
}

func (s *FailoverStore) Close() error {
	if err := s.primary.Close(); err != nil {
		return err
	}
	return s.fallback.Close()
}
