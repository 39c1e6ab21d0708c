package store

import (
	"context"
	"errors"
	"io"
	"testing"

	"bloomsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails writes on demand.
type flakyStore struct {
	inner    Store
	failNext bool
	writes   int
}

func (f *flakyStore) ReadAll(ctx context.Context) ([]models.PendingMutation, error) {
	if f.failNext {
		return nil, errors.New("disk full")
	}
	return f.inner.ReadAll(ctx)
}

func (f *flakyStore) WriteAll(ctx context.Context, items []models.PendingMutation) error {
	f.writes++
	if f.failNext {
		return errors.New("disk full")
	}
	return f.inner.WriteAll(ctx, items)
}

func (f *flakyStore) Close() error { return nil }

func TestFailoverStore(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	t.Run("HealthyPrimary", func(t *testing.T) {
		primary := &flakyStore{inner: NewMemoryStore()}
		fs := NewFailoverStore(primary, NewMemoryStore(), &logger)

		want := testMutations(t, 2)
		require.NoError(t, fs.WriteAll(ctx, want))
		assert.False(t, fs.Degraded())

		got, err := fs.ReadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("DegradesOnWriteFailure", func(t *testing.T) {
		primary := &flakyStore{inner: NewMemoryStore(), failNext: true}
		fallback := NewMemoryStore()
		fs := NewFailoverStore(primary, fallback, &logger)

		want := testMutations(t, 1)
		require.NoError(t, fs.WriteAll(ctx, want), "write must succeed via fallback")
		assert.True(t, fs.Degraded())

		got, err := fallback.ReadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)

		// Reads serve the fallback while degraded.
		got, err = fs.ReadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("NoPrimaryRetryInsideRecoveryWindow", func(t *testing.T) {
		primary := &flakyStore{inner: NewMemoryStore(), failNext: true}
		fs := NewFailoverStore(primary, NewMemoryStore(), &logger)

		require.NoError(t, fs.WriteAll(ctx, testMutations(t, 1)))
		writesAfterDegrade := primary.writes

		require.NoError(t, fs.WriteAll(ctx, testMutations(t, 1)))
		assert.Equal(t, writesAfterDegrade, primary.writes, "degraded store must not hammer the primary")
	})
}
