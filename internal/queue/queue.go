package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bloomsync/internal/events"
	"bloomsync/internal/metrics"
	"bloomsync/internal/models"
	"bloomsync/internal/remote"
	"bloomsync/internal/store"

	"github.com/rs/zerolog"
)

// Connectivity is the trigger source for automatic drains.
type Connectivity interface {
	IsOnline() bool
	Subscribe(fn func(online bool)) func()
}

// Options tunes a Queue. Zero values get sensible defaults.
type Options struct {
	Policy        RetryPolicy
	ItemTimeout   time.Duration
	DrainInterval time.Duration
	Bus           *events.EventBus
	Logger        *zerolog.Logger
}

// Queue buffers user writes while the backend is unreachable and replays
// them in enqueue order once it is. The in-memory list is the source of
// truth for the session; the store trails it by at most one write, never
// leads it.
type Queue struct {
	store         store.Store
	remote        remote.Applier
	conn          Connectivity
	bus           *events.EventBus
	policy        RetryPolicy
	itemTimeout   time.Duration
	drainInterval time.Duration
	logger        zerolog.Logger

	mu            sync.Mutex
	items         []models.PendingMutation
	draining      bool
	lastSyncedAt  *time.Time
	lastErrors    []string
	persistBroken bool
}

type degradable interface {
	Degraded() bool
}

// New constructs a queue and loads any mutations persisted by a previous
// session. Collaborators are injected; the queue owns none of them except
// the store contents.
func New(ctx context.Context, st store.Store, applier remote.Applier, conn Connectivity, opts Options) (*Queue, error) {
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy.MaxAttempts = 8
	}
	if opts.Policy.InitialDelay == 0 {
		opts.Policy.InitialDelay = 2 * time.Second
	}
	if opts.Policy.MaxDelay == 0 {
		opts.Policy.MaxDelay = 5 * time.Minute
	}
	if opts.Policy.BackoffFactor == 0 {
		opts.Policy.BackoffFactor = 2
	}
	if opts.ItemTimeout == 0 {
		opts.ItemTimeout = 10 * time.Second
	}
	if opts.DrainInterval == 0 {
		opts.DrainInterval = 30 * time.Second
	}

	q := &Queue{
		store:         st,
		remote:        applier,
		conn:          conn,
		bus:           opts.Bus,
		policy:        opts.Policy,
		itemTimeout:   opts.ItemTimeout,
		drainInterval: opts.DrainInterval,
	}
	if opts.Logger != nil {
		q.logger = opts.Logger.With().Str("component", "queue").Logger()
	}

	items, err := st.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persisted mutations: %w", err)
	}
	q.items = items
	q.updateGauges()

	return q, nil
}

// Enqueue buffers one write and returns its assigned id. If the device is
// online a drain is scheduled immediately; the caller is never blocked on
// the network. A persistence failure is surfaced through Status and the
// event bus, not returned, because the optimistic in-memory state must
// survive it.
func (q *Queue) Enqueue(ctx context.Context, op models.Operation, payload models.Payload) (string, error) {
	m, err := models.NewMutation(op, payload)
	if err != nil {
		return "", err
	}

	q.mu.Lock()
	q.items = append(q.items, m)
	q.persistLocked(ctx)
	q.updateGaugesLocked()
	q.mu.Unlock()

	metrics.IncEnqueued(string(m.Kind))
	_ = q.bus.PublishJSON(events.EventMutationEnqueued, events.MutationEventPayload{
		MutationID: m.ID,
		Kind:       string(m.Kind),
		Operation:  string(m.Operation),
	})
	q.logger.Debug().Str("mutation_id", m.ID).Str("kind", string(m.Kind)).Msg("mutation enqueued")

	if q.conn.IsOnline() {
		go func() { q.drain(context.Background(), false) }()
	}

	return m.ID, nil
}

// Drain replays pending mutations in enqueue order. Items inside their
// backoff window are skipped; a drain already in progress makes this call
// a no-op.
func (q *Queue) Drain(ctx context.Context) models.DrainResult {
	return q.drain(ctx, false)
}

// SyncNow is the manual trigger: it ignores backoff windows so a user
// pressing "Sync Now" attempts everything that is not dead-lettered.
func (q *Queue) SyncNow(ctx context.Context) models.DrainResult {
	return q.drain(ctx, true)
}

func (q *Queue) drain(ctx context.Context, ignoreBackoff bool) models.DrainResult {
	var result models.DrainResult

	q.mu.Lock()
	if q.draining {
		result.Remaining = q.pendingCount()
		q.mu.Unlock()
		return result
	}
	if !q.conn.IsOnline() {
		result.Remaining = q.pendingCount()
		q.mu.Unlock()
		return result
	}
	q.draining = true
	ids := make([]string, 0, len(q.items))
	for _, m := range q.items {
		if !m.DeadLettered {
			ids = append(ids, m.ID)
		}
	}
	q.mu.Unlock()

	started := time.Now()
	var passErrors []string
	seenErrors := make(map[string]struct{})

	for _, id := range ids {
		// Connectivity is re-checked between items: losing the network
		// mid-pass aborts the rest, leaving them untouched for next time.
		if !q.conn.IsOnline() {
			break
		}

		q.mu.Lock()
		idx := q.indexLocked(id)
		if idx < 0 {
			q.mu.Unlock()
			continue
		}
		m := q.items[idx]
		q.mu.Unlock()

		if !ignoreBackoff && !m.Eligible(time.Now()) {
			result.Skipped++
			continue
		}
		if m.DeadLettered {
			continue
		}

		itemCtx, cancel := context.WithTimeout(ctx, q.itemTimeout)
		err := q.remote.Apply(itemCtx, m)
		cancel()

		if err == nil {
			q.removeApplied(ctx, id)
			result.Succeeded++
			metrics.IncDrainItem("applied")
			continue
		}

		result.Failed++
		if _, ok := seenErrors[err.Error()]; !ok {
			seenErrors[err.Error()] = struct{}{}
			passErrors = append(passErrors, err.Error())
		}
		if q.recordFailure(ctx, id, err) {
			result.DeadLettered++
			metrics.IncDrainItem("dead_lettered")
		} else {
			metrics.IncDrainItem("failed")
		}
	}

	q.mu.Lock()
	q.draining = false
	if result.Failed == 0 {
		now := time.Now()
		q.lastSyncedAt = &now
		q.lastErrors = nil
	} else {
		q.lastErrors = passErrors
	}
	result.Remaining = q.pendingCount()
	q.updateGaugesLocked()
	q.mu.Unlock()

	metrics.ObserveDrain(time.Since(started))
	_ = q.bus.PublishJSON(events.EventDrainCompleted, events.DrainEventPayload{
		Succeeded:    result.Succeeded,
		Failed:       result.Failed,
		DeadLettered: result.DeadLettered,
		Remaining:    result.Remaining,
	})
	q.logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("remaining", result.Remaining).
		Msg("drain completed")

	return result
}

// removeApplied deletes one confirmed mutation and persists immediately, so
// a crash mid-pass cannot replay a write the server already accepted.
func (q *Queue) removeApplied(ctx context.Context, id string) {
	q.mu.Lock()
	if idx := q.indexLocked(id); idx >= 0 {
		m := q.items[idx]
		q.items = append(q.items[:idx], q.items[idx+1:]...)
		q.persistLocked(ctx)
		q.mu.Unlock()

		_ = q.bus.PublishJSON(events.EventMutationApplied, events.MutationEventPayload{
			MutationID: m.ID,
			Kind:       string(m.Kind),
			Operation:  string(m.Operation),
			Attempts:   m.Attempts,
		})
		return
	}
	q.mu.Unlock()
}

// recordFailure bumps the attempt counter, schedules the next attempt, and
// dead-letters the mutation when the failure is permanent or the ceiling is
// hit. Reports whether the item was dead-lettered.
func (q *Queue) recordFailure(ctx context.Context, id string, cause error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return false
	}
	m := &q.items[idx]

	next := time.Now().Add(q.policy.NextDelay(m.Attempts + 1))
	m.RecordFailure(cause, &next)

	dead := remote.IsPermanent(cause) || q.policy.Exhausted(m.Attempts)
	if dead {
		m.DeadLettered = true
		m.NextAttemptAt = nil
	}
	q.persistLocked(ctx)

	if dead {
		_ = q.bus.PublishJSON(events.EventMutationDeadLetter, events.MutationEventPayload{
			MutationID: m.ID,
			Kind:       string(m.Kind),
			Operation:  string(m.Operation),
			Attempts:   m.Attempts,
			LastError:  cause.Error(),
		})
		q.logger.Warn().Str("mutation_id", m.ID).Err(cause).Msg("mutation dead-lettered")
	}
	return dead
}

// Status reports the queue-level state machine snapshot.
func (q *Queue) Status() models.Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := models.Status{
		PendingCount:    q.pendingCount(),
		DeadLetterCount: q.deadLetterCount(),
		LastSyncedAt:    q.lastSyncedAt,
		Errors:          append([]string(nil), q.lastErrors...),
		StoreDegraded:   q.storeDegradedLocked(),
	}

	switch {
	case !q.conn.IsOnline():
		s.State = models.StateOffline
	case q.draining:
		s.State = models.StateSyncing
	case s.PendingCount > 0:
		s.State = models.StatePending
	default:
		s.State = models.StateSynced
	}
	return s
}

// Pending returns a snapshot of mutations awaiting delivery, oldest first.
func (q *Queue) Pending() []models.PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.PendingMutation, 0, len(q.items))
	for _, m := range q.items {
		if !m.DeadLettered {
			out = append(out, m)
		}
	}
	return out
}

// DeadLetter returns a snapshot of mutations excluded from automatic retry.
func (q *Queue) DeadLetter() []models.PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []models.PendingMutation
	for _, m := range q.items {
		if m.DeadLettered {
			out = append(out, m)
		}
	}
	return out
}

// RetryDeadLetter re-arms one dead-lettered mutation (empty id re-arms all),
// resetting its attempt count, and schedules a drain when online.
func (q *Queue) RetryDeadLetter(ctx context.Context, id string) error {
	q.mu.Lock()
	rearmed := 0
	for i := range q.items {
		if !q.items[i].DeadLettered {
			continue
		}
		if id != "" && q.items[i].ID != id {
			continue
		}
		q.items[i].DeadLettered = false
		q.items[i].Attempts = 0
		q.items[i].NextAttemptAt = nil
		rearmed++
	}
	if rearmed > 0 {
		q.persistLocked(ctx)
		q.updateGaugesLocked()
	}
	q.mu.Unlock()

	if id != "" && rearmed == 0 {
		return fmt.Errorf("dead-lettered mutation %s not found", id)
	}
	if rearmed > 0 && q.conn.IsOnline() {
		go func() { q.drain(context.Background(), true) }()
	}
	return nil
}

// Discard drops one mutation without applying it.
func (q *Queue) Discard(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	idx := q.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("mutation %s not found", id)
	}
	q.items = append(q.items[:idx], q.items[idx+1:]...)
	q.persistLocked(ctx)
	q.updateGaugesLocked()
	return nil
}

// DiscardAll clears the queue and the persisted store ("clear offline data").
func (q *Queue) DiscardAll(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.lastErrors = nil
	q.persistLocked(ctx)
	q.updateGaugesLocked()
}

// Start runs the automatic triggers until ctx is done: a drain on every
// offline-to-online transition and a periodic safety-net ticker.
func (q *Queue) Start(ctx context.Context) {
	unsubscribe := q.conn.Subscribe(func(online bool) {
		_ = q.bus.PublishJSON(events.EventConnectivityChanged, map[string]bool{"online": online})
		if online {
			go func() { q.drain(context.Background(), false) }()
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(q.drainInterval)
	defer ticker.Stop()

	q.logger.Info().Msg("queue started")
	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("queue stopped")
			return
		case <-ticker.C:
			if q.conn.IsOnline() {
				q.drain(ctx, false)
			}
		}
	}
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) pendingCount() int {
	n := 0
	for _, m := range q.items {
		if !m.DeadLettered {
			n++
		}
	}
	return n
}

func (q *Queue) deadLetterCount() int {
	n := 0
	for _, m := range q.items {
		if m.DeadLettered {
			n++
		}
	}
	return n
}

func (q *Queue) persistLocked(ctx context.Context) {
	if err := q.store.WriteAll(ctx, q.items); err != nil {
		if !q.persistBroken {
			q.persistBroken = true
			q.logger.Error().Err(err).Msg("persist failed; durability degraded for this session")
			_ = q.bus.PublishJSON(events.EventStoreDegraded, map[string]string{"error": err.Error()})
		}
		return
	}
	q.persistBroken = false
}

func (q *Queue) storeDegradedLocked() bool {
	if q.persistBroken {
		return true
	}
	if d, ok := q.store.(degradable); ok {
		return d.Degraded()
	}
	return false
}

func (q *Queue) updateGauges() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.updateGaugesLocked()
}

func (q *Queue) updateGaugesLocked() {
	metrics.SetPending(q.pendingCount())
	metrics.SetDeadLetter(q.deadLetterCount())
}
