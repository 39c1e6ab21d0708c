package connectivity

import (
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"bloomsync/internal/config"

	"github.com/rs/zerolog"
)

// Monitor tracks whether the remote backend is reachable. Probes run on an
// interval; callers can also force the state (airplane mode, tests). State
// changes fan out to subscribers.
type Monitor struct {
	probeURL string
	interval time.Duration
	http     *http.Client
	logger   zerolog.Logger

	online atomic.Bool

	mu     sync.Mutex
	subs   map[int]func(online bool)
	nextID int
}

func NewMonitor(cfg config.ConnectivityConfig, logger *zerolog.Logger) *Monitor {
	m := &Monitor{
		probeURL: cfg.ProbeURL,
		interval: cfg.Interval(),
		http:     &http.Client{Timeout: cfg.Timeout()},
		subs:     make(map[int]func(bool)),
	}
	if logger != nil {
		m.logger = logger.With().Str("component", "connectivity").Logger()
	}
	// Assume online until a probe says otherwise; a dead assumption costs
	// one failed drain attempt, a live one costs startup latency.
	m.online.Store(true)
	return m
}

// IsOnline reports the last known connectivity state.
func (m *Monitor) IsOnline() bool {
	return m.online.Load()
}

// Subscribe registers a callback invoked on every state change.
// The returned function removes the subscription.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// SetOnline forces the state, notifying subscribers on change. The probe
// loop keeps running and may flip the state back on its next pass.
func (m *Monitor) SetOnline(online bool) {
	m.transition(online)
}

// Start runs the probe loop until ctx is done. A Monitor with no probe URL
// is purely manual and returns immediately.
func (m *Monitor) Start(ctx context.Context) {
	if m.probeURL == "" {
		return
	}

	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		m.logger.Error().Err(err).Msg("build probe request")
		return
	}

	resp, err := m.http.Do(req)
	if err != nil {
		m.transition(false)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	m.transition(resp.StatusCode < 500)
}

func (m *Monitor) transition(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	m.logger.Info().Bool("online", online).Msg("connectivity changed")

	m.mu.Lock()
	subs := make([]func(bool), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
