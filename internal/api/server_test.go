package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"bloomsync/internal/config"
	"bloomsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQueue struct {
	status      models.Status
	pending     []models.PendingMutation
	deadLetter  []models.PendingMutation
	syncCalls   int
	retried     []string
	discarded   []string
	discardAll  int
	notFoundIDs map[string]bool
}

func (s *stubQueue) Status() models.Status                   { return s.status }
func (s *stubQueue) Pending() []models.PendingMutation       { return s.pending }
func (s *stubQueue) DeadLetter() []models.PendingMutation    { return s.deadLetter }
func (s *stubQueue) SyncNow(context.Context) models.DrainResult {
	s.syncCalls++
	return models.DrainResult{Succeeded: len(s.pending)}
}

func (s *stubQueue) RetryDeadLetter(_ context.Context, id string) error {
	if s.notFoundIDs[id] {
		return assert.AnError
	}
	s.retried = append(s.retried, id)
	return nil
}

func (s *stubQueue) Discard(_ context.Context, id string) error {
	if s.notFoundIDs[id] {
		return assert.AnError
	}
	s.discarded = append(s.discarded, id)
	return nil
}

func (s *stubQueue) DiscardAll(context.Context) { s.discardAll++ }

func newTestServer(t *testing.T, q QueueController, authEnabled bool) *httptest.Server {
	t.Helper()
	cfg := config.APIConfig{
		Enabled: true,
		Port:    0,
		Auth: config.APIAuthConfig{
			Enabled:      authEnabled,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "test-key", Name: "tests"}},
		},
	}
	srv := NewHTTPServer(cfg, config.ExportConfig{Path: t.TempDir()}, q, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url, apiKey string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatusEndpoint(t *testing.T) {
	q := &stubQueue{status: models.Status{State: models.StatePending, PendingCount: 2}}
	ts := newTestServer(t, q, true)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", "test-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st models.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, models.StatePending, st.State)
	assert.Equal(t, 2, st.PendingCount)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, &stubQueue{}, true)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthDisabled(t *testing.T) {
	ts := newTestServer(t, &stubQueue{}, false)
	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSyncNow(t *testing.T) {
	q := &stubQueue{}
	ts := newTestServer(t, q, true)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/sync", "test-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, q.syncCalls)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/v1/sync", "test-key")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDiscard(t *testing.T) {
	q := &stubQueue{notFoundIDs: map[string]bool{"ghost": true}}
	ts := newTestServer(t, q, true)

	resp := doRequest(t, http.MethodDelete, ts.URL+"/api/v1/pending?id=m1", "test-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"m1"}, q.discarded)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/v1/pending?id=ghost", "test-key")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, ts.URL+"/api/v1/pending", "test-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, q.discardAll)
}

func TestDeadLetterEndpoints(t *testing.T) {
	m, err := models.NewMutation(models.OpInsert, models.HabitCompletion{HabitID: "h1", Date: "2024-01-01"})
	require.NoError(t, err)
	m.DeadLettered = true

	q := &stubQueue{deadLetter: []models.PendingMutation{m}}
	ts := newTestServer(t, q, true)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/deadletter", "test-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Items []models.PendingMutation `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, m.ID, body.Items[0].ID)

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/deadletter/retry?id="+m.ID, "test-key")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, []string{m.ID}, q.retried)
}

func TestExportEndpoint(t *testing.T) {
	q := &stubQueue{}
	ts := newTestServer(t, q, true)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/export", "test-key")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["path"])
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, &stubQueue{}, false)
	resp := doRequest(t, http.MethodGet, ts.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Enabled:   true,
		Auth:      config.APIAuthConfig{Enabled: false, HeaderAPIKey: "x-api-key"},
		RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1},
	}
	srv := NewHTTPServer(cfg, config.ExportConfig{Path: t.TempDir()}, &stubQueue{}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
