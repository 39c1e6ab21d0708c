package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"bloomsync/internal/config"
	"bloomsync/internal/models"
)

// ErrPermanent marks a failure the remote side will never accept on retry.
// The queue dead-letters such mutations instead of retrying them.
var ErrPermanent = errors.New("permanent remote failure")

// IsPermanent reports whether err carries the permanent classification.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Applier applies one mutation against the remote system.
type Applier interface {
	Apply(ctx context.Context, m models.PendingMutation) error
}

// Client talks to the hosted backend's REST surface. One mutation maps to
// one request: POST for insert, PATCH for update, DELETE for delete, against
// /rest/v1/{resource}. The mutation id travels as an idempotency key so the
// server can dedupe replays of an already-applied write.
type Client struct {
	baseURL   string
	apiKey    string
	authToken string
	http      *http.Client
}

func NewClient(cfg config.RemoteConfig) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: cfg.Timeout()},
	}
}

func (c *Client) Apply(ctx context.Context, m models.PendingMutation) error {
	req, err := c.buildRequest(ctx, m)
	if err != nil {
		// A mutation we cannot even serialize will never deliver.
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apply %s %s: %w", m.Operation, m.Kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	cause := fmt.Errorf("apply %s %s: status %d: %s", m.Operation, m.Kind, resp.StatusCode, strings.TrimSpace(string(body)))
	if permanentStatus(resp.StatusCode) {
		return fmt.Errorf("%w: %v", ErrPermanent, cause)
	}
	return cause
}

func (c *Client) buildRequest(ctx context.Context, m models.PendingMutation) (*http.Request, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, m.Kind.Resource())

	var (
		method string
		body   io.Reader
	)
	switch m.Operation {
	case models.OpInsert:
		method = http.MethodPost
		body = bytes.NewReader(m.Payload)
	case models.OpUpdate:
		method = http.MethodPatch
		body = bytes.NewReader(m.Payload)
	case models.OpDelete:
		method = http.MethodDelete
		key, err := deleteKey(m)
		if err != nil {
			return nil, err
		}
		url = fmt.Sprintf("%s?id=eq.%s", url, key)
	default:
		return nil, fmt.Errorf("unknown operation: %s", m.Operation)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", m.ID)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	return req, nil
}

// deleteKey pulls the record id out of the payload for delete operations.
func deleteKey(m models.PendingMutation) (string, error) {
	p, err := models.DecodePayload(m)
	if err != nil {
		return "", err
	}
	var key string
	switch v := p.(type) {
	case models.HabitCompletion:
		key = v.HabitID
	case models.TaskChange:
		key = v.TaskID
	case models.PlanChange:
		key = v.PlanID
	case models.GoalChange:
		key = v.GoalID
	case models.JournalEntry:
		key = v.EntryID
	}
	if key == "" {
		return "", fmt.Errorf("delete payload for %s has no record id", m.Kind)
	}
	return key, nil
}

// permanentStatus classifies HTTP statuses the server will keep rejecting.
// 408 and 429 stay transient; so does every 5xx.
func permanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	return code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// Ping probes the backend health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to ping remote: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("remote health returned status %d", resp.StatusCode)
	}
	return nil
}

var _ Applier = (*Client)(nil)
