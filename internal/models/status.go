package models

import "time"

// QueueState is the coarse state of the whole queue, not of any one item.
type QueueState string

const (
	StateOffline QueueState = "offline"
	StateSyncing QueueState = "syncing"
	StatePending QueueState = "pending"
	StateSynced  QueueState = "synced"
)

// Status is the snapshot reported to callers and rendered by the UI layer.
type Status struct {
	State           QueueState `json:"state"`
	PendingCount    int        `json:"pending_count"`
	DeadLetterCount int        `json:"dead_letter_count"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
	Errors          []string   `json:"errors,omitempty"`
	StoreDegraded   bool       `json:"store_degraded,omitempty"`
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Succeeded    int `json:"succeeded"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	DeadLettered int `json:"dead_lettered"`
	Remaining    int `json:"remaining"`
}
