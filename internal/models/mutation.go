package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation is the write verb carried by a mutation.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the known verbs.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// Kind identifies the resource a mutation targets.
type Kind string

const (
	KindHabitCompletion Kind = "habit_completion"
	KindTaskUpdate      Kind = "task_update"
	KindPlanUpdate      Kind = "plan_update"
	KindGoalUpdate      Kind = "goal_update"
	KindJournalEntry    Kind = "journal_entry"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindHabitCompletion, KindTaskUpdate, KindPlanUpdate, KindGoalUpdate, KindJournalEntry:
		return true
	}
	return false
}

// Resource returns the remote resource name for the kind.
func (k Kind) Resource() string {
	switch k {
	case KindHabitCompletion:
		return "habit_completions"
	case KindTaskUpdate:
		return "tasks"
	case KindPlanUpdate:
		return "plans"
	case KindGoalUpdate:
		return "goals"
	case KindJournalEntry:
		return "journal_entries"
	}
	return string(k)
}

// PendingMutation is one buffered write awaiting delivery to the remote API.
// The payload is stored encoded; use DecodePayload to recover the typed form.
type PendingMutation struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Operation     Operation       `json:"operation"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	Attempts      int             `json:"attempts"`
	LastError     *string         `json:"last_error,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	DeadLettered  bool            `json:"dead_lettered,omitempty"`
}

// NewMutation builds a PendingMutation from a typed payload. The payload's
// kind is authoritative; the id is assigned here and never changes.
func NewMutation(op Operation, payload Payload) (PendingMutation, error) {
	if !op.Valid() {
		return PendingMutation{}, fmt.Errorf("invalid operation %q", op)
	}
	if payload == nil {
		return PendingMutation{}, fmt.Errorf("payload is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return PendingMutation{}, fmt.Errorf("encode payload: %w", err)
	}

	return PendingMutation{
		ID:        uuid.NewString(),
		Kind:      payload.MutationKind(),
		Operation: op,
		Payload:   raw,
		CreatedAt: time.Now(),
	}, nil
}

// RecordFailure increments the attempt counter and stores the cause.
func (m *PendingMutation) RecordFailure(cause error, nextAttempt *time.Time) {
	m.Attempts++
	if cause != nil {
		msg := cause.Error()
		m.LastError = &msg
	}
	m.NextAttemptAt = nextAttempt
}

// Eligible reports whether the mutation may be attempted at the given time.
// Dead-lettered items are never eligible for automatic delivery.
func (m *PendingMutation) Eligible(now time.Time) bool {
	if m.DeadLettered {
		return false
	}
	return m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)
}
