package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the closed set of mutation payloads. Each variant carries the
// record for insert/update or the identifying key for delete; the queue
// itself never inspects the contents beyond the kind.
type Payload interface {
	MutationKind() Kind
}

// HabitCompletion marks a habit done (or undone) for a calendar day.
type HabitCompletion struct {
	HabitID     string `json:"habit_id"`
	Date        string `json:"date"` // YYYY-MM-DD, user-local
	Completed   bool   `json:"completed"`
	CompletedAt string `json:"completed_at,omitempty"`
}

func (HabitCompletion) MutationKind() Kind { return KindHabitCompletion }

// TaskChange updates fields of a task, or names the task to delete.
type TaskChange struct {
	TaskID string         `json:"task_id"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (TaskChange) MutationKind() Kind { return KindTaskUpdate }

// PlanChange updates fields of a daily plan entry.
type PlanChange struct {
	PlanID string         `json:"plan_id"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (PlanChange) MutationKind() Kind { return KindPlanUpdate }

// GoalChange updates fields of a goal.
type GoalChange struct {
	GoalID string         `json:"goal_id"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (GoalChange) MutationKind() Kind { return KindGoalUpdate }

// JournalEntry writes a journal entry with an optional mood score.
type JournalEntry struct {
	EntryID   string    `json:"entry_id"`
	Body      string    `json:"body,omitempty"`
	Mood      int       `json:"mood,omitempty"`
	WrittenAt time.Time `json:"written_at,omitempty"`
}

func (JournalEntry) MutationKind() Kind { return KindJournalEntry }

// DecodePayload recovers the typed payload from a stored mutation.
func DecodePayload(m PendingMutation) (Payload, error) {
	var (
		p   Payload
		err error
	)
	switch m.Kind {
	case KindHabitCompletion:
		var v HabitCompletion
		err = json.Unmarshal(m.Payload, &v)
		p = v
	case KindTaskUpdate:
		var v TaskChange
		err = json.Unmarshal(m.Payload, &v)
		p = v
	case KindPlanUpdate:
		var v PlanChange
		err = json.Unmarshal(m.Payload, &v)
		p = v
	case KindGoalUpdate:
		var v GoalChange
		err = json.Unmarshal(m.Payload, &v)
		p = v
	case KindJournalEntry:
		var v JournalEntry
		err = json.Unmarshal(m.Payload, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown mutation kind: %s", m.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", m.Kind, err)
	}
	return p, nil
}
