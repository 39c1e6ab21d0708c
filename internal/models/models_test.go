package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMutation(t *testing.T) {
	t.Run("AssignsIDAndKind", func(t *testing.T) {
		m, err := NewMutation(OpInsert, HabitCompletion{HabitID: "h1", Date: "2024-01-01", Completed: true})
		require.NoError(t, err)
		assert.NotEmpty(t, m.ID)
		assert.Equal(t, KindHabitCompletion, m.Kind)
		assert.Equal(t, OpInsert, m.Operation)
		assert.Equal(t, 0, m.Attempts)
		assert.False(t, m.CreatedAt.IsZero())
	})

	t.Run("UniqueIDs", func(t *testing.T) {
		a, err := NewMutation(OpInsert, TaskChange{TaskID: "t1"})
		require.NoError(t, err)
		b, err := NewMutation(OpInsert, TaskChange{TaskID: "t1"})
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("RejectsInvalidOperation", func(t *testing.T) {
		_, err := NewMutation(Operation("upsert"), TaskChange{TaskID: "t1"})
		assert.Error(t, err)
	})

	t.Run("RejectsNilPayload", func(t *testing.T) {
		_, err := NewMutation(OpInsert, nil)
		assert.Error(t, err)
	})
}

func TestDecodePayload(t *testing.T) {
	m, err := NewMutation(OpUpdate, TaskChange{TaskID: "t9", Fields: map[string]any{"done": true}})
	require.NoError(t, err)

	p, err := DecodePayload(m)
	require.NoError(t, err)

	tc, ok := p.(TaskChange)
	require.True(t, ok)
	assert.Equal(t, "t9", tc.TaskID)
	assert.Equal(t, true, tc.Fields["done"])
}

func TestDecodePayloadUnknownKind(t *testing.T) {
	m := PendingMutation{Kind: Kind("screen_time"), Payload: json.RawMessage(`{}`)}
	_, err := DecodePayload(m)
	assert.Error(t, err)
}

func TestMutationJSONRoundTrip(t *testing.T) {
	m, err := NewMutation(OpDelete, JournalEntry{EntryID: "j1"})
	require.NoError(t, err)
	errMsg := "boom"
	m.LastError = &errMsg
	m.Attempts = 2

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back PendingMutation
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m.ID, back.ID)
	assert.Equal(t, m.Kind, back.Kind)
	assert.Equal(t, 2, back.Attempts)
	assert.Equal(t, "boom", *back.LastError)
}

func TestEligible(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Minute)
	earlier := now.Add(-time.Minute)

	m := PendingMutation{}
	assert.True(t, m.Eligible(now))

	m.NextAttemptAt = &later
	assert.False(t, m.Eligible(now))

	m.NextAttemptAt = &earlier
	assert.True(t, m.Eligible(now))

	m.DeadLettered = true
	assert.False(t, m.Eligible(now))
}

func TestKindResource(t *testing.T) {
	assert.Equal(t, "habit_completions", KindHabitCompletion.Resource())
	assert.Equal(t, "tasks", KindTaskUpdate.Resource())
	assert.Equal(t, "journal_entries", KindJournalEntry.Resource())
}

func TestRecordFailure(t *testing.T) {
	m := PendingMutation{}
	next := time.Now().Add(time.Second)
	m.RecordFailure(assert.AnError, &next)
	assert.Equal(t, 1, m.Attempts)
	require.NotNil(t, m.LastError)
	assert.Equal(t, assert.AnError.Error(), *m.LastError)
	assert.Equal(t, &next, m.NextAttemptAt)
}
