package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		succeeded int
		skipped   int
		want      ImportOutcome
	}{
		{"any success wins", 300, 5, 295, OutcomeSuccess},
		{"nearly all skipped means bad mapping", 300, 0, 290, OutcomeNoProductsBadMapping},
		{"all skipped means bad mapping", 100, 0, 100, OutcomeNoProductsBadMapping},
		{"few skipped means data problem", 300, 0, 100, OutcomeNoProductsOther},
		{"exactly at threshold counts as bad mapping", 100, 0, 90, OutcomeNoProductsBadMapping},
		{"just under threshold does not", 100, 0, 89, OutcomeNoProductsOther},
		{"nothing processed is a data problem", 0, 0, 0, OutcomeNoProductsOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOutcome(tt.processed, tt.succeeded, tt.skipped))
		})
	}
}

func TestSnapshotFromJob(t *testing.T) {
	job := &ImportJob{
		ID:            uuid.New(),
		Status:        ImportStatusProcessing,
		TotalRows:     250,
		ProcessedRows: 100,
		NewRecords:    60,
		Matched:       30,
		Skipped:       10,
	}

	snap := SnapshotFromJob(job)

	assert.Equal(t, ProgressSourceJob, snap.Source)
	assert.Equal(t, 100, snap.Processed)
	assert.Equal(t, 90, snap.Succeeded)
	assert.Equal(t, OutcomePending, snap.Outcome)
}

func TestSnapshotFromJob_TerminalClassifies(t *testing.T) {
	job := &ImportJob{
		ID:            uuid.New(),
		Status:        ImportStatusCompleted,
		TotalRows:     300,
		ProcessedRows: 300,
		Skipped:       290,
	}

	snap := SnapshotFromJob(job)

	assert.Equal(t, OutcomeNoProductsBadMapping, snap.Outcome)
}

func TestSnapshotFromInbox_UsesLatestCounterEntry(t *testing.T) {
	record := &InboxRecord{
		ID:     uuid.New(),
		Status: ImportStatusProcessing,
		Logs: []ImportLogEntry{
			{Message: "started", CreatedAt: time.Now().Add(-2 * time.Minute)},
			{
				Message:   "chunk done",
				Data:      JSONB{"processed": float64(100), "total": float64(250), "succeeded": float64(90), "skipped": float64(10)},
				CreatedAt: time.Now().Add(-time.Minute),
			},
			{
				Message:   "chunk done",
				Data:      JSONB{"processed": float64(200), "total": float64(250), "succeeded": float64(180), "skipped": float64(20)},
				CreatedAt: time.Now(),
			},
			{Message: "note without counters", Data: JSONB{"detail": "x"}},
		},
	}

	snap := SnapshotFromInbox(record)

	assert.Equal(t, ProgressSourceInbox, snap.Source)
	assert.Equal(t, 200, snap.Processed)
	assert.Equal(t, 180, snap.Succeeded)
	assert.Equal(t, 250, snap.Total)
}

func TestSnapshotFromInbox_NoCounterLogs(t *testing.T) {
	record := &InboxRecord{ID: uuid.New(), Status: ImportStatusQueued}

	snap := SnapshotFromInbox(record)

	assert.Zero(t, snap.Processed)
	assert.Equal(t, OutcomePending, snap.Outcome)
}

func TestImportStatus_IsTerminal(t *testing.T) {
	assert.True(t, ImportStatusCompleted.IsTerminal())
	assert.True(t, ImportStatusFailed.IsTerminal())
	assert.False(t, ImportStatusQueued.IsTerminal())
	assert.False(t, ImportStatusProcessing.IsTerminal())
}
