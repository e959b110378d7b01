package models

import (
	"time"

	"github.com/google/uuid"
)

// ProgressSource identifies which record a snapshot was derived from.
type ProgressSource string

const (
	ProgressSourceInbox ProgressSource = "inbox"
	ProgressSourceJob   ProgressSource = "job"
)

// ImportOutcome classifies a terminal job. The two degenerate kinds drive
// different remediation messages: invalid-mapping means "fix your column
// mapping", other means "fix your file".
type ImportOutcome string

const (
	OutcomePending              ImportOutcome = "pending"
	OutcomeSuccess              ImportOutcome = "success"
	OutcomeNoProductsBadMapping ImportOutcome = "no-products-invalid-mapping"
	OutcomeNoProductsOther      ImportOutcome = "no-products-other"
)

// degenerateSkipRatio is the skipped/processed threshold above which a
// zero-success job is attributed to a mapping misconfiguration.
const degenerateSkipRatio = 0.9

// ClassifyOutcome derives the outcome category of a terminal job from its
// counters. Processed==0 with zero successes counts as a data problem, not
// a mapping one.
func ClassifyOutcome(processed, succeeded, skipped int) ImportOutcome {
	if succeeded > 0 {
		return OutcomeSuccess
	}
	if processed > 0 && float64(skipped)/float64(processed) >= degenerateSkipRatio {
		return OutcomeNoProductsBadMapping
	}
	return OutcomeNoProductsOther
}

// ProgressSnapshot is the single client-facing progress view, derived from
// whichever record (inbox or job) is currently tracked. It is transient and
// always re-derivable; it is never the source of truth.
type ProgressSnapshot struct {
	Source    ProgressSource `json:"source"`
	JobID     *uuid.UUID     `json:"jobId,omitempty"`
	InboxID   *uuid.UUID     `json:"inboxId,omitempty"`
	Status    ImportStatus   `json:"status"`
	Total     int            `json:"total"`
	Processed int            `json:"processed"`
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Operation string         `json:"operation,omitempty"`
	Error     string         `json:"error,omitempty"`
	Outcome   ImportOutcome  `json:"outcome"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SnapshotFromJob derives a snapshot from an import job record.
func SnapshotFromJob(job *ImportJob) ProgressSnapshot {
	snap := ProgressSnapshot{
		Source:    ProgressSourceJob,
		JobID:     &job.ID,
		Status:    job.Status,
		Total:     job.TotalRows,
		Processed: job.ProcessedRows,
		Succeeded: job.Succeeded(),
		Skipped:   job.Skipped,
		Failed:    job.Failed,
		Operation: job.CurrentOperation,
		Error:     job.ErrorMessage,
		Outcome:   OutcomePending,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status.IsTerminal() {
		snap.Outcome = ClassifyOutcome(job.ProcessedRows, job.Succeeded(), job.Skipped)
	}
	return snap
}

// SnapshotFromInbox derives a snapshot from an inbox record's embedded log
// list. The most recent entry carrying counter data wins.
func SnapshotFromInbox(record *InboxRecord) ProgressSnapshot {
	snap := ProgressSnapshot{
		Source:    ProgressSourceInbox,
		InboxID:   &record.ID,
		JobID:     record.JobID,
		Status:    record.Status,
		Outcome:   OutcomePending,
		UpdatedAt: record.UpdatedAt,
	}
	for i := len(record.Logs) - 1; i >= 0; i-- {
		data := record.Logs[i].Data
		if data == nil {
			continue
		}
		if _, ok := data["processed"]; !ok {
			continue
		}
		snap.Processed = jsonbInt(data, "processed")
		snap.Total = jsonbInt(data, "total")
		snap.Succeeded = jsonbInt(data, "succeeded")
		snap.Skipped = jsonbInt(data, "skipped")
		snap.Failed = jsonbInt(data, "failed")
		if op, ok := data["operation"].(string); ok {
			snap.Operation = op
		}
		snap.UpdatedAt = record.Logs[i].CreatedAt
		break
	}
	if record.Status.IsTerminal() {
		snap.Outcome = ClassifyOutcome(snap.Processed, snap.Succeeded, snap.Skipped)
	}
	return snap
}

func jsonbInt(data JSONB, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
