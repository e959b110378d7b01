package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"supplier-import-service/internal/events"
	"supplier-import-service/internal/models"
)

// ProgressReader is the record store the tracker polls as its fallback
// channel.
type ProgressReader interface {
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	GetInboxByID(ctx context.Context, id uuid.UUID) (*models.InboxRecord, error)
}

// ProgressUpdate carries one observed state change from either source. At
// most one of the fields is set.
type ProgressUpdate struct {
	Inbox *models.InboxRecord
	Job   *models.ImportJob
}

// TrackerCallbacks are the consumer hooks. OnSnapshot fires on every
// reconciled view change. OnToast fires for user-facing notifications and
// is suppressed for poll-driven updates once a push has been seen, so the
// user is not toasted twice for the same state. OnTerminal fires exactly
// once per tracked import, no matter how many times the terminal state is
// observed.
type TrackerCallbacks struct {
	OnSnapshot func(snap models.ProgressSnapshot, fromPush bool)
	OnToast    func(snap models.ProgressSnapshot)
	OnTerminal func(snap models.ProgressSnapshot)
}

// TrackerOptions tune the poll fallback and the terminal grace period.
type TrackerOptions struct {
	PollInterval time.Duration
	GracePeriod  time.Duration
}

// ProgressTracker merges state changes arriving from the push channel and
// the poll fallback into one coherent progress view. Both producers feed
// the same reconciliation function; the tracker, not the producers, handles
// duplicate and out-of-order notifications.
type ProgressTracker struct {
	mu sync.Mutex

	reader ProgressReader
	logger *logrus.Entry

	// tracking target: transitions inbox->job exactly once, never back
	target  models.ProgressSource
	inboxID *uuid.UUID
	jobID   *uuid.UUID

	pushSeen      bool
	terminalFired bool
	last          models.ProgressSnapshot

	callbacks    TrackerCallbacks
	pollInterval time.Duration
	gracePeriod  time.Duration

	pollCancel context.CancelFunc
	done       chan struct{}
}

// NewJobTracker tracks an import via its job record from the start.
func NewJobTracker(reader ProgressReader, jobID uuid.UUID, cb TrackerCallbacks, opts TrackerOptions, logger *logrus.Logger) *ProgressTracker {
	t := newTracker(reader, cb, opts, logger)
	t.target = models.ProgressSourceJob
	t.jobID = &jobID
	t.last.Source = models.ProgressSourceJob
	t.last.JobID = &jobID
	t.startPolling()
	return t
}

// NewInboxTracker tracks an import via the legacy inbox record. The tracker
// switches permanently to job-record tracking the first time an update
// referencing a job id is observed.
func NewInboxTracker(reader ProgressReader, inboxID uuid.UUID, cb TrackerCallbacks, opts TrackerOptions, logger *logrus.Logger) *ProgressTracker {
	t := newTracker(reader, cb, opts, logger)
	t.target = models.ProgressSourceInbox
	t.inboxID = &inboxID
	t.last.Source = models.ProgressSourceInbox
	t.last.InboxID = &inboxID
	t.startPolling()
	return t
}

func newTracker(reader ProgressReader, cb TrackerCallbacks, opts TrackerOptions, logger *logrus.Logger) *ProgressTracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 3 * time.Second
	}
	entry := logrus.NewEntry(logrus.StandardLogger())
	if logger != nil {
		entry = logger.WithField("component", "progress-tracker")
	}
	return &ProgressTracker{
		reader:       reader,
		logger:       entry,
		callbacks:    cb,
		pollInterval: opts.PollInterval,
		gracePeriod:  opts.GracePeriod,
		last:         models.ProgressSnapshot{Status: models.ImportStatusQueued, Outcome: models.OutcomePending},
		done:         make(chan struct{}),
	}
}

// ObservePush feeds a push-channel notification through reconciliation.
func (t *ProgressTracker) ObservePush(update ProgressUpdate) models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pushSeen = true
	return t.reconcileLocked(update, true)
}

// ObserveJobEvent adapts a NATS job event into a push observation.
func (t *ProgressTracker) ObserveJobEvent(event events.JobEvent) models.ProgressSnapshot {
	jobID, err := uuid.Parse(event.JobID)
	if err != nil {
		t.logger.WithError(err).Warn("Dropping job event with malformed id")
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.last
	}
	job := &models.ImportJob{
		ID:               jobID,
		TenantID:         event.TenantID,
		Status:           event.Status,
		TotalRows:        event.Total,
		ProcessedRows:    event.Processed,
		Matched:          event.Succeeded, // Succeeded already nets new+matched
		Skipped:          event.Skipped,
		Failed:           event.Failed,
		CurrentOperation: event.Operation,
		ErrorMessage:     event.Error,
		UpdatedAt:        event.Timestamp,
	}
	return t.ObservePush(ProgressUpdate{Job: job})
}

// Reconcile feeds a poll-channel observation through reconciliation. It is
// exported because the poll loop and tests are both producers of it.
func (t *ProgressTracker) Reconcile(update ProgressUpdate) models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconcileLocked(update, false)
}

// Last returns the current reconciled view.
func (t *ProgressTracker) Last() models.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// PushSeen reports whether at least one push notification arrived.
func (t *ProgressTracker) PushSeen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pushSeen
}

// Target returns the currently tracked source.
func (t *ProgressTracker) Target() models.ProgressSource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// Done is closed one grace period after the tracked import reached a
// terminal status, so a degenerate-outcome message stays visible before any
// auto-close.
func (t *ProgressTracker) Done() <-chan struct{} {
	return t.done
}

// Close stops the poll loop. It does not cancel an in-flight chunk loop;
// the import itself keeps running.
func (t *ProgressTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopPollLocked()
}

func (t *ProgressTracker) reconcileLocked(update ProgressUpdate, fromPush bool) models.ProgressSnapshot {
	snap, ok := t.deriveLocked(update)
	if !ok {
		return t.last
	}

	merged := t.mergeLocked(snap)
	t.last = merged

	if t.callbacks.OnSnapshot != nil {
		t.callbacks.OnSnapshot(merged, fromPush)
	}
	// Redundant poll-driven toasts are suppressed once push works, but the
	// poll itself keeps running as a correctness backstop.
	if t.callbacks.OnToast != nil && (fromPush || !t.pushSeen) {
		t.callbacks.OnToast(merged)
	}

	if merged.Status.IsTerminal() && !t.terminalFired {
		t.terminalFired = true
		if t.callbacks.OnTerminal != nil {
			t.callbacks.OnTerminal(merged)
		}
		t.stopPollLocked()
		time.AfterFunc(t.gracePeriod, func() {
			close(t.done)
		})
	}

	return merged
}

// deriveLocked turns an update into a candidate snapshot, handling the
// one-way inbox->job target switch and dropping updates for a source that
// is no longer tracked.
func (t *ProgressTracker) deriveLocked(update ProgressUpdate) (models.ProgressSnapshot, bool) {
	switch {
	case update.Job != nil:
		// Any notification referencing a job id permanently switches the
		// tracker to job-record tracking.
		if t.target == models.ProgressSourceInbox {
			t.target = models.ProgressSourceJob
			id := update.Job.ID
			t.jobID = &id
		}
		if t.jobID == nil || *t.jobID != update.Job.ID {
			return models.ProgressSnapshot{}, false
		}
		return models.SnapshotFromJob(update.Job), true

	case update.Inbox != nil:
		if t.target == models.ProgressSourceJob {
			// Stale source: the switch is one-way.
			return models.ProgressSnapshot{}, false
		}
		if t.inboxID == nil || *t.inboxID != update.Inbox.ID {
			return models.ProgressSnapshot{}, false
		}
		if update.Inbox.JobID != nil {
			t.target = models.ProgressSourceJob
			t.jobID = update.Inbox.JobID
		}
		return models.SnapshotFromInbox(update.Inbox), true
	}
	return models.ProgressSnapshot{}, false
}

// mergeLocked folds a candidate snapshot into the current view. Processed
// counters are monotonically non-decreasing until terminal, and a terminal
// view is never demoted by a late out-of-order update.
func (t *ProgressTracker) mergeLocked(snap models.ProgressSnapshot) models.ProgressSnapshot {
	if t.last.Status.IsTerminal() && !snap.Status.IsTerminal() {
		return t.last
	}
	if snap.Processed < t.last.Processed {
		snap.Processed = t.last.Processed
		snap.Succeeded = maxInt(snap.Succeeded, t.last.Succeeded)
		snap.Skipped = maxInt(snap.Skipped, t.last.Skipped)
		snap.Failed = maxInt(snap.Failed, t.last.Failed)
		if snap.Status.IsTerminal() {
			snap.Outcome = models.ClassifyOutcome(snap.Processed, snap.Succeeded, snap.Skipped)
		}
	}
	return snap
}

func (t *ProgressTracker) startPolling() {
	ctx, cancel := context.WithCancel(context.Background())
	t.pollCancel = cancel

	go func() {
		ticker := time.NewTicker(t.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.pollOnce(ctx)
			}
		}
	}()
}

func (t *ProgressTracker) pollOnce(ctx context.Context) {
	t.mu.Lock()
	target := t.target
	var jobID, inboxID uuid.UUID
	if t.jobID != nil {
		jobID = *t.jobID
	}
	if t.inboxID != nil {
		inboxID = *t.inboxID
	}
	t.mu.Unlock()

	readCtx, cancel := context.WithTimeout(ctx, t.pollInterval)
	defer cancel()

	var update ProgressUpdate
	switch target {
	case models.ProgressSourceJob:
		job, err := t.reader.GetJobByID(readCtx, jobID)
		if err != nil {
			t.logger.WithError(err).Debug("Progress poll failed to read job")
			return
		}
		update.Job = job
	default:
		record, err := t.reader.GetInboxByID(readCtx, inboxID)
		if err != nil {
			t.logger.WithError(err).Debug("Progress poll failed to read inbox record")
			return
		}
		update.Inbox = record
	}

	t.Reconcile(update)
}

func (t *ProgressTracker) stopPollLocked() {
	if t.pollCancel != nil {
		t.pollCancel()
		t.pollCancel = nil
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
