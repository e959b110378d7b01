package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"supplier-import-service/internal/clients"
	"supplier-import-service/internal/config"
	"supplier-import-service/internal/events"
	"supplier-import-service/internal/ingest"
	"supplier-import-service/internal/models"
	"supplier-import-service/internal/repository"
)

// ChunkProcessor abstracts the catalog-matching backend.
type ChunkProcessor interface {
	ProcessChunk(ctx context.Context, req *clients.ChunkRequest) (*clients.ChunkResponse, error)
	ProcessFile(ctx context.Context, req *clients.FileRequest) (*clients.FileResponse, error)
}

// ProgressPublisher pushes job state changes to subscribers. Implementations
// must be fire-and-forget: a publish failure never fails the import.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, job *models.ImportJob)
	PublishCompleted(ctx context.Context, job *models.ImportJob)
}

// PushSubscriber delivers per-job push notifications.
type PushSubscriber interface {
	SubscribeJob(jobID uuid.UUID, handler func(events.JobEvent)) (func(), error)
}

// StartImportRequest carries everything needed to launch an import: the raw
// parsed matrix plus the user-confirmed mapping and filter settings.
type StartImportRequest struct {
	SupplierID     uuid.UUID
	ProfileName    string
	SourceType     models.SourceType
	Rows           [][]string
	HeaderRowIndex int
	Mapping        models.ColumnMapping
	Filter         models.FilterConfig
	ChunkSize      int
	CreatedBy      string
}

// ImportService orchestrates catalog imports: it validates the mapping,
// persists the profile, creates the job record and drives the sequential
// chunk loop against the processing backend.
type ImportService struct {
	jobRepo     repository.JobRepositoryInterface
	profileRepo repository.ProfileRepositoryInterface
	processor   ChunkProcessor
	publisher   ProgressPublisher
	subscriber  PushSubscriber
	logger      *logrus.Logger
	cfg         *config.Config

	mu         sync.Mutex
	activeJobs map[uuid.UUID]context.CancelFunc
	trackers   map[uuid.UUID]*ProgressTracker
}

// NewImportService creates a new import orchestrator. publisher and
// subscriber may be nil when NATS is not configured; imports then rely on
// the poll channel only.
func NewImportService(jobRepo repository.JobRepositoryInterface, profileRepo repository.ProfileRepositoryInterface, processor ChunkProcessor, publisher ProgressPublisher, subscriber PushSubscriber, cfg *config.Config, logger *logrus.Logger) *ImportService {
	return &ImportService{
		jobRepo:     jobRepo,
		profileRepo: profileRepo,
		processor:   processor,
		publisher:   publisher,
		subscriber:  subscriber,
		logger:      logger,
		cfg:         cfg,
		activeJobs:  make(map[uuid.UUID]context.CancelFunc),
		trackers:    make(map[uuid.UUID]*ProgressTracker),
	}
}

// StartImport validates the request, saves the mapping profile, creates the
// job record and launches the chunk loop in the background. The returned
// job is already persisted with status processing.
func (s *ImportService) StartImport(ctx context.Context, tenantID string, req StartImportRequest) (*models.ImportJob, error) {
	if err := ingest.ValidateMapping(req.Mapping, ingest.ValidationRequireIdentifier); err != nil {
		return nil, err
	}

	filtered := ingest.FilteredRows(req.Rows, req.HeaderRowIndex, req.Filter)

	if err := s.saveProfile(ctx, tenantID, req); err != nil {
		// The profile is a convenience for the next import; losing it is
		// not worth failing this one.
		s.logger.WithError(err).Warn("Failed to save mapping profile")
	}

	job, err := s.createJob(ctx, tenantID, req, len(filtered))
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.activeJobs[job.ID] = cancel
	s.mu.Unlock()

	s.attachTracker(job.ID)

	// The chunk loop keeps mutating job; callers get a detached copy.
	out := *job
	go s.runChunkLoop(jobCtx, job, filtered, wireMapping(req.Mapping))

	return &out, nil
}

// StartFileImport hands the whole filtered file to the backend in a single
// call instead of driving the chunk loop locally. Used for sources small
// enough that per-chunk progress is not worth the round-trips.
func (s *ImportService) StartFileImport(ctx context.Context, tenantID string, req StartImportRequest) (*models.ImportJob, error) {
	if err := ingest.ValidateMapping(req.Mapping, ingest.ValidationRequireIdentifier); err != nil {
		return nil, err
	}

	filtered := ingest.FilteredRows(req.Rows, req.HeaderRowIndex, req.Filter)

	if err := s.saveProfile(ctx, tenantID, req); err != nil {
		s.logger.WithError(err).Warn("Failed to save mapping profile")
	}

	job, err := s.createJob(ctx, tenantID, req, len(filtered))
	if err != nil {
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.activeJobs[job.ID] = cancel
	s.mu.Unlock()

	s.attachTracker(job.ID)

	out := *job
	go s.runFileImport(jobCtx, job, filtered, wireMapping(req.Mapping))

	return &out, nil
}

// CancelImport aborts a running import. Rows already processed are kept;
// there is no rollback.
func (s *ImportService) CancelImport(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	cancel, ok := s.activeJobs[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running import for job %s", jobID)
	}
	cancel()
	return nil
}

// Progress returns the reconciled progress view for a job. While the import
// runs the live tracker answers; afterwards the view is derived from the
// stored job record.
func (s *ImportService) Progress(ctx context.Context, jobID uuid.UUID) (models.ProgressSnapshot, error) {
	s.mu.Lock()
	tracker, ok := s.trackers[jobID]
	s.mu.Unlock()
	if ok {
		return tracker.Last(), nil
	}

	job, err := s.jobRepo.GetJobByID(ctx, jobID)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	return models.SnapshotFromJob(job), nil
}

// InboxProgress returns the reconciled progress view for a legacy inbox
// record, switching to job-record tracking once the record references one.
func (s *ImportService) InboxProgress(ctx context.Context, inboxID uuid.UUID) (models.ProgressSnapshot, error) {
	record, err := s.jobRepo.GetInboxByID(ctx, inboxID)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}
	if record.JobID != nil {
		if job, err := s.jobRepo.GetJobByID(ctx, *record.JobID); err == nil {
			return models.SnapshotFromJob(job), nil
		}
	}
	return models.SnapshotFromInbox(record), nil
}

func (s *ImportService) saveProfile(ctx context.Context, tenantID string, req StartImportRequest) error {
	name := req.ProfileName
	if name == "" {
		name = "Default"
	}
	profile := &models.MappingProfile{
		TenantID:    tenantID,
		SupplierID:  req.SupplierID,
		ProfileName: name,
		SourceType:  req.SourceType,
		IsDefault:   true,
	}
	profile.SetColumnMapping(req.Mapping)
	profile.SetFilterConfig(req.Filter)
	return s.profileRepo.UpsertDefault(ctx, profile)
}

func (s *ImportService) createJob(ctx context.Context, tenantID string, req StartImportRequest, totalRows int) (*models.ImportJob, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.ChunkSize
	}
	if chunkSize > s.cfg.MaxChunkSize {
		chunkSize = s.cfg.MaxChunkSize
	}

	now := time.Now().UTC()
	job := &models.ImportJob{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SupplierID: req.SupplierID,
		SourceType: req.SourceType,
		Status:     models.ImportStatusProcessing,
		TotalRows:  totalRows,
		ChunkSize:  chunkSize,
		CreatedBy:  req.CreatedBy,
		StartedAt:  &now,
	}
	if err := s.jobRepo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}
	return job, nil
}

// attachTracker wires a live progress tracker for the job: push via the
// NATS subscription when available, poll via the job repository always.
func (s *ImportService) attachTracker(jobID uuid.UUID) {
	tracker := NewJobTracker(s.jobRepo, jobID, TrackerCallbacks{}, TrackerOptions{
		PollInterval: s.cfg.PollInterval,
		GracePeriod:  s.cfg.GracePeriod,
	}, s.logger)

	unsubscribe := func() {}
	if s.subscriber != nil {
		if unsub, err := s.subscriber.SubscribeJob(jobID, func(event events.JobEvent) {
			tracker.ObserveJobEvent(event)
		}); err != nil {
			s.logger.WithError(err).WithField("job_id", jobID).Warn("Push subscription failed, falling back to polling only")
		} else {
			unsubscribe = unsub
		}
	}

	s.mu.Lock()
	s.trackers[jobID] = tracker
	s.mu.Unlock()

	go func() {
		<-tracker.Done()
		unsubscribe()
		tracker.Close()
		s.mu.Lock()
		delete(s.trackers, jobID)
		s.mu.Unlock()
	}()
}

// runChunkLoop drives the import: chunks are dispatched strictly one at a
// time so the backend's per-job counter accumulation stays correct and a
// slow backend applies natural backpressure. The first failed chunk aborts
// the loop; rows from earlier chunks stay imported.
func (s *ImportService) runChunkLoop(ctx context.Context, job *models.ImportJob, rows [][]string, mapping map[string]int) {
	defer s.releaseJob(job.ID)

	log := s.logger.WithFields(logrus.Fields{"job_id": job.ID, "tenant_id": job.TenantID})
	chunks := chunkRows(rows, job.ChunkSize)
	log.WithFields(logrus.Fields{"total_rows": len(rows), "chunks": len(chunks)}).Info("Starting chunked import")

	for i, chunk := range chunks {
		select {
		case <-ctx.Done():
			s.failJob(job, "import cancelled", log)
			return
		default:
		}

		start := i*job.ChunkSize + 1
		end := i*job.ChunkSize + len(chunk)
		job.CurrentOperation = fmt.Sprintf("Processing rows %d-%d of %d", start, end, job.TotalRows)

		resp, err := s.dispatchChunk(ctx, job, i, chunk, mapping)
		if err != nil {
			s.failJob(job, err.Error(), log)
			return
		}

		job.CurrentChunkIndex = i
		job.ProcessedRows += len(chunk)
		job.NewRecords += resp.Stats.New
		job.Matched += resp.Stats.Matched
		job.Failed += resp.Stats.Failed
		job.Skipped += resp.Stats.Skipped
		job.LinksCreated += resp.Stats.LinksCreated
		job.UnlinkedRecords += resp.Stats.Unlinked

		if err := s.jobRepo.UpdateJobProgress(ctx, job); err != nil {
			log.WithError(err).Error("Failed to persist chunk progress")
		}
		s.logProgress(ctx, job, models.LogLevelInfo, job.CurrentOperation)
		if s.publisher != nil {
			s.publisher.PublishProgress(ctx, job)
		}

		if resp.IsComplete {
			log.WithField("chunk_index", i).Info("Backend reported job complete early")
			break
		}
	}

	s.completeJob(job, log)
}

func (s *ImportService) runFileImport(ctx context.Context, job *models.ImportJob, rows [][]string, mapping map[string]int) {
	defer s.releaseJob(job.ID)

	log := s.logger.WithFields(logrus.Fields{"job_id": job.ID, "tenant_id": job.TenantID})
	log.WithField("total_rows", len(rows)).Info("Starting whole-file import")

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.FileTimeout)
	defer cancel()

	resp, err := s.processor.ProcessFile(callCtx, &clients.FileRequest{
		JobID:      job.ID,
		TenantID:   job.TenantID,
		SupplierID: job.SupplierID,
		Rows:       rows,
		Mapping:    mapping,
	})
	if err != nil {
		s.failJob(job, err.Error(), log)
		return
	}

	job.ProcessedRows = resp.ProcessedRows
	job.NewRecords = resp.Stats.New
	job.Matched = resp.Stats.Matched
	job.Failed = resp.Stats.Failed
	job.Skipped = resp.Stats.Skipped
	job.LinksCreated = resp.Stats.LinksCreated
	job.UnlinkedRecords = resp.Stats.Unlinked
	if err := s.jobRepo.UpdateJobProgress(ctx, job); err != nil {
		log.WithError(err).Error("Failed to persist file import progress")
	}

	s.completeJob(job, log)
}

func (s *ImportService) dispatchChunk(ctx context.Context, job *models.ImportJob, index int, chunk [][]string, mapping map[string]int) (*clients.ChunkResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ChunkTimeout)
	defer cancel()

	resp, err := s.processor.ProcessChunk(callCtx, &clients.ChunkRequest{
		JobID:      job.ID,
		TenantID:   job.TenantID,
		SupplierID: job.SupplierID,
		ChunkIndex: index,
		Rows:       chunk,
		Mapping:    mapping,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk %d failed: %w", index, err)
	}
	return resp, nil
}

// completeJob marks the job terminal and classifies its outcome. A run that
// technically succeeded but skipped nearly every row is surfaced as an
// invalid-mapping result rather than a success.
func (s *ImportService) completeJob(job *models.ImportJob, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job.Status = models.ImportStatusCompleted
	job.CurrentOperation = "Completed"
	if err := s.jobRepo.UpdateJobStatus(ctx, job.ID, models.ImportStatusCompleted, ""); err != nil {
		log.WithError(err).Error("Failed to mark job completed")
	}

	outcome := models.ClassifyOutcome(job.ProcessedRows, job.Succeeded(), job.Skipped)
	switch outcome {
	case models.OutcomeNoProductsBadMapping:
		msg := "No products were imported: nearly all rows were skipped, which usually means the column mapping does not match the file"
		s.logProgress(ctx, job, models.LogLevelWarn, msg)
		log.WithFields(logrus.Fields{"processed": job.ProcessedRows, "skipped": job.Skipped}).Warn(msg)
	case models.OutcomeNoProductsOther:
		s.logProgress(ctx, job, models.LogLevelWarn, "Import finished without importing any products")
	default:
		s.logProgress(ctx, job, models.LogLevelInfo, "Import completed")
	}

	if s.publisher != nil {
		s.publisher.PublishCompleted(ctx, job)
	}
	log.WithFields(logrus.Fields{
		"processed": job.ProcessedRows,
		"succeeded": job.Succeeded(),
		"skipped":   job.Skipped,
		"failed":    job.Failed,
		"outcome":   outcome,
	}).Info("Import finished")
}

// failJob marks the job failed with the raw error message. Chunks already
// processed are not rolled back.
func (s *ImportService) failJob(job *models.ImportJob, message string, log *logrus.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	job.Status = models.ImportStatusFailed
	job.ErrorMessage = message
	if err := s.jobRepo.UpdateJobStatus(ctx, job.ID, models.ImportStatusFailed, message); err != nil {
		log.WithError(err).Error("Failed to mark job failed")
	}
	s.logProgress(ctx, job, models.LogLevelError, message)
	if s.publisher != nil {
		s.publisher.PublishCompleted(ctx, job)
	}
	log.WithField("error", message).Warn("Import failed")
}

// logProgress appends a progress log line carrying the current counter
// snapshot, so inbox-record consumers can derive progress from logs alone.
func (s *ImportService) logProgress(ctx context.Context, job *models.ImportJob, level models.LogLevel, message string) {
	jobID := job.ID
	entry := &models.ImportLogEntry{
		JobID:   &jobID,
		Level:   level,
		Message: message,
		Data: models.JSONB{
			"processed": job.ProcessedRows,
			"total":     job.TotalRows,
			"succeeded": job.Succeeded(),
			"skipped":   job.Skipped,
			"failed":    job.Failed,
			"status":    string(job.Status),
		},
	}
	if err := s.jobRepo.CreateLogEntry(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Error("Failed to write import log entry")
	}
}

func (s *ImportService) releaseJob(jobID uuid.UUID) {
	s.mu.Lock()
	if cancel, ok := s.activeJobs[jobID]; ok {
		cancel()
		delete(s.activeJobs, jobID)
	}
	s.mu.Unlock()
}

// wireMapping flattens the mapping to the backend wire form, dropping
// unmapped fields.
func wireMapping(m models.ColumnMapping) map[string]int {
	out := make(map[string]int, len(m))
	for field, col := range m {
		if col != nil {
			out[string(field)] = *col
		}
	}
	return out
}

// chunkRows slices rows into fixed-size chunks; the last chunk holds the
// remainder.
func chunkRows(rows [][]string, size int) [][][]string {
	if size <= 0 || len(rows) == 0 {
		if len(rows) == 0 {
			return nil
		}
		return [][][]string{rows}
	}
	chunks := make([][][]string, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
