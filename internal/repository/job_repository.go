package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"supplier-import-service/internal/models"
)

// JobCacheTTL is deliberately short: job records change on every chunk, the
// cache only absorbs poll-driven read bursts.
const JobCacheTTL = 2 * time.Second

// JobRepositoryInterface defines the import job persistence contract
type JobRepositoryInterface interface {
	CreateJob(ctx context.Context, job *models.ImportJob) error
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.ImportStatus, errorMessage string) error
	UpdateJobProgress(ctx context.Context, job *models.ImportJob) error
	ListJobs(ctx context.Context, opts JobListOptions) ([]models.ImportJob, int64, error)
	CreateLogEntry(ctx context.Context, entry *models.ImportLogEntry) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID, opts LogListOptions) ([]models.ImportLogEntry, error)
	GetInboxByID(ctx context.Context, id uuid.UUID) (*models.InboxRecord, error)
	GetJobStats(ctx context.Context, tenantID string) (*JobStats, error)
}

// JobRepository handles database operations for import jobs, with a short
// Redis read-through cache on single-job lookups
type JobRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// Ensure JobRepository implements the interface
var _ JobRepositoryInterface = (*JobRepository)(nil)

// NewJobRepository creates a new job repository
func NewJobRepository(db *gorm.DB, redisClient *redis.Client) *JobRepository {
	return &JobRepository{db: db, redis: redisClient}
}

func jobCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("imports:job:%s", id.String())
}

func (r *JobRepository) invalidateJobCache(ctx context.Context, id uuid.UUID) {
	if r.redis == nil {
		return
	}
	_ = r.redis.Del(ctx, jobCacheKey(id)).Err()
}

// CreateJob creates a new import job
func (r *JobRepository) CreateJob(ctx context.Context, job *models.ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(job).Error
}

// GetJobByID retrieves an import job, serving poll bursts from Redis
func (r *JobRepository) GetJobByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	if r.redis != nil {
		if cached, err := r.redis.Get(ctx, jobCacheKey(id)).Result(); err == nil {
			var job models.ImportJob
			if json.Unmarshal([]byte(cached), &job) == nil {
				return &job, nil
			}
		}
	}

	var job models.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(&job); err == nil {
			_ = r.redis.Set(ctx, jobCacheKey(id), data, JobCacheTTL).Err()
		}
	}
	return &job, nil
}

// UpdateJobStatus updates the job status, stamping CompletedAt on terminal
// transitions. Terminal jobs are immutable: a status write against a
// completed or failed job is a no-op.
func (r *JobRepository) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.ImportStatus, errorMessage string) error {
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"updated_at":    time.Now(),
	}
	if status.IsTerminal() {
		now := time.Now()
		updates["completed_at"] = &now
	}
	err := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ? AND status NOT IN ?", id, []models.ImportStatus{
			models.ImportStatusCompleted,
			models.ImportStatusFailed,
		}).
		Updates(updates).Error
	r.invalidateJobCache(ctx, id)
	return err
}

// UpdateJobProgress persists the job's progress counters and current
// operation label. Counter columns only ever grow while the job runs, so a
// plain overwrite is safe under the sequential chunk loop.
func (r *JobRepository) UpdateJobProgress(ctx context.Context, job *models.ImportJob) error {
	err := r.db.WithContext(ctx).
		Model(&models.ImportJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"processed_rows":      job.ProcessedRows,
			"current_chunk_index": job.CurrentChunkIndex,
			"matched":             job.Matched,
			"new_records":         job.NewRecords,
			"failed":              job.Failed,
			"skipped":             job.Skipped,
			"links_created":       job.LinksCreated,
			"unlinked_records":    job.UnlinkedRecords,
			"current_operation":   job.CurrentOperation,
			"updated_at":          time.Now(),
		}).Error
	r.invalidateJobCache(ctx, job.ID)
	return err
}

// ListJobs retrieves import jobs with pagination and filtering
func (r *JobRepository) ListJobs(ctx context.Context, opts JobListOptions) ([]models.ImportJob, int64, error) {
	var jobs []models.ImportJob
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ImportJob{})
	if opts.TenantID != "" {
		query = query.Where("tenant_id = ?", opts.TenantID)
	}
	if opts.SupplierID != uuid.Nil {
		query = query.Where("supplier_id = ?", opts.SupplierID)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	query = query.Order("created_at DESC")

	if err := query.Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

// CreateLogEntry creates an import log entry
func (r *JobRepository) CreateLogEntry(ctx context.Context, entry *models.ImportLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

// GetJobLogs retrieves logs for an import job
func (r *JobRepository) GetJobLogs(ctx context.Context, jobID uuid.UUID, opts LogListOptions) ([]models.ImportLogEntry, error) {
	var logs []models.ImportLogEntry
	query := r.db.WithContext(ctx).Where("job_id = ?", jobID)

	if opts.Level != "" {
		query = query.Where("level = ?", opts.Level)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	err := query.Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// GetInboxByID retrieves a legacy inbox record with its embedded log list
func (r *JobRepository) GetInboxByID(ctx context.Context, id uuid.UUID) (*models.InboxRecord, error) {
	var record models.InboxRecord
	err := r.db.WithContext(ctx).
		Preload("Logs", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetJobStats retrieves import statistics for a tenant
func (r *JobRepository) GetJobStats(ctx context.Context, tenantID string) (*JobStats, error) {
	stats := &JobStats{}

	if err := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Where("tenant_id = ?", tenantID).
		Count(&stats.TotalJobs).Error; err != nil {
		return nil, err
	}

	var statusCounts []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.ImportJob{}).
		Select("status, count(*) as count").
		Where("tenant_id = ?", tenantID).
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}
	for _, sc := range statusCounts {
		switch models.ImportStatus(sc.Status) {
		case models.ImportStatusCompleted:
			stats.CompletedJobs = sc.Count
		case models.ImportStatusFailed:
			stats.FailedJobs = sc.Count
		case models.ImportStatusProcessing:
			stats.RunningJobs = sc.Count
		}
	}

	var lastJob models.ImportJob
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.ImportStatusCompleted).
		Order("completed_at DESC").
		First(&lastJob).Error; err == nil && lastJob.CompletedAt != nil {
		stats.LastImportAt = lastJob.CompletedAt
	}

	return stats, nil
}

// JobListOptions contains options for listing import jobs
type JobListOptions struct {
	TenantID   string
	SupplierID uuid.UUID
	Status     string
	Limit      int
	Offset     int
}

// LogListOptions contains options for listing logs
type LogListOptions struct {
	Level  string
	Limit  int
	Offset int
}

// JobStats contains import statistics
type JobStats struct {
	TotalJobs     int64      `json:"totalJobs"`
	CompletedJobs int64      `json:"completedJobs"`
	FailedJobs    int64      `json:"failedJobs"`
	RunningJobs   int64      `json:"runningJobs"`
	LastImportAt  *time.Time `json:"lastImportAt,omitempty"`
}
