package models

import (
	"time"

	"github.com/google/uuid"
)

// ImportStatus represents the lifecycle state of an import job.
// queued -> processing -> {completed | failed}; no other transitions.
type ImportStatus string

const (
	ImportStatusQueued     ImportStatus = "queued"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
)

// IsTerminal reports whether the status permits no further transitions.
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed
}

// ImportJob represents one catalog import run. Counters are written by the
// chunk processor as chunks complete and must be treated as monotonically
// non-decreasing by readers until the job is terminal.
type ImportJob struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID   string    `gorm:"type:varchar(255);not null;index:idx_import_jobs_tenant" json:"tenantId"`
	SupplierID uuid.UUID `gorm:"type:uuid;not null;index:idx_import_jobs_supplier" json:"supplierId"`

	SourceType SourceType   `gorm:"type:varchar(20);not null;default:'csv'" json:"sourceType"`
	Status     ImportStatus `gorm:"type:varchar(20);not null;default:'queued';index:idx_import_jobs_status" json:"status"`

	// Progress
	TotalRows         int `gorm:"default:0" json:"totalRows"`
	ProcessedRows     int `gorm:"default:0" json:"processedRows"`
	CurrentChunkIndex int `gorm:"default:0" json:"currentChunkIndex"`
	ChunkSize         int `gorm:"default:100" json:"chunkSize"`

	// Outcome counters
	Matched         int `gorm:"default:0" json:"matched"`
	NewRecords      int `gorm:"default:0" json:"newRecords"`
	Failed          int `gorm:"default:0" json:"failed"`
	Skipped         int `gorm:"default:0" json:"skipped"`
	LinksCreated    int `gorm:"default:0" json:"linksCreated"`
	UnlinkedRecords int `gorm:"default:0" json:"unlinkedRecords"`

	ErrorMessage string `gorm:"type:text" json:"errorMessage,omitempty"`

	// Human-readable label of the operation currently in flight
	CurrentOperation string `gorm:"type:varchar(255)" json:"currentOperation,omitempty"`

	CreatedBy   string     `gorm:"type:varchar(255)" json:"createdBy,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`
}

// TableName specifies the table name for ImportJob
func (ImportJob) TableName() string {
	return "import_jobs"
}

// Succeeded returns the net new/updated record count for the job.
func (j *ImportJob) Succeeded() int {
	return j.NewRecords + j.Matched
}

// LogLevel represents the severity level of an import log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ImportLogEntry is one progress log line. Entries reference either an
// import job or, on the legacy path, an inbox record whose embedded log
// list is the only progress source until the job id becomes known.
type ImportLogEntry struct {
	ID      uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	JobID   *uuid.UUID `gorm:"type:uuid;index:idx_import_logs_job" json:"jobId,omitempty"`
	InboxID *uuid.UUID `gorm:"type:uuid;index:idx_import_logs_inbox" json:"inboxId,omitempty"`

	Level   LogLevel `gorm:"type:varchar(20);not null;default:'info'" json:"level"`
	Message string   `gorm:"type:text;not null" json:"message"`
	Data    JSONB    `gorm:"type:jsonb;default:'{}'" json:"data,omitempty"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
}

// TableName specifies the table name for ImportLogEntry
func (ImportLogEntry) TableName() string {
	return "import_job_logs"
}

// InboxRecord is the legacy progress carrier: a per-upload record whose log
// list embeds counter snapshots. Once the backend links it to an import job
// (JobID set), job-record tracking takes over.
type InboxRecord struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	TenantID string     `gorm:"type:varchar(255);not null;index:idx_inbox_tenant" json:"tenantId"`
	JobID    *uuid.UUID `gorm:"type:uuid;index:idx_inbox_job" json:"jobId,omitempty"`

	Status ImportStatus `gorm:"type:varchar(20);not null;default:'queued'" json:"status"`

	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updatedAt"`

	Logs []ImportLogEntry `gorm:"foreignKey:InboxID" json:"logs,omitempty"`
}

// TableName specifies the table name for InboxRecord
func (InboxRecord) TableName() string {
	return "import_inbox"
}
