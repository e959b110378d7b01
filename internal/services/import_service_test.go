package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"supplier-import-service/internal/clients"
	"supplier-import-service/internal/config"
	"supplier-import-service/internal/models"
	"supplier-import-service/internal/repository"
)

// MockJobRepository is a mock implementation of JobRepositoryInterface
type MockJobRepository struct {
	mock.Mock
}

// Ensure MockJobRepository implements the interface
var _ repository.JobRepositoryInterface = (*MockJobRepository)(nil)

func (m *MockJobRepository) CreateJob(ctx context.Context, job *models.ImportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetJobByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockJobRepository) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.ImportStatus, errorMessage string) error {
	args := m.Called(ctx, id, status, errorMessage)
	return args.Error(0)
}

func (m *MockJobRepository) UpdateJobProgress(ctx context.Context, job *models.ImportJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) ListJobs(ctx context.Context, opts repository.JobListOptions) ([]models.ImportJob, int64, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]models.ImportJob), args.Get(1).(int64), args.Error(2)
}

func (m *MockJobRepository) CreateLogEntry(ctx context.Context, entry *models.ImportLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockJobRepository) GetJobLogs(ctx context.Context, jobID uuid.UUID, opts repository.LogListOptions) ([]models.ImportLogEntry, error) {
	args := m.Called(ctx, jobID, opts)
	return args.Get(0).([]models.ImportLogEntry), args.Error(1)
}

func (m *MockJobRepository) GetInboxByID(ctx context.Context, id uuid.UUID) (*models.InboxRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InboxRecord), args.Error(1)
}

func (m *MockJobRepository) GetJobStats(ctx context.Context, tenantID string) (*repository.JobStats, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.JobStats), args.Error(1)
}

// MockProfileRepository is a mock implementation of ProfileRepositoryInterface
type MockProfileRepository struct {
	mock.Mock
}

var _ repository.ProfileRepositoryInterface = (*MockProfileRepository)(nil)

func (m *MockProfileRepository) UpsertDefault(ctx context.Context, profile *models.MappingProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileRepository) GetDefault(ctx context.Context, tenantID string, supplierID uuid.UUID) (*models.MappingProfile, error) {
	args := m.Called(ctx, tenantID, supplierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MappingProfile), args.Error(1)
}

func (m *MockProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.MappingProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MappingProfile), args.Error(1)
}

func (m *MockProfileRepository) ListBySupplier(ctx context.Context, tenantID string, supplierID uuid.UUID) ([]models.MappingProfile, error) {
	args := m.Called(ctx, tenantID, supplierID)
	return args.Get(0).([]models.MappingProfile), args.Error(1)
}

func (m *MockProfileRepository) Save(ctx context.Context, profile *models.MappingProfile) error {
	args := m.Called(ctx, profile)
	return args.Error(0)
}

func (m *MockProfileRepository) Delete(ctx context.Context, tenantID string, id uuid.UUID) error {
	args := m.Called(ctx, tenantID, id)
	return args.Error(0)
}

// MockChunkProcessor is a mock implementation of ChunkProcessor
type MockChunkProcessor struct {
	mock.Mock
}

var _ ChunkProcessor = (*MockChunkProcessor)(nil)

func (m *MockChunkProcessor) ProcessChunk(ctx context.Context, req *clients.ChunkRequest) (*clients.ChunkResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.ChunkResponse), args.Error(1)
}

func (m *MockChunkProcessor) ProcessFile(ctx context.Context, req *clients.FileRequest) (*clients.FileResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.FileResponse), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		ChunkSize:    100,
		MaxChunkSize: 500,
		ChunkTimeout: 5 * time.Second,
		FileTimeout:  5 * time.Second,
		// Keep the poll loop quiet during unit tests.
		PollInterval: time.Hour,
		GracePeriod:  time.Millisecond,
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func validMapping() models.ColumnMapping {
	m := models.NewColumnMapping()
	m.Set(models.FieldProductName, 0)
	m.Set(models.FieldPurchasePrice, 1)
	m.Set(models.FieldEAN, 2)
	return m
}

func makeRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("Produit %d", i), "10.00", "1234567890123"}
	}
	return rows
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("import did not finish in time")
	}
}

func TestStartImport_DispatchesChunksSequentially(t *testing.T) {
	jobRepo := new(MockJobRepository)
	profileRepo := new(MockProfileRepository)
	processor := new(MockChunkProcessor)

	var mu sync.Mutex
	var chunkSizes []int
	var chunkIndexes []int
	done := make(chan struct{})

	profileRepo.On("UpsertDefault", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobProgress", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateLogEntry", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, mock.Anything, models.ImportStatusCompleted, "").
		Run(func(args mock.Arguments) { close(done) }).Return(nil)

	processor.On("ProcessChunk", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(*clients.ChunkRequest)
			mu.Lock()
			chunkSizes = append(chunkSizes, len(req.Rows))
			chunkIndexes = append(chunkIndexes, req.ChunkIndex)
			mu.Unlock()
		}).
		Return(&clients.ChunkResponse{Stats: clients.ChunkStats{New: 1}}, nil)

	service := NewImportService(jobRepo, profileRepo, processor, nil, nil, testConfig(), testLogger())

	job, err := service.StartImport(context.Background(), "tenant-1", StartImportRequest{
		SupplierID:     uuid.New(),
		SourceType:     models.SourceTypeCSV,
		Rows:           makeRows(250),
		HeaderRowIndex: -1,
		Mapping:        validMapping(),
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, 250, job.TotalRows)

	waitFor(t, done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{100, 100, 50}, chunkSizes)
	assert.Equal(t, []int{0, 1, 2}, chunkIndexes)
	processor.AssertNumberOfCalls(t, "ProcessChunk", 3)
}

func TestStartImport_ReturnedJobDetachedFromChunkLoop(t *testing.T) {
	jobRepo := new(MockJobRepository)
	profileRepo := new(MockProfileRepository)
	processor := new(MockChunkProcessor)

	done := make(chan struct{})

	profileRepo.On("UpsertDefault", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobProgress", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateLogEntry", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, mock.Anything, models.ImportStatusCompleted, "").
		Run(func(args mock.Arguments) { close(done) }).Return(nil)

	processor.On("ProcessChunk", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { time.Sleep(time.Millisecond) }).
		Return(&clients.ChunkResponse{Stats: clients.ChunkStats{New: 1}}, nil)

	service := NewImportService(jobRepo, profileRepo, processor, nil, nil, testConfig(), testLogger())

	job, err := service.StartImport(context.Background(), "tenant-1", StartImportRequest{
		SupplierID:     uuid.New(),
		SourceType:     models.SourceTypeCSV,
		Rows:           makeRows(250),
		HeaderRowIndex: -1,
		Mapping:        validMapping(),
	})
	require.NoError(t, err)

	// Serializing the returned record must be safe while chunks process.
	for i := 0; i < 50; i++ {
		_, merr := json.Marshal(job)
		require.NoError(t, merr)
	}

	waitFor(t, done)

	// The caller's record is a snapshot taken at accept time.
	assert.Equal(t, 0, job.ProcessedRows)
	assert.Equal(t, models.ImportStatusProcessing, job.Status)
}

func TestStartImport_ChunkFailureStopsLoop(t *testing.T) {
	jobRepo := new(MockJobRepository)
	profileRepo := new(MockProfileRepository)
	processor := new(MockChunkProcessor)

	var mu sync.Mutex
	var lastProgress models.ImportJob
	var failMessage string
	done := make(chan struct{})

	profileRepo.On("UpsertDefault", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobProgress", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			j := args.Get(1).(*models.ImportJob)
			mu.Lock()
			lastProgress = *j
			mu.Unlock()
		}).Return(nil)
	jobRepo.On("CreateLogEntry", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, mock.Anything, models.ImportStatusFailed, mock.Anything).
		Run(func(args mock.Arguments) {
			mu.Lock()
			failMessage = args.Get(3).(string)
			mu.Unlock()
			close(done)
		}).Return(nil)

	processor.On("ProcessChunk", mock.Anything, mock.MatchedBy(func(req *clients.ChunkRequest) bool {
		return req.ChunkIndex == 0
	})).Return(&clients.ChunkResponse{Stats: clients.ChunkStats{New: 100}}, nil)
	processor.On("ProcessChunk", mock.Anything, mock.MatchedBy(func(req *clients.ChunkRequest) bool {
		return req.ChunkIndex == 1
	})).Return(nil, errors.New("backend unavailable"))

	service := NewImportService(jobRepo, profileRepo, processor, nil, nil, testConfig(), testLogger())

	_, err := service.StartImport(context.Background(), "tenant-1", StartImportRequest{
		SupplierID:     uuid.New(),
		SourceType:     models.SourceTypeCSV,
		Rows:           makeRows(250),
		HeaderRowIndex: -1,
		Mapping:        validMapping(),
	})
	require.NoError(t, err)

	waitFor(t, done)

	// Chunk 3 is never sent; rows from chunk 1 stay imported.
	processor.AssertNumberOfCalls(t, "ProcessChunk", 2)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, lastProgress.ProcessedRows)
	assert.Contains(t, failMessage, "chunk 1")
}

func TestStartImport_RejectsMappingWithoutIdentifier(t *testing.T) {
	jobRepo := new(MockJobRepository)
	profileRepo := new(MockProfileRepository)
	processor := new(MockChunkProcessor)

	mapping := models.NewColumnMapping()
	mapping.Set(models.FieldProductName, 0)
	mapping.Set(models.FieldPurchasePrice, 1)

	service := NewImportService(jobRepo, profileRepo, processor, nil, nil, testConfig(), testLogger())

	_, err := service.StartImport(context.Background(), "tenant-1", StartImportRequest{
		SupplierID: uuid.New(),
		Rows:       makeRows(10),
		Mapping:    mapping,
	})

	require.Error(t, err)
	jobRepo.AssertNotCalled(t, "CreateJob")
	processor.AssertNotCalled(t, "ProcessChunk")
}

func TestStartImport_DegenerateSkipRatioLogged(t *testing.T) {
	jobRepo := new(MockJobRepository)
	profileRepo := new(MockProfileRepository)
	processor := new(MockChunkProcessor)

	var mu sync.Mutex
	var warnings []string
	done := make(chan struct{})

	profileRepo.On("UpsertDefault", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobProgress", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateLogEntry", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			entry := args.Get(1).(*models.ImportLogEntry)
			if entry.Level == models.LogLevelWarn {
				mu.Lock()
				warnings = append(warnings, entry.Message)
				mu.Unlock()
			}
		}).Return(nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, mock.Anything, models.ImportStatusCompleted, "").
		Run(func(args mock.Arguments) { close(done) }).Return(nil)

	// Every row skipped, nothing created or matched.
	processor.On("ProcessChunk", mock.Anything, mock.Anything).
		Return(&clients.ChunkResponse{Stats: clients.ChunkStats{Skipped: 100}}, nil)

	service := NewImportService(jobRepo, profileRepo, processor, nil, nil, testConfig(), testLogger())

	_, err := service.StartImport(context.Background(), "tenant-1", StartImportRequest{
		SupplierID:     uuid.New(),
		SourceType:     models.SourceTypeCSV,
		Rows:           makeRows(100),
		HeaderRowIndex: -1,
		Mapping:        validMapping(),
	})
	require.NoError(t, err)

	waitFor(t, done)
	// completeJob logs after flipping the status, so give it a beat.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[len(warnings)-1], "column mapping")
}

func TestStartImport_BackendEarlyCompletionStopsDispatch(t *testing.T) {
	jobRepo := new(MockJobRepository)
	profileRepo := new(MockProfileRepository)
	processor := new(MockChunkProcessor)

	done := make(chan struct{})

	profileRepo.On("UpsertDefault", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobProgress", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateLogEntry", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, mock.Anything, models.ImportStatusCompleted, "").
		Run(func(args mock.Arguments) { close(done) }).Return(nil)

	processor.On("ProcessChunk", mock.Anything, mock.Anything).
		Return(&clients.ChunkResponse{Stats: clients.ChunkStats{New: 100}, IsComplete: true}, nil)

	service := NewImportService(jobRepo, profileRepo, processor, nil, nil, testConfig(), testLogger())

	_, err := service.StartImport(context.Background(), "tenant-1", StartImportRequest{
		SupplierID:     uuid.New(),
		SourceType:     models.SourceTypeCSV,
		Rows:           makeRows(250),
		HeaderRowIndex: -1,
		Mapping:        validMapping(),
	})
	require.NoError(t, err)

	waitFor(t, done)

	processor.AssertNumberOfCalls(t, "ProcessChunk", 1)
}

func TestStartFileImport_SingleBackendCall(t *testing.T) {
	jobRepo := new(MockJobRepository)
	profileRepo := new(MockProfileRepository)
	processor := new(MockChunkProcessor)

	var mu sync.Mutex
	var lastProgress models.ImportJob
	done := make(chan struct{})

	profileRepo.On("UpsertDefault", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("CreateJob", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobProgress", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			j := args.Get(1).(*models.ImportJob)
			mu.Lock()
			lastProgress = *j
			mu.Unlock()
		}).Return(nil)
	jobRepo.On("CreateLogEntry", mock.Anything, mock.Anything).Return(nil)
	jobRepo.On("UpdateJobStatus", mock.Anything, mock.Anything, models.ImportStatusCompleted, "").
		Run(func(args mock.Arguments) { close(done) }).Return(nil)

	processor.On("ProcessFile", mock.Anything, mock.Anything).
		Return(&clients.FileResponse{Stats: clients.ChunkStats{New: 240, Skipped: 10}, ProcessedRows: 250}, nil)

	service := NewImportService(jobRepo, profileRepo, processor, nil, nil, testConfig(), testLogger())

	_, err := service.StartFileImport(context.Background(), "tenant-1", StartImportRequest{
		SupplierID:     uuid.New(),
		SourceType:     models.SourceTypeXLSX,
		Rows:           makeRows(250),
		HeaderRowIndex: -1,
		Mapping:        validMapping(),
	})
	require.NoError(t, err)

	waitFor(t, done)

	processor.AssertNumberOfCalls(t, "ProcessFile", 1)
	processor.AssertNotCalled(t, "ProcessChunk")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 250, lastProgress.ProcessedRows)
	assert.Equal(t, 240, lastProgress.NewRecords)
}

func TestCancelImport_UnknownJob(t *testing.T) {
	service := NewImportService(new(MockJobRepository), new(MockProfileRepository), new(MockChunkProcessor), nil, nil, testConfig(), testLogger())

	err := service.CancelImport(context.Background(), uuid.New())

	assert.Error(t, err)
}
