package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"supplier-import-service/internal/config"
	"supplier-import-service/internal/ingest"
	"supplier-import-service/internal/middleware"
	"supplier-import-service/internal/models"
	"supplier-import-service/internal/repository"
	"supplier-import-service/internal/services"
)

// ImportOrchestrator is the handler-facing surface of the import service.
type ImportOrchestrator interface {
	StartImport(ctx context.Context, tenantID string, req services.StartImportRequest) (*models.ImportJob, error)
	StartFileImport(ctx context.Context, tenantID string, req services.StartImportRequest) (*models.ImportJob, error)
	CancelImport(ctx context.Context, jobID uuid.UUID) error
	Progress(ctx context.Context, jobID uuid.UUID) (models.ProgressSnapshot, error)
	InboxProgress(ctx context.Context, inboxID uuid.UUID) (models.ProgressSnapshot, error)
}

// ImportHandler exposes the catalog import endpoints: preview, start,
// progress, logs and templates.
type ImportHandler struct {
	service     ImportOrchestrator
	jobRepo     repository.JobRepositoryInterface
	profileRepo repository.ProfileRepositoryInterface
	cfg         *config.Config
	logger      *logrus.Logger
}

func NewImportHandler(service ImportOrchestrator, jobRepo repository.JobRepositoryInterface, profileRepo repository.ProfileRepositoryInterface, cfg *config.Config, logger *logrus.Logger) *ImportHandler {
	return &ImportHandler{
		service:     service,
		jobRepo:     jobRepo,
		profileRepo: profileRepo,
		cfg:         cfg,
		logger:      logger,
	}
}

// PreviewResponse is the analysis result for an uploaded file before the
// user confirms the import.
type PreviewResponse struct {
	SourceType      models.SourceType    `json:"sourceType"`
	HeaderRowIndex  int                  `json:"headerRowIndex"`
	HasHeader       bool                 `json:"hasHeader"`
	Headers         []string             `json:"headers"`
	Mapping         map[string]int       `json:"mapping"`
	Confidence      models.ConfidenceMap `json:"confidence"`
	MappingQuality  int                  `json:"mappingQuality"`
	TotalRows       int                  `json:"totalRows"`
	IgnoredRows     int                  `json:"ignoredRows"`
	FilteredRows    int                  `json:"filteredRows"`
	DetectedColumns []string             `json:"detectedColumns"`
	PreviewRows     [][]string           `json:"previewRows"`
}

// PreviewImport analyzes an uploaded catalog file: header detection,
// mapping suggestion with confidence scores, filter statistics and a
// preview of the rows that would be imported
// @Summary Preview a catalog file
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Success 200 {object} models.SuccessResponse
// @Router /api/v1/catalog/import/preview [post]
func (h *ImportHandler) PreviewImport(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	rows, sourceType, ok := h.readUpload(c)
	if !ok {
		return
	}

	filter, ok := h.readFilterConfig(c)
	if !ok {
		return
	}

	hasHeader := true
	headerRowIndex := ingest.DetectHeaderRow(rows)
	switch c.DefaultPostForm("hasHeader", "auto") {
	case "false":
		// User overrode detection: every row is data.
		hasHeader = false
		headerRowIndex = -1
	case "true":
		if headerRowIndex < 0 {
			headerRowIndex = 0
		}
	default:
		// Detection falls back to row 0 even for headerless files, so
		// only trust it when that row carries a recognizable field name.
		if headerRowIndex == 0 && !ingest.LooksLikeHeader(rows[0]) {
			hasHeader = false
			headerRowIndex = -1
		}
	}

	headers := headerRow(rows, headerRowIndex)

	var existing models.ColumnMapping
	supplierID, err := uuid.Parse(c.DefaultPostForm("supplierId", ""))
	if err == nil {
		if profile, perr := h.profileRepo.GetDefault(c.Request.Context(), tenantID, supplierID); perr == nil && profile != nil {
			existing = profile.GetColumnMapping()
		}
	}

	mapping := ingest.SuggestMapping(headers, existing)
	confidence := ingest.ScoreMapping(headers, mapping)
	stats := ingest.Stats(rows, headerRowIndex, filter)
	filtered := ingest.FilteredRows(rows, headerRowIndex, filter)

	previewCount := h.cfg.PreviewRows
	if previewCount > len(filtered) {
		previewCount = len(filtered)
	}

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data: PreviewResponse{
			SourceType:      sourceType,
			HeaderRowIndex:  headerRowIndex,
			HasHeader:       hasHeader,
			Headers:         headers,
			Mapping:         wireColumns(mapping),
			Confidence:      confidence,
			MappingQuality:  confidence.Quality(),
			TotalRows:       stats.TotalRows,
			IgnoredRows:     stats.IgnoredRows,
			FilteredRows:    stats.FilteredRows,
			DetectedColumns: ingest.DetectedColumns(headers, filter),
			PreviewRows:     filtered[:previewCount],
		},
	})
}

// StartImport launches a chunked import with the user-confirmed mapping.
// The file is re-uploaded alongside the confirmed settings so the preview
// step holds no server-side state
// @Summary Start a catalog import
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Success 202 {object} models.SuccessResponse
// @Router /api/v1/catalog/import [post]
func (h *ImportHandler) StartImport(c *gin.Context) {
	h.startImport(c, false)
}

// StartFileImport launches a whole-file import where the backend does its
// own chunking
// @Summary Start a whole-file catalog import
// @Tags imports
// @Router /api/v1/catalog/import/file [post]
func (h *ImportHandler) StartFileImport(c *gin.Context) {
	h.startImport(c, true)
}

func (h *ImportHandler) startImport(c *gin.Context, wholeFile bool) {
	tenantID := middleware.GetTenantID(c)

	supplierID, err := uuid.Parse(c.DefaultPostForm("supplierId", ""))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_SUPPLIER_ID", "supplierId must be a valid UUID")
		return
	}

	rows, sourceType, ok := h.readUpload(c)
	if !ok {
		return
	}

	mapping, ok := h.readMapping(c)
	if !ok {
		return
	}
	filter, ok := h.readFilterConfig(c)
	if !ok {
		return
	}

	headerRowIndex := ingest.DetectHeaderRow(rows)
	if raw := c.DefaultPostForm("headerRowIndex", ""); raw != "" {
		if parsed, perr := strconv.Atoi(raw); perr == nil {
			headerRowIndex = parsed
		}
	}

	chunkSize := 0
	if raw := c.DefaultPostForm("chunkSize", ""); raw != "" {
		if parsed, perr := strconv.Atoi(raw); perr == nil {
			chunkSize = parsed
		}
	}

	req := services.StartImportRequest{
		SupplierID:     supplierID,
		ProfileName:    c.DefaultPostForm("profileName", ""),
		SourceType:     sourceType,
		Rows:           rows,
		HeaderRowIndex: headerRowIndex,
		Mapping:        mapping,
		Filter:         filter,
		ChunkSize:      chunkSize,
		CreatedBy:      c.GetString("user_email"),
	}

	var job *models.ImportJob
	if wholeFile {
		job, err = h.service.StartFileImport(c.Request.Context(), tenantID, req)
	} else {
		job, err = h.service.StartImport(c.Request.Context(), tenantID, req)
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "IMPORT_REJECTED", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, models.SuccessResponse{Success: true, Data: job})
}

// GetImportJob returns a single import job
// @Summary Get an import job
// @Tags imports
// @Router /api/v1/catalog/import/jobs/{id} [get]
func (h *ImportHandler) GetImportJob(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	job, err := h.jobRepo.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Import job not found")
		return
	}
	if job.TenantID != middleware.GetTenantID(c) {
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Import job not found")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: job})
}

// ListImportJobs returns the tenant's import jobs, newest first
// @Summary List import jobs
// @Tags imports
// @Router /api/v1/catalog/import/jobs [get]
func (h *ImportHandler) ListImportJobs(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	opts := repository.JobListOptions{
		TenantID: tenantID,
		Limit:    h.cfg.DefaultPageSize,
	}
	if raw := c.Query("supplierId"); raw != "" {
		supplierID, err := uuid.Parse(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_SUPPLIER_ID", "supplierId must be a valid UUID")
			return
		}
		opts.SupplierID = supplierID
	}
	if raw := c.Query("status"); raw != "" {
		opts.Status = raw
	}
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts.Limit = parsed
		}
	}
	if opts.Limit > h.cfg.MaxPageSize {
		opts.Limit = h.cfg.MaxPageSize
	}
	if raw := c.Query("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			opts.Offset = parsed
		}
	}

	jobs, total, err := h.jobRepo.ListJobs(c.Request.Context(), opts)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list import jobs")
		respondError(c, http.StatusInternalServerError, "LIST_FAILED", "Failed to list import jobs")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    jobs,
		"pagination": gin.H{
			"total":  total,
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

// GetJobLogs returns the progress log of an import job
// @Summary Get import job logs
// @Tags imports
// @Router /api/v1/catalog/import/jobs/{id}/logs [get]
func (h *ImportHandler) GetJobLogs(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	opts := repository.LogListOptions{Limit: h.cfg.MaxPageSize}
	if raw := c.Query("level"); raw != "" {
		opts.Level = raw
	}

	logs, err := h.jobRepo.GetJobLogs(c.Request.Context(), jobID, opts)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load import job logs")
		respondError(c, http.StatusInternalServerError, "LOGS_FAILED", "Failed to load import job logs")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: logs})
}

// GetJobProgress returns the reconciled progress view for an import job
// @Summary Get import job progress
// @Tags imports
// @Router /api/v1/catalog/import/jobs/{id}/progress [get]
func (h *ImportHandler) GetJobProgress(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	snap, err := h.service.Progress(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, http.StatusNotFound, "JOB_NOT_FOUND", "Import job not found")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: snap})
}

// GetInboxProgress returns progress for a legacy inbox record, following
// the record's job reference when one exists
// @Summary Get inbox record progress
// @Tags imports
// @Router /api/v1/catalog/import/inbox/{id}/progress [get]
func (h *ImportHandler) GetInboxProgress(c *gin.Context) {
	inboxID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	snap, err := h.service.InboxProgress(c.Request.Context(), inboxID)
	if err != nil {
		respondError(c, http.StatusNotFound, "INBOX_NOT_FOUND", "Inbox record not found")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: snap})
}

// CancelImportJob aborts a running import; already-processed rows are kept
// @Summary Cancel an import job
// @Tags imports
// @Router /api/v1/catalog/import/jobs/{id}/cancel [post]
func (h *ImportHandler) CancelImportJob(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.service.CancelImport(c.Request.Context(), jobID); err != nil {
		respondError(c, http.StatusConflict, "NOT_RUNNING", err.Error())
		return
	}

	message := "Import cancellation requested"
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: &message})
}

// GetImportStats returns aggregate job counts for the tenant
// @Summary Get import statistics
// @Tags imports
// @Router /api/v1/catalog/import/stats [get]
func (h *ImportHandler) GetImportStats(c *gin.Context) {
	stats, err := h.jobRepo.GetJobStats(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		h.logger.WithError(err).Error("Failed to load import stats")
		respondError(c, http.StatusInternalServerError, "STATS_FAILED", "Failed to load import statistics")
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: stats})
}

// GetImportTemplate returns the catalog template definition or file
// @Summary Download the catalog import template
// @Tags imports
// @Router /api/v1/catalog/import/template [get]
func (h *ImportHandler) GetImportTemplate(c *gin.Context) {
	template := models.CatalogImportTemplate()

	switch c.DefaultQuery("format", "json") {
	case "csv":
		h.writeCSVTemplate(c, template)
	case "xlsx":
		h.writeXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{
			"success":  true,
			"template": template,
		})
	}
}

func (h *ImportHandler) writeCSVTemplate(c *gin.Context, template models.ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment; filename=catalog_import_template.csv")

	writer := csv.NewWriter(c.Writer)
	writer.Comma = ingest.DefaultDelimiter
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	writer.Write(headers)
}

func (h *ImportHandler) writeXLSXTemplate(c *gin.Context, template models.ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Catalog"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)
		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}
		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 20)
	}

	f.NewSheet("Instructions")
	f.SetCellValue("Instructions", "A1", "Supplier Catalog Import Instructions")
	f.SetCellValue("Instructions", "A3", "Columns marked * are required. A row missing the product name or purchase price is skipped.")
	f.SetCellValue("Instructions", "A4", "Provide an EAN or a supplier reference so existing products can be matched instead of duplicated.")

	f.SetCellValue("Instructions", "A6", "Column Definitions:")
	f.SetCellValue("Instructions", "A7", "Column")
	f.SetCellValue("Instructions", "B7", "Description")
	f.SetCellValue("Instructions", "C7", "Required")
	f.SetCellValue("Instructions", "D7", "Type")
	f.SetCellValue("Instructions", "E7", "Example")
	for i, col := range template.Columns {
		row := i + 8
		f.SetCellValue("Instructions", fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue("Instructions", fmt.Sprintf("B%d", row), col.Description)
		required := "Optional"
		if col.Required {
			required = "Required"
		}
		f.SetCellValue("Instructions", fmt.Sprintf("C%d", row), required)
		f.SetCellValue("Instructions", fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue("Instructions", fmt.Sprintf("E%d", row), col.Example)
	}
	f.SetColWidth("Instructions", "A", "A", 25)
	f.SetColWidth("Instructions", "B", "B", 60)
	f.SetColWidth("Instructions", "C", "C", 15)
	f.SetColWidth("Instructions", "D", "D", 15)
	f.SetColWidth("Instructions", "E", "E", 40)

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=catalog_import_template.xlsx")
	f.Write(c.Writer)
}

// readUpload parses the uploaded multipart file into a row matrix. On error
// it writes the response itself and returns ok=false.
func (h *ImportHandler) readUpload(c *gin.Context) ([][]string, models.SourceType, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "FILE_REQUIRED", "Please upload a CSV or Excel file")
		return nil, "", false
	}
	defer file.Close()

	delimiter := ingest.DefaultDelimiter
	if raw := c.DefaultPostForm("delimiter", ""); raw != "" {
		delimiter, _ = utf8.DecodeRuneInString(raw)
	}

	rows, sourceType, err := ingest.ParseFile(header.Filename, file, delimiter)
	if err != nil {
		respondError(c, http.StatusBadRequest, "PARSE_FAILED", err.Error())
		return nil, "", false
	}
	if len(rows) == 0 {
		respondError(c, http.StatusBadRequest, "EMPTY_FILE", "The uploaded file contains no rows")
		return nil, "", false
	}
	return rows, sourceType, true
}

func (h *ImportHandler) readMapping(c *gin.Context) (models.ColumnMapping, bool) {
	raw := c.DefaultPostForm("mapping", "")
	if raw == "" {
		respondError(c, http.StatusBadRequest, "MAPPING_REQUIRED", "A column mapping is required to start an import")
		return nil, false
	}
	var wire map[string]int
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_MAPPING", "mapping must be a JSON object of field to column index")
		return nil, false
	}
	mapping := models.NewColumnMapping()
	for field, col := range wire {
		mapping.Set(models.CanonicalField(field), col)
	}
	return mapping, true
}

func (h *ImportHandler) readFilterConfig(c *gin.Context) (models.FilterConfig, bool) {
	var filter models.FilterConfig
	raw := c.DefaultPostForm("filter", "")
	if raw == "" {
		return filter, true
	}
	if err := json.Unmarshal([]byte(raw), &filter); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FILTER", "filter must be a JSON filter configuration")
		return filter, false
	}
	return filter, true
}

func headerRow(rows [][]string, headerRowIndex int) []string {
	if headerRowIndex >= 0 && headerRowIndex < len(rows) {
		return rows[headerRowIndex]
	}
	// No header: synthesize positional column labels.
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	headers := make([]string, width)
	for i := range headers {
		headers[i] = fmt.Sprintf("Column %d", i+1)
	}
	return headers
}

func wireColumns(m models.ColumnMapping) map[string]int {
	fields := models.AllCanonicalFields()
	out := make(map[string]int, len(fields))
	for _, field := range fields {
		out[string(field)] = m.ColumnFor(field)
	}
	return out
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", fmt.Sprintf("%s must be a valid UUID", name))
		return uuid.Nil, false
	}
	return id, true
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: strings.TrimSpace(message),
		},
	})
}
