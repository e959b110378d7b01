package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// ProcessorClient handles communication with the catalog-matching backend
// that consumes row chunks and matches/creates/updates product records.
type ProcessorClient struct {
	baseURL    string
	httpClient *http.Client
}

// ChunkRequest is one processing unit of an import: a fixed-size slice of
// filtered rows plus the column mapping the backend needs to read them.
type ChunkRequest struct {
	JobID      uuid.UUID      `json:"jobId"`
	TenantID   string         `json:"tenantId"`
	SupplierID uuid.UUID      `json:"supplierId"`
	ChunkIndex int            `json:"chunkIndex"`
	Rows       [][]string     `json:"rows"`
	Mapping    map[string]int `json:"columnMapping"`
}

// ChunkStats carries the backend's per-chunk match counters.
type ChunkStats struct {
	New          int `json:"new"`
	Matched      int `json:"matched"`
	Failed       int `json:"failed"`
	Skipped      int `json:"skipped"`
	LinksCreated int `json:"linksCreated"`
	Unlinked     int `json:"unlinked"`
}

// ChunkResponse is the backend's answer for one chunk. IsComplete signals
// that the backend considers the job finished and no further chunks are
// needed.
type ChunkResponse struct {
	Stats      ChunkStats `json:"stats"`
	IsComplete bool       `json:"isComplete"`
}

// FileRequest hands a whole columnar delimited file to the backend, which
// performs its own internal chunking.
type FileRequest struct {
	JobID      uuid.UUID      `json:"jobId"`
	TenantID   string         `json:"tenantId"`
	SupplierID uuid.UUID      `json:"supplierId"`
	Rows       [][]string     `json:"rows"`
	Mapping    map[string]int `json:"columnMapping"`
}

// FileResponse is the backend's answer for a whole-file import.
type FileResponse struct {
	Stats         ChunkStats `json:"stats"`
	ProcessedRows int        `json:"processedRows"`
}

// NewProcessorClient creates a new processor client. The per-call timeout
// bounds a single chunk round-trip so a stalled backend cannot block the
// chunk loop forever.
func NewProcessorClient(timeout time.Duration) *ProcessorClient {
	baseURL := os.Getenv("PROCESSOR_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://catalog-processor:8080"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ProcessorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ProcessChunk sends one chunk for processing and waits for its result. The
// backend accumulates counters keyed by job id, so callers must not dispatch
// chunks of the same job concurrently.
func (c *ProcessorClient) ProcessChunk(ctx context.Context, req *ChunkRequest) (*ChunkResponse, error) {
	var resp ChunkResponse
	if err := c.post(ctx, "/api/v1/catalog/chunks", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProcessFile sends a whole filtered file for backend-side chunked
// processing.
func (c *ProcessorClient) ProcessFile(ctx context.Context, req *FileRequest) (*FileResponse, error) {
	var resp FileResponse
	if err := c.post(ctx, "/api/v1/catalog/files", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *ProcessorClient) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("processor request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read processor response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("processor returned status %d: %s", httpResp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode processor response: %w", err)
	}
	return nil
}
