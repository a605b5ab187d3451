package service

import (
	"encoding/json"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// ExtractRequest is the body of POST /extract and /extract/stream.
type ExtractRequest struct {
	Text   string   `json:"text" binding:"required"`
	Fields []string `json:"fields" binding:"required"`

	ChunkingMethod string `json:"chunking_method"`
	ChunkSize      *int   `json:"chunk_size"`
	ChunkOverlap   *int   `json:"chunk_overlap"`
	MinChunkSize   *int   `json:"min_chunk_size"`
	MaxWorkers     *int   `json:"max_workers"`

	OutputFormat  string   `json:"output_format"`
	SystemPrompt  string   `json:"system_prompt"`
	DateFields    []string `json:"date_fields"`
	DateFormat    string   `json:"date_format"`
	UnknownValue  string   `json:"unknown_value"`
	ListFields    []string `json:"list_fields"`
	ListSeparator string   `json:"list_separator"`
	Provenance    bool     `json:"provenance"`
}

// ExtractResponse is the success body of an extraction.
type ExtractResponse struct {
	Status          string                      `json:"status"`
	RequestID       string                      `json:"request_id"`
	RunID           string                      `json:"run_id"`
	ProcessingTime  float64                     `json:"processing_time"`
	ExtractedFields json.RawMessage             `json:"extracted_fields"`
	Metrics         biz.Metrics                 `json:"metrics"`
	FailedChunks    []int                       `json:"failed_chunks"`
	Warnings        []string                    `json:"warnings"`
	Provenance      map[string]types.Provenance `json:"provenance,omitempty"`
	FormattedOutput string                      `json:"formatted_output,omitempty"`
}

// ChunkEvent is streamed once per chunk outcome.
type ChunkEvent struct {
	ChunkIndex int    `json:"chunk_index"`
	Failed     bool   `json:"failed"`
	Reason     string `json:"reason,omitempty"`
	Completed  int    `json:"completed"`
}

// RunResponse is one recorded run.
type RunResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Source       string            `json:"source"`
	Fields       []string          `json:"fields"`
	Values       map[string]string `json:"extracted_fields,omitempty"`
	FailedChunks []int             `json:"failed_chunks"`
	Metrics      biz.Metrics       `json:"metrics"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// ListRunsResponse is a page of runs.
type ListRunsResponse struct {
	Status    string         `json:"status"`
	RequestID string         `json:"request_id"`
	Items     []*RunResponse `json:"items"`
	Total     int64          `json:"total"`
	Page      int            `json:"page"`
	PageSize  int            `json:"page_size"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string  `json:"status"`
	Version   string  `json:"version"`
	Uptime    float64 `json:"uptime"`
	LLMStatus string  `json:"llm_status"`
}

func toRunResponse(run *biz.Run) *RunResponse {
	resp := &RunResponse{
		ID:           run.ID,
		Status:       run.Status,
		Source:       run.Source,
		Fields:       run.Config.Fields,
		FailedChunks: run.FailedChunks,
		Metrics:      run.Metrics,
		Error:        run.Error,
		CreatedAt:    run.CreatedAt,
		FinishedAt:   run.FinishedAt,
	}
	if resp.FailedChunks == nil {
		resp.FailedChunks = []int{}
	}
	if run.Result != nil {
		resp.Values = run.Result.Values
	}
	return resp
}

func warningsOf(result *types.Result) []string {
	out := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		out = append(out, w.String())
	}
	return out
}
