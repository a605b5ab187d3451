package biz

import (
	"context"
	"errors"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// Run statuses.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

var (
	ErrRunNotFound        = errors.New("extraction run not found")
	ErrRunHistoryDisabled = errors.New("run history is disabled")
	ErrModelsUnsupported  = errors.New("oracle does not list models")
)

// Metrics summarizes the work done by one run.
type Metrics struct {
	ChunksProcessed int     `json:"chunks_processed"`
	TotalTokens     int     `json:"total_tokens"`
	LLMCalls        int     `json:"llm_calls"`
	ProcessingTime  float64 `json:"processing_time"` // seconds
}

// Run is the persisted summary of one extraction.
type Run struct {
	ID           string
	Status       string
	Source       string
	Config       types.RunConfig
	Result       *types.Result
	FailedChunks []int
	Metrics      Metrics
	Error        string
	CreatedAt    time.Time
	FinishedAt   time.Time
}

// RunRepo stores run summaries.
type RunRepo interface {
	Save(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, page, pageSize int) ([]*Run, int64, error)
}

// Archive keeps the source document and the final record of a run.
type Archive interface {
	StoreDocument(ctx context.Context, runID string, doc *types.Document) error
	StoreResult(ctx context.Context, runID string, result *types.Result) error
}
