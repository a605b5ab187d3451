package biz

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/chunker"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/dispatcher"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/merger"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/normalizer"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/oracle"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"go.uber.org/zap"
)

// Request is one extraction over one document.
type Request struct {
	Document *types.Document
	Config   types.RunConfig

	// OnOutcome receives each chunk outcome as soon as it is known.
	OnOutcome func(types.Outcome)
}

// Report is the outcome of a successful run.
type Report struct {
	RunID    string
	Result   *types.Result
	Chunks   []types.Chunk
	Outcomes []types.Outcome
	Metrics  Metrics
}

// Extractor runs the chunk, dispatch, merge and normalize pipeline.
type Extractor struct {
	oracle  oracle.Oracle
	counter chunker.TokenCounter
	runs    RunRepo
	archive Archive
	logger  *logger.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRunRepo records every run in repo.
func WithRunRepo(repo RunRepo) Option {
	return func(e *Extractor) { e.runs = repo }
}

// WithArchive stores documents and results of successful runs.
func WithArchive(a Archive) Option {
	return func(e *Extractor) { e.archive = a }
}

// WithTokenCounter overrides the chunk token counter.
func WithTokenCounter(c chunker.TokenCounter) Option {
	return func(e *Extractor) { e.counter = c }
}

func NewExtractor(o oracle.Oracle, lgr *logger.Logger, opts ...Option) *Extractor {
	if lgr == nil {
		lgr = logger.L()
	}
	e := &Extractor{oracle: o, logger: lgr.Named("extractor")}
	for _, opt := range opts {
		opt(e)
	}
	if e.counter == nil {
		e.counter = chunker.DefaultCounter(lgr)
	}
	return e
}

// HistoryEnabled reports whether runs are persisted.
func (e *Extractor) HistoryEnabled() bool {
	return e.runs != nil
}

// Extract runs the whole pipeline over req.Document.
//
// A *types.ConfigError is returned before any work is done. A run in which
// every chunk failed returns *types.AllChunksFailedError, and a cancelled run
// returns types.ErrRunCancelled; neither yields a partial result.
func (e *Extractor) Extract(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	cfg := req.Config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	doc := req.Document
	if doc == nil {
		doc = &types.Document{}
	}

	runID := uuid.New().String()
	ctx = logger.WithRunID(ctx, runID)
	log := e.logger.WithContext(ctx)

	ck, err := chunker.New(chunker.Config{
		Method:       cfg.ChunkMethod,
		Size:         cfg.ChunkSize,
		Overlap:      cfg.ChunkOverlap,
		MinChunkSize: cfg.MinChunkSize,
		Counter:      e.counter,
	})
	if err != nil {
		return nil, err
	}
	chunks := ck.Chunk(doc.Content)

	log.Info("extraction started",
		zap.String("source", doc.Source),
		zap.Strings("fields", cfg.Fields),
		zap.String("chunk_method", cfg.ChunkMethod),
		zap.Int("chunks", len(chunks)),
	)

	outcomes, stats, err := dispatcher.New(e.oracle, e.logger).Dispatch(ctx, chunks, dispatcher.Task{
		Fields:       cfg.Fields,
		SystemPrompt: cfg.SystemPrompt,
		UnknownValue: cfg.UnknownValue,
		DateFormat:   cfg.DateFormat,
		MaxThreads:   cfg.MaxThreads,
		OnOutcome:    req.OnOutcome,
	})

	run := &Run{
		ID:        runID,
		Source:    doc.Source,
		Config:    cfg,
		CreatedAt: start.UTC(),
		Metrics:   metricsOf(chunks, stats, start),
	}

	if err != nil {
		run.Status = RunStatusFailed
		if errors.Is(err, types.ErrRunCancelled) {
			run.Status = RunStatusCancelled
		}
		run.FailedChunks = failedChunks(outcomes)
		run.Error = err.Error()
		e.record(ctx, run, doc, nil)
		return nil, err
	}

	if len(outcomes) > 0 && stats.Failed == len(outcomes) {
		failErr := &types.AllChunksFailedError{Failures: types.FailuresOf(outcomes)}
		run.Status = RunStatusFailed
		run.FailedChunks = failErr.FailedChunks()
		run.Error = failErr.Error()
		log.Error("every chunk failed", zap.Int("chunks", len(outcomes)))
		e.record(ctx, run, doc, nil)
		return nil, failErr
	}

	merged := merger.Merge(outcomes, cfg.Fields, merger.OptionsFrom(cfg))
	result := normalizer.Normalize(merged, normalizer.OptionsFrom(cfg))

	run.Metrics = metricsOf(chunks, stats, start)
	run.Status = RunStatusSucceeded
	run.Result = result
	run.FailedChunks = result.FailedChunks()
	e.record(ctx, run, doc, result)

	log.Info("extraction finished",
		zap.Int("chunks", len(chunks)),
		zap.Int("failed_chunks", len(result.Failures)),
		zap.Int("warnings", len(result.Warnings)),
		zap.Float64("processing_time", run.Metrics.ProcessingTime),
	)

	return &Report{
		RunID:    runID,
		Result:   result,
		Chunks:   chunks,
		Outcomes: outcomes,
		Metrics:  run.Metrics,
	}, nil
}

// GetRun returns a recorded run.
func (e *Extractor) GetRun(ctx context.Context, id string) (*Run, error) {
	if e.runs == nil {
		return nil, ErrRunHistoryDisabled
	}
	return e.runs.Get(ctx, id)
}

// ListRuns returns recorded runs, newest first, and the total count.
func (e *Extractor) ListRuns(ctx context.Context, page, pageSize int) ([]*Run, int64, error) {
	if e.runs == nil {
		return nil, 0, ErrRunHistoryDisabled
	}
	return e.runs.List(ctx, page, pageSize)
}

// ListModels asks the oracle for its models when it can answer.
func (e *Extractor) ListModels(ctx context.Context) ([]string, error) {
	lister, ok := e.oracle.(oracle.ModelLister)
	if !ok {
		return nil, ErrModelsUnsupported
	}
	return lister.ListModels(ctx)
}

// record persists the run. Storage failures are logged and never fail the run.
func (e *Extractor) record(ctx context.Context, run *Run, doc *types.Document, result *types.Result) {
	run.FinishedAt = time.Now().UTC()
	log := e.logger.WithContext(ctx)
	// a cancelled ctx must not prevent the summary from being written
	ctx = context.WithoutCancel(ctx)

	if e.archive != nil && result != nil {
		if err := e.archive.StoreDocument(ctx, run.ID, doc); err != nil {
			log.Warn("archive document failed", zap.Error(err))
		}
		if err := e.archive.StoreResult(ctx, run.ID, result); err != nil {
			log.Warn("archive result failed", zap.Error(err))
		}
	}
	if e.runs != nil {
		if err := e.runs.Save(ctx, run); err != nil {
			log.Warn("save run failed", zap.String("status", run.Status), zap.Error(err))
		}
	}
}

func metricsOf(chunks []types.Chunk, stats dispatcher.Stats, start time.Time) Metrics {
	tokens := 0
	for _, c := range chunks {
		tokens += c.TokenCount
	}
	return Metrics{
		ChunksProcessed: len(chunks),
		TotalTokens:     tokens,
		LLMCalls:        stats.OracleCalls,
		ProcessingTime:  time.Since(start).Seconds(),
	}
}

func failedChunks(outcomes []types.Outcome) []int {
	out := []int{}
	for _, f := range types.FailuresOf(outcomes) {
		out = append(out, f.ChunkIndex)
	}
	return out
}
