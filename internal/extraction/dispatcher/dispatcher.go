package dispatcher

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/oracle"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/workerpool"
	"go.uber.org/zap"
)

// Task carries the per-run parameters shared by every chunk.
type Task struct {
	Fields       []string
	SystemPrompt string
	UnknownValue string
	DateFormat   string
	MaxThreads   int

	// OnOutcome, when set, is called once per chunk as soon as its outcome is known.
	// Calls come from worker goroutines and may run concurrently.
	OnOutcome func(types.Outcome)
}

// Stats describes a finished dispatch.
type Stats struct {
	OracleCalls int
	Failed      int
	Duration    time.Duration
}

// Dispatcher runs the oracle over chunks on a pool created for each run.
type Dispatcher struct {
	oracle oracle.Oracle
	logger *logger.Logger
}

func New(o oracle.Oracle, lgr *logger.Logger) *Dispatcher {
	if lgr == nil {
		lgr = logger.L()
	}
	return &Dispatcher{oracle: o, logger: lgr.Named("dispatcher")}
}

// Dispatch calls the oracle at most once per chunk and returns one outcome per
// chunk, indexed by chunk index. A chunk failure never aborts the run.
//
// If ctx is cancelled before every chunk answered, Dispatch stops waiting, marks
// the missing chunks as cancelled and returns types.ErrRunCancelled together with
// the outcomes collected so far.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []types.Chunk, task Task) ([]types.Outcome, Stats, error) {
	start := time.Now()
	log := d.logger.WithContext(ctx)

	workers := task.MaxThreads
	if workers <= 0 {
		return nil, Stats{}, &types.ConfigError{Field: "max_threads", Reason: "must be greater than 0"}
	}
	if workers > len(chunks) && len(chunks) > 0 {
		workers = len(chunks)
	}
	if len(chunks) == 0 {
		return []types.Outcome{}, Stats{}, nil
	}

	pool, err := workerpool.New(workers, d.logger)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("create worker pool: %w", err)
	}

	// each slot is written by exactly one task, then its done channel is closed
	slots := make([]types.Outcome, len(chunks))
	done := make([]chan struct{}, len(chunks))
	for i := range done {
		done[i] = make(chan struct{})
	}

	var calls atomic.Int64
	runChunk := func(i int) {
		chunk := chunks[i]
		defer close(done[i])
		defer func() {
			if r := recover(); r != nil {
				log.Error("chunk worker panicked", zap.Int("chunk", chunk.Index), zap.Any("panic", r))
				slots[i] = types.NewFailure(chunk.Index, fmt.Sprintf("panic: %v", r))
				d.notify(task, slots[i])
			}
		}()

		slots[i] = d.extract(ctx, chunk, task, &calls)
		d.notify(task, slots[i])
	}

	go func() {
		for i := range chunks {
			if ctx.Err() != nil {
				return
			}
			i := i
			if err := pool.Submit(func() { runChunk(i) }); err != nil {
				log.Warn("chunk not submitted", zap.Int("chunk", chunks[i].Index), zap.Error(err))
				return
			}
		}
	}()

	outcomes := make([]types.Outcome, len(chunks))
	cancelled := false
	for i := range chunks {
		if !cancelled {
			select {
			case <-done[i]:
				outcomes[i] = slots[i]
				continue
			default:
			}
			select {
			case <-done[i]:
				outcomes[i] = slots[i]
				continue
			case <-ctx.Done():
				cancelled = true
			}
		}
		// a slot may still complete after cancellation; read it only once it is closed
		select {
		case <-done[i]:
			outcomes[i] = slots[i]
		default:
			outcomes[i] = types.NewFailure(chunks[i].Index, types.ReasonCancelled)
		}
	}

	stats := Stats{OracleCalls: int(calls.Load()), Duration: time.Since(start)}
	for _, o := range outcomes {
		if o.Failed() {
			stats.Failed++
		}
	}

	if cancelled {
		pool.Abandon()
		log.Warn("dispatch cancelled",
			zap.Int("chunks", len(chunks)),
			zap.Int("failed", stats.Failed),
			zap.Error(ctx.Err()))
		return outcomes, stats, types.ErrRunCancelled
	}

	pool.Shutdown()
	log.Info("dispatch finished",
		zap.Int("chunks", len(chunks)),
		zap.Int("failed", stats.Failed),
		zap.Int("oracle_calls", stats.OracleCalls),
		zap.Int("peak_workers", int(pool.Stats().PeakRunning)),
		zap.Duration("duration", stats.Duration))
	return outcomes, stats, nil
}

func (d *Dispatcher) extract(ctx context.Context, chunk types.Chunk, task Task, calls *atomic.Int64) types.Outcome {
	if strings.TrimSpace(chunk.Text) == "" {
		fields := make(map[string]any, len(task.Fields))
		for _, f := range task.Fields {
			fields[f] = task.UnknownValue
		}
		return types.NewSuccess(chunk.Index, fields)
	}

	calls.Add(1)
	fields, err := d.oracle.Extract(ctx, oracle.Request{
		Text:         chunk.Text,
		Fields:       task.Fields,
		SystemPrompt: task.SystemPrompt,
		UnknownValue: task.UnknownValue,
		DateFormat:   task.DateFormat,
	})
	if err != nil {
		d.logger.WithContext(ctx).Warn("chunk extraction failed",
			zap.Int("chunk", chunk.Index),
			zap.String("kind", string(oracle.KindOf(err))),
			zap.Error(err))
		return types.NewFailure(chunk.Index, err.Error())
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return types.NewSuccess(chunk.Index, fields)
}

func (d *Dispatcher) notify(task Task, o types.Outcome) {
	if task.OnOutcome == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("outcome observer panicked", zap.Any("panic", r))
		}
	}()
	task.OnOutcome(o)
}
