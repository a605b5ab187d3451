package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Statistics counts tasks over the pool's lifetime.
type Statistics struct {
	mu sync.RWMutex

	Submitted   int64
	Completed   int64
	Panicked    int64
	Running     int64
	PeakRunning int64 // highest number of tasks observed in flight at once
}

func (s *Statistics) incSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Submitted++
}

func (s *Statistics) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running++
	if s.Running > s.PeakRunning {
		s.PeakRunning = s.Running
	}
}

func (s *Statistics) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running--
	s.Completed++
}

func (s *Statistics) incPanicked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Panicked++
}

// Snapshot returns a copy of the counters.
func (s *Statistics) Snapshot() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Statistics{
		Submitted:   s.Submitted,
		Completed:   s.Completed,
		Panicked:    s.Panicked,
		Running:     s.Running,
		PeakRunning: s.PeakRunning,
	}
}

// Pool is a fixed-size pool meant to live for a single extraction run.
// Submit blocks while every worker is busy, which bounds in-flight work to Cap().
type Pool struct {
	pool   *ants.Pool
	stats  *Statistics
	wg     sync.WaitGroup
	closed atomic.Bool
	logger *logger.Logger
}

// New creates a pool with exactly workers goroutines at most.
func New(workers int, log *logger.Logger) (*Pool, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if log == nil {
		log = logger.L()
	}

	stats := &Statistics{}
	antsPool, err := ants.NewPool(workers,
		ants.WithPanicHandler(func(p interface{}) {
			stats.incPanicked()
			log.Error("worker panic", zap.Any("error", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	return &Pool{
		pool:   antsPool,
		stats:  stats,
		logger: log,
	}, nil
}

// Submit schedules task, blocking until a worker is free.
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.stats.incSubmitted()
	p.wg.Add(1)
	err := p.pool.Submit(func() {
		p.stats.start()
		defer func() {
			p.stats.finish()
			p.wg.Done()
		}()
		task()
	})
	if err != nil {
		p.wg.Done()
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return fmt.Errorf("submit task: %w", err)
	}
	return nil
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown waits for submitted tasks and releases the workers.
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.wg.Wait()
	p.pool.Release()
}

// Abandon releases the pool without waiting. Tasks already running finish on their own.
func (p *Pool) Abandon() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.pool.Release()
}

// Cap returns the worker limit.
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() Statistics {
	return p.stats.Snapshot()
}
