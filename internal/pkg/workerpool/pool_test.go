package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidSize(t *testing.T) {
	_, err := New(0, logger.NewNop())
	assert.Error(t, err)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		tasks   int
	}{
		{name: "single worker", workers: 1, tasks: 5},
		{name: "three workers", workers: 3, tasks: 12},
		{name: "more workers than tasks", workers: 8, tasks: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.workers, logger.NewNop())
			require.NoError(t, err)

			var inFlight, peak, done atomic.Int64
			for i := 0; i < tt.tasks; i++ {
				require.NoError(t, p.Submit(func() {
					n := inFlight.Add(1)
					for {
						old := peak.Load()
						if n <= old || peak.CompareAndSwap(old, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					inFlight.Add(-1)
					done.Add(1)
				}))
			}
			p.Shutdown()

			assert.Equal(t, int64(tt.tasks), done.Load())
			assert.LessOrEqual(t, peak.Load(), int64(tt.workers))

			stats := p.Stats()
			assert.Equal(t, int64(tt.tasks), stats.Submitted)
			assert.Equal(t, int64(tt.tasks), stats.Completed)
			assert.LessOrEqual(t, stats.PeakRunning, int64(tt.workers))
		})
	}
}

func TestPool_PanicDoesNotBlockWait(t *testing.T) {
	p, err := New(2, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.Submit(func() { panic("oracle exploded") }))
	require.NoError(t, p.Submit(func() {}))

	finished := make(chan struct{})
	go func() {
		p.Shutdown()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after a panicking task")
	}
	assert.Equal(t, int64(1), p.Stats().Panicked)
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p, err := New(1, logger.NewNop())
	require.NoError(t, err)
	p.Shutdown()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}
