package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/oracle"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeChunks(texts ...string) []types.Chunk {
	chunks := make([]types.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = types.Chunk{Index: i, Text: t, StartOffset: i, EndOffset: i + 1}
	}
	return chunks
}

func baseTask(threads int) Task {
	return Task{
		Fields:       []string{"name"},
		UnknownValue: "unknown",
		MaxThreads:   threads,
	}
}

func echoOracle(delay func(text string) time.Duration) oracle.Oracle {
	return oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		if delay != nil {
			time.Sleep(delay(req.Text))
		}
		return map[string]any{"name": req.Text}, nil
	})
}

func TestDispatch_PreservesChunkIndex(t *testing.T) {
	texts := []string{"c0", "c1", "c2", "c3", "c4", "c5"}
	// later chunks finish first
	delay := func(text string) time.Duration {
		var n int
		_, _ = fmt.Sscanf(text, "c%d", &n)
		return time.Duration(len(texts)-n) * 3 * time.Millisecond
	}

	d := New(echoOracle(delay), logger.NewNop())
	outcomes, stats, err := d.Dispatch(context.Background(), makeChunks(texts...), baseTask(3))
	require.NoError(t, err)
	require.Len(t, outcomes, len(texts))

	for i, o := range outcomes {
		assert.Equal(t, i, o.ChunkIndex)
		require.NotNil(t, o.Result)
		assert.Nil(t, o.Failure)
		assert.Equal(t, texts[i], o.Result.Fields["name"])
	}
	assert.Equal(t, len(texts), stats.OracleCalls)
	assert.Zero(t, stats.Failed)
}

func TestDispatch_BoundedConcurrency(t *testing.T) {
	for _, threads := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			var inFlight, peak atomic.Int64
			o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return map[string]any{"name": "x"}, nil
			})

			texts := make([]string, 10)
			for i := range texts {
				texts[i] = fmt.Sprintf("chunk %d", i)
			}

			outcomes, _, err := New(o, logger.NewNop()).Dispatch(context.Background(), makeChunks(texts...), baseTask(threads))
			require.NoError(t, err)
			assert.Len(t, outcomes, 10)
			assert.LessOrEqual(t, peak.Load(), int64(threads))
			assert.GreaterOrEqual(t, peak.Load(), int64(1))
		})
	}
}

func TestDispatch_PartialFailure(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		mu.Lock()
		seen[req.Text]++
		mu.Unlock()
		if req.Text == "second" {
			return nil, &oracle.Error{Kind: oracle.KindTimeout, Message: "request timed out"}
		}
		return map[string]any{"name": req.Text}, nil
	})

	outcomes, stats, err := New(o, logger.NewNop()).Dispatch(context.Background(), makeChunks("first", "second", "third"), baseTask(2))
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.False(t, outcomes[0].Failed())
	assert.True(t, outcomes[1].Failed())
	assert.Contains(t, outcomes[1].Failure.Reason, "timed out")
	assert.False(t, outcomes[2].Failed())
	assert.Equal(t, 1, stats.Failed)

	// one call per chunk, no retries here
	assert.Equal(t, map[string]int{"first": 1, "second": 1, "third": 1}, seen)
}

func TestDispatch_PanicBecomesFailure(t *testing.T) {
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		if req.Text == "bad" {
			panic("nil map")
		}
		return map[string]any{"name": req.Text}, nil
	})

	outcomes, _, err := New(o, logger.NewNop()).Dispatch(context.Background(), makeChunks("ok", "bad"), baseTask(2))
	require.NoError(t, err)
	assert.False(t, outcomes[0].Failed())
	require.True(t, outcomes[1].Failed())
	assert.Contains(t, outcomes[1].Failure.Reason, "panic")
}

func TestDispatch_EmptyChunkSkipsOracle(t *testing.T) {
	calls := 0
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		calls++
		return nil, errors.New("should not be called")
	})

	task := baseTask(1)
	task.Fields = []string{"name", "dob"}
	outcomes, stats, err := New(o, logger.NewNop()).Dispatch(context.Background(), []types.Chunk{{Index: 0}}, task)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Result)
	assert.Equal(t, map[string]any{"name": "unknown", "dob": "unknown"}, outcomes[0].Result.Fields)
	assert.Zero(t, calls)
	assert.Zero(t, stats.OracleCalls)
}

func TestDispatch_Cancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{}, 3)
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		started <- struct{}{}
		if req.Text == "slow" {
			// ignores ctx on purpose: the dispatcher must not wait for it
			<-release
		}
		return map[string]any{"name": req.Text}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for i := 0; i < 3; i++ {
			<-started
		}
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	finished := make(chan struct{})
	var (
		outcomes []types.Outcome
		err      error
	)
	go func() {
		outcomes, _, err = New(o, logger.NewNop()).Dispatch(ctx, makeChunks("a", "slow", "b"), baseTask(3))
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch kept waiting after cancellation")
	}

	require.ErrorIs(t, err, types.ErrRunCancelled)
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[0].Failed())
	require.True(t, outcomes[1].Failed())
	assert.Equal(t, types.ReasonCancelled, outcomes[1].Failure.Reason)
	assert.False(t, outcomes[2].Failed())
}

func TestDispatch_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes, _, err := New(echoOracle(nil), logger.NewNop()).Dispatch(ctx, makeChunks("a", "b"), baseTask(1))
	require.ErrorIs(t, err, types.ErrRunCancelled)
	require.Len(t, outcomes, 2)
	for i, o := range outcomes {
		assert.Equal(t, i, o.ChunkIndex)
	}
}

func TestDispatch_OnOutcome(t *testing.T) {
	var mu sync.Mutex
	var got []int

	task := baseTask(2)
	task.OnOutcome = func(o types.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, o.ChunkIndex)
	}

	_, _, err := New(echoOracle(nil), logger.NewNop()).Dispatch(context.Background(), makeChunks("a", "b", "c", "d"), task)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, got)
}

func TestDispatch_InvalidThreads(t *testing.T) {
	_, _, err := New(echoOracle(nil), logger.NewNop()).Dispatch(context.Background(), makeChunks("a"), baseTask(0))
	assert.True(t, types.IsConfigError(err))
}
