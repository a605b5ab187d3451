package biz

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/chunker"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/oracle"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu      sync.Mutex
	runs    map[string]*Run
	saveErr error
}

func newMemRepo() *memRepo {
	return &memRepo{runs: map[string]*Run{}}
}

func (r *memRepo) Save(ctx context.Context, run *Run) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *memRepo) Get(ctx context.Context, id string) (*Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (r *memRepo) List(ctx context.Context, page, pageSize int) ([]*Run, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Run, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r *memRepo) only(t *testing.T) *Run {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.runs, 1)
	for _, run := range r.runs {
		return run
	}
	return nil
}

type memArchive struct {
	mu      sync.Mutex
	docs    map[string]string
	results map[string]*types.Result
}

func newMemArchive() *memArchive {
	return &memArchive{docs: map[string]string{}, results: map[string]*types.Result{}}
}

func (a *memArchive) StoreDocument(ctx context.Context, runID string, doc *types.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.docs[runID] = doc.Content
	return nil
}

func (a *memArchive) StoreResult(ctx context.Context, runID string, result *types.Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[runID] = result
	return nil
}

var datePattern = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)

// personOracle answers like a model reading a short biography.
func personOracle() oracle.Oracle {
	return oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		out := map[string]any{}
		for _, f := range req.Fields {
			out[f] = req.UnknownValue
		}
		if strings.Contains(req.Text, "John") {
			out["first_name"] = "John"
		}
		if strings.Contains(req.Text, "Smith") {
			out["last_name"] = "Smith"
		}
		if d := datePattern.FindString(req.Text); d != "" {
			out["birthdate"] = d
		}
		return out, nil
	})
}

func newTestExtractor(o oracle.Oracle, opts ...Option) *Extractor {
	opts = append([]Option{WithTokenCounter(chunker.WordCounter{})}, opts...)
	return NewExtractor(o, logger.NewNop(), opts...)
}

func personConfig() types.RunConfig {
	return types.RunConfig{
		ChunkMethod:  types.ChunkMethodWords,
		ChunkSize:    6,
		ChunkOverlap: 1,
		MaxThreads:   2,
		Fields:       []string{"first_name", "last_name", "birthdate"},
		DateFields:   []string{"birthdate"},
		DateFormat:   "dd/mm/YYYY",
	}
}

const johnSmith = "John Smith DOB 02/09/1949 filler filler John Smith DOB: 09/02/1949"

func TestExtract_JohnSmith(t *testing.T) {
	repo := newMemRepo()
	archive := newMemArchive()
	e := newTestExtractor(personOracle(), WithRunRepo(repo), WithArchive(archive))

	report, err := e.Extract(context.Background(), Request{
		Document: &types.Document{Source: "bio.txt", Content: johnSmith},
		Config:   personConfig(),
	})
	require.NoError(t, err)
	require.Len(t, report.Chunks, 2)

	assert.Equal(t, map[string]string{
		"first_name": "John",
		"last_name":  "Smith",
		"birthdate":  "02/09/1949",
	}, report.Result.Values)
	assert.Equal(t, []string{"first_name", "last_name", "birthdate"}, report.Result.Order)

	bd := report.Result.Provenance["birthdate"]
	assert.Equal(t, types.StrategyEarliestChunk, bd.Strategy)
	assert.Equal(t, []int{0}, bd.ContributingChunks)
	assert.Equal(t, []types.Alternative{{ChunkIndex: 1, Value: "09/02/1949"}}, bd.Alternatives)
	assert.Equal(t, []int{0, 1}, report.Result.Provenance["first_name"].ContributingChunks)

	assert.Equal(t, 2, report.Metrics.ChunksProcessed)
	assert.Equal(t, 2, report.Metrics.LLMCalls)
	assert.Equal(t, 11, report.Metrics.TotalTokens)

	run := repo.only(t)
	assert.Equal(t, report.RunID, run.ID)
	assert.Equal(t, RunStatusSucceeded, run.Status)
	assert.Equal(t, "bio.txt", run.Source)
	assert.Empty(t, run.FailedChunks)
	assert.Equal(t, johnSmith, archive.docs[report.RunID])
	assert.Same(t, report.Result, archive.results[report.RunID])
}

func TestExtract_EmptyDocument(t *testing.T) {
	calls := 0
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		calls++
		return nil, errors.New("unexpected call")
	})

	report, err := newTestExtractor(o).Extract(context.Background(), Request{
		Document: &types.Document{Content: ""},
		Config:   types.RunConfig{ChunkSize: 100, ChunkOverlap: 10, MaxThreads: 4, Fields: []string{"name"}},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"name": "unknown"}, report.Result.Values)
	assert.Zero(t, calls)
	assert.Empty(t, report.Result.Failures)
}

func TestExtract_PartialFailure(t *testing.T) {
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		switch req.Text {
		case "beta":
			return nil, &oracle.Error{Kind: oracle.KindServer, Message: "upstream 503", StatusCode: 503}
		case "alpha":
			return map[string]any{"name": "Alpha", "city": "unknown"}, nil
		default:
			return map[string]any{"name": "unknown", "city": "Gamma City"}, nil
		}
	})

	repo := newMemRepo()
	report, err := newTestExtractor(o, WithRunRepo(repo)).Extract(context.Background(), Request{
		Document: &types.Document{Content: "alpha beta gamma"},
		Config:   types.RunConfig{ChunkSize: 1, MaxThreads: 3, Fields: []string{"name", "city"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Alpha", report.Result.Values["name"])
	assert.Equal(t, "Gamma City", report.Result.Values["city"])
	assert.Equal(t, []int{1}, report.Result.FailedChunks())
	assert.Contains(t, report.Result.Failures[0].Reason, "upstream 503")
	assert.Equal(t, []int{1}, repo.only(t).FailedChunks)
}

func TestExtract_AllChunksFailed(t *testing.T) {
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		return nil, &oracle.Error{Kind: oracle.KindMalformed, Message: "no JSON object"}
	})

	repo := newMemRepo()
	report, err := newTestExtractor(o, WithRunRepo(repo)).Extract(context.Background(), Request{
		Document: &types.Document{Content: "one two"},
		Config:   types.RunConfig{ChunkSize: 1, MaxThreads: 2, Fields: []string{"name"}},
	})
	assert.Nil(t, report)
	require.True(t, types.IsAllChunksFailed(err))

	var failErr *types.AllChunksFailedError
	require.ErrorAs(t, err, &failErr)
	assert.Equal(t, []int{0, 1}, failErr.FailedChunks())

	run := repo.only(t)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Equal(t, []int{0, 1}, run.FailedChunks)
	assert.Nil(t, run.Result)
}

func TestExtract_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := newMemRepo()
	archive := newMemArchive()
	report, err := newTestExtractor(personOracle(), WithRunRepo(repo), WithArchive(archive)).Extract(ctx, Request{
		Document: &types.Document{Content: johnSmith},
		Config:   personConfig(),
	})
	assert.Nil(t, report)
	require.ErrorIs(t, err, types.ErrRunCancelled)
	assert.Equal(t, RunStatusCancelled, repo.only(t).Status)
	assert.Empty(t, archive.results)
}

func TestExtract_ConfigError(t *testing.T) {
	calls := 0
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		calls++
		return map[string]any{}, nil
	})

	tests := []struct {
		name string
		cfg  types.RunConfig
	}{
		{"no fields", types.RunConfig{ChunkSize: 10, MaxThreads: 1}},
		{"overlap not below size", types.RunConfig{ChunkSize: 10, ChunkOverlap: 10, MaxThreads: 1, Fields: []string{"a"}}},
		{"zero threads", types.RunConfig{ChunkSize: 10, Fields: []string{"a"}}},
		{"bad method", types.RunConfig{ChunkMethod: "sentences", ChunkSize: 10, MaxThreads: 1, Fields: []string{"a"}}},
	}

	repo := newMemRepo()
	e := newTestExtractor(o, WithRunRepo(repo))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), Request{Document: &types.Document{Content: "some text"}, Config: tt.cfg})
			assert.True(t, types.IsConfigError(err), "got %v", err)
		})
	}
	assert.Zero(t, calls)
	assert.Empty(t, repo.runs)
}

func TestExtract_PersistenceFailureIgnored(t *testing.T) {
	repo := newMemRepo()
	repo.saveErr = errors.New("connection refused")

	report, err := newTestExtractor(personOracle(), WithRunRepo(repo)).Extract(context.Background(), Request{
		Document: &types.Document{Content: johnSmith},
		Config:   personConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, "John", report.Result.Values["first_name"])
}

func TestExtract_Deterministic(t *testing.T) {
	e := newTestExtractor(personOracle())
	req := Request{Document: &types.Document{Content: johnSmith}, Config: personConfig()}

	first, err := e.Extract(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Extract(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.Result, again.Result)
		assert.Equal(t, first.Chunks, again.Chunks)
	}
}

func TestExtract_OnOutcome(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}

	_, err := newTestExtractor(personOracle()).Extract(context.Background(), Request{
		Document: &types.Document{Content: johnSmith},
		Config:   personConfig(),
		OnOutcome: func(o types.Outcome) {
			mu.Lock()
			defer mu.Unlock()
			seen[o.ChunkIndex] = true
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 1: true}, seen)
}

func TestRunHistory(t *testing.T) {
	e := newTestExtractor(personOracle())
	assert.False(t, e.HistoryEnabled())
	_, err := e.GetRun(context.Background(), "x")
	assert.ErrorIs(t, err, ErrRunHistoryDisabled)
	_, _, err = e.ListRuns(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrRunHistoryDisabled)

	repo := newMemRepo()
	e = newTestExtractor(personOracle(), WithRunRepo(repo))
	report, err := e.Extract(context.Background(), Request{Document: &types.Document{Content: johnSmith}, Config: personConfig()})
	require.NoError(t, err)

	run, err := e.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "02/09/1949", run.Result.Values["birthdate"])

	runs, total, err := e.ListRuns(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, runs, 1)
}

func TestListModels_Unsupported(t *testing.T) {
	_, err := newTestExtractor(personOracle()).ListModels(context.Background())
	assert.ErrorIs(t, err, ErrModelsUnsupported)
}
