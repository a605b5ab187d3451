package merger

import (
	"math/rand"
	"testing"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultOpts = Options{UnknownValue: "unknown", ListFields: []string{"skills"}, ListSeparator: "\n"}

func ok(index int, fields map[string]any) types.Outcome {
	return types.NewSuccess(index, fields)
}

func TestMerge_ScalarFields(t *testing.T) {
	tests := []struct {
		name         string
		outcomes     []types.Outcome
		wantValue    any
		wantUnknown  bool
		wantStrategy string
		wantChunks   []int
		wantAlts     []types.Alternative
	}{
		{
			name:         "all unknown",
			outcomes:     []types.Outcome{ok(0, map[string]any{"name": "unknown"}), ok(1, map[string]any{"name": "UNKNOWN "})},
			wantValue:    "unknown",
			wantUnknown:  true,
			wantStrategy: types.StrategyUnknown,
			wantChunks:   []int{},
		},
		{
			name:         "missing and empty treated as unknown",
			outcomes:     []types.Outcome{ok(0, map[string]any{}), ok(1, map[string]any{"name": "  "}), ok(2, map[string]any{"name": nil})},
			wantValue:    "unknown",
			wantUnknown:  true,
			wantStrategy: types.StrategyUnknown,
			wantChunks:   []int{},
		},
		{
			name:         "agreement keeps earliest casing",
			outcomes:     []types.Outcome{ok(0, map[string]any{"name": "unknown"}), ok(1, map[string]any{"name": " McDonald "}), ok(2, map[string]any{"name": "MCDONALD"})},
			wantValue:    "McDonald",
			wantStrategy: types.StrategyAgreement,
			wantChunks:   []int{1, 2},
		},
		{
			name:         "conflict earliest chunk wins",
			outcomes:     []types.Outcome{ok(0, map[string]any{"name": "John"}), ok(1, map[string]any{"name": "Jon"}), ok(2, map[string]any{"name": "john"})},
			wantValue:    "John",
			wantStrategy: types.StrategyEarliestChunk,
			wantChunks:   []int{0, 2},
			wantAlts:     []types.Alternative{{ChunkIndex: 1, Value: "Jon"}},
		},
		{
			name:         "non-string coerced",
			outcomes:     []types.Outcome{ok(0, map[string]any{"name": float64(42)}), ok(1, map[string]any{"name": "42"})},
			wantValue:    "42",
			wantStrategy: types.StrategyAgreement,
			wantChunks:   []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := Merge(tt.outcomes, []string{"name"}, defaultOpts)
			f, exists := merged.Fields["name"]
			require.True(t, exists)

			assert.Equal(t, tt.wantValue, f.Value)
			assert.Equal(t, tt.wantUnknown, f.Unknown)
			assert.Equal(t, tt.wantStrategy, f.Provenance.Strategy)
			assert.Equal(t, tt.wantChunks, f.Provenance.ContributingChunks)
			assert.Equal(t, tt.wantAlts, f.Provenance.Alternatives)
		})
	}
}

func TestMerge_ListFields(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []types.Outcome
		want     string
	}{
		{
			name: "dedup across overlapping chunks",
			outcomes: []types.Outcome{
				ok(0, map[string]any{"skills": "Go"}),
				ok(1, map[string]any{"skills": "go "}),
				ok(2, map[string]any{"skills": "Python"}),
			},
			want: "Go\nPython",
		},
		{
			name: "arrays contribute items",
			outcomes: []types.Outcome{
				ok(1, map[string]any{"skills": []any{"SQL", "Go"}}),
				ok(0, map[string]any{"skills": []any{"Go", "Kubernetes"}}),
			},
			want: "Go\nKubernetes\nSQL",
		},
		{
			name: "json encoded array string",
			outcomes: []types.Outcome{
				ok(0, map[string]any{"skills": `["Docker", "unknown", "Helm"]`}),
			},
			want: "Docker\nHelm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := Merge(tt.outcomes, []string{"skills"}, defaultOpts)
			assert.Equal(t, tt.want, merged.Fields["skills"].Value)
			assert.False(t, merged.Fields["skills"].Unknown)
		})
	}
}

func TestMerge_ListSeparator(t *testing.T) {
	opts := defaultOpts
	opts.ListSeparator = "; "
	merged := Merge([]types.Outcome{
		ok(0, map[string]any{"skills": "Go"}),
		ok(1, map[string]any{"skills": "Rust"}),
	}, []string{"skills"}, opts)

	assert.Equal(t, "Go; Rust", merged.Fields["skills"].Value)
	assert.Equal(t, types.StrategyConcatenate, merged.Fields["skills"].Provenance.Strategy)
}

func TestMerge_PartialFailure(t *testing.T) {
	outcomes := []types.Outcome{
		ok(0, map[string]any{"name": "John", "city": "unknown"}),
		types.NewFailure(1, "oracle timeout_error: request timed out"),
		ok(2, map[string]any{"name": "unknown", "city": "Berlin"}),
	}

	merged := Merge(outcomes, []string{"name", "city"}, defaultOpts)

	assert.Equal(t, "John", merged.Fields["name"].Value)
	assert.Equal(t, []int{0}, merged.Fields["name"].Provenance.ContributingChunks)
	assert.Equal(t, "Berlin", merged.Fields["city"].Value)
	assert.Equal(t, []int{2}, merged.Fields["city"].Provenance.ContributingChunks)
	require.Len(t, merged.Failures, 1)
	assert.Equal(t, 1, merged.Failures[0].ChunkIndex)
}

func TestMerge_FieldOrderKept(t *testing.T) {
	fields := []string{"z", "a", "m"}
	merged := Merge(nil, fields, defaultOpts)
	assert.Equal(t, fields, merged.Order)
	assert.Len(t, merged.Fields, 3)
}

func TestMerge_OrderIndependent(t *testing.T) {
	outcomes := []types.Outcome{
		ok(0, map[string]any{"name": "John", "skills": "Go", "dob": "unknown"}),
		ok(1, map[string]any{"name": "Johnny", "skills": []any{"Rust", "go"}, "dob": "02/09/1949"}),
		types.NewFailure(2, "malformed"),
		ok(3, map[string]any{"name": "JOHN", "skills": "SQL", "dob": "09/02/1949"}),
		ok(4, map[string]any{"name": "unknown", "skills": "unknown", "dob": "02/09/1949"}),
	}
	fields := []string{"name", "skills", "dob"}
	want := Merge(outcomes, fields, defaultOpts)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]types.Outcome(nil), outcomes...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Merge(shuffled, fields, defaultOpts))
	}
}

func TestOptionsFrom(t *testing.T) {
	cfg := types.RunConfig{UnknownValue: "N/A", ListFields: []string{"skills"}, ListSeparator: ","}
	assert.Equal(t, Options{UnknownValue: "N/A", ListFields: []string{"skills"}, ListSeparator: ","}, OptionsFrom(cfg))
}
