package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() RunConfig {
	return RunConfig{
		ChunkMethod:  ChunkMethodWords,
		ChunkSize:    1000,
		ChunkOverlap: 100,
		MinChunkSize: 200,
		MaxThreads:   5,
		Fields:       []string{"first_name", "last_name"},
		DateFormat:   DefaultDateFormat,
		UnknownValue: DefaultUnknownValue,
	}
}

func TestRunConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *RunConfig)
		wantField string
	}{
		{name: "valid", mutate: func(c *RunConfig) {}},
		{name: "paragraphs", mutate: func(c *RunConfig) { c.ChunkMethod = ChunkMethodParagraphs }},
		{name: "bad method", mutate: func(c *RunConfig) { c.ChunkMethod = "sentences" }, wantField: "chunk_method"},
		{name: "zero size", mutate: func(c *RunConfig) { c.ChunkSize = 0 }, wantField: "chunk_size"},
		{name: "overlap equals size", mutate: func(c *RunConfig) { c.ChunkOverlap = 1000 }, wantField: "chunk_overlap"},
		{name: "overlap exceeds size", mutate: func(c *RunConfig) { c.ChunkOverlap = 2000 }, wantField: "chunk_overlap"},
		{name: "negative overlap", mutate: func(c *RunConfig) { c.ChunkOverlap = -1 }, wantField: "chunk_overlap"},
		{name: "negative min", mutate: func(c *RunConfig) { c.MinChunkSize = -5 }, wantField: "min_chunk_size"},
		{name: "no threads", mutate: func(c *RunConfig) { c.MaxThreads = 0 }, wantField: "max_threads"},
		{name: "no fields", mutate: func(c *RunConfig) { c.Fields = nil }, wantField: "fields"},
		{name: "duplicate field", mutate: func(c *RunConfig) { c.Fields = []string{"a", "a"} }, wantField: "fields"},
		{name: "empty sentinel", mutate: func(c *RunConfig) { c.UnknownValue = " " }, wantField: "unknown_value"},
		{
			name:      "date fields without format",
			mutate:    func(c *RunConfig) { c.DateFields = []string{"dob"}; c.DateFormat = "" },
			wantField: "date_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "expected *ConfigError, got %v", err)
			assert.Equal(t, tt.wantField, ce.Field)
			assert.True(t, IsConfigError(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestRunConfig_WithDefaults(t *testing.T) {
	cfg := RunConfig{Fields: []string{" name ", "", "dob"}}.WithDefaults()

	assert.Equal(t, ChunkMethodWords, cfg.ChunkMethod)
	assert.Equal(t, DefaultUnknownValue, cfg.UnknownValue)
	assert.Equal(t, DefaultDateFormat, cfg.DateFormat)
	assert.Equal(t, DefaultListSeparator, cfg.ListSeparator)
	assert.Equal(t, []string{"name", "dob"}, cfg.Fields)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList("  "))
	assert.Equal(t, []string{"first_name", "last_name", "dob"}, SplitList("first_name, last_name,,dob "))
}

func TestStringify(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"John", "John"},
		{true, "true"},
		{float64(42), "42"},
		{1949.5, "1949.5"},
		{7, "7"},
		{[]any{"Go", " Python ", "", 3.0}, "Go, Python, 3"},
		{map[string]any{"city": "Berlin", "zip": "10115"}, "city: Berlin, zip: 10115"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, Stringify(tt.in))
		})
	}
}

func TestIsUnknown(t *testing.T) {
	assert.True(t, IsUnknown("", "unknown"))
	assert.True(t, IsUnknown("  UNKNOWN ", "unknown"))
	assert.True(t, IsUnknown("n/a", "N/A"))
	assert.False(t, IsUnknown("John", "unknown"))
}

func TestOutcomes(t *testing.T) {
	outcomes := []Outcome{
		NewFailure(2, "timeout"),
		NewSuccess(0, map[string]any{"name": "John"}),
		NewFailure(1, "malformed"),
	}

	assert.True(t, outcomes[0].Failed())
	assert.False(t, outcomes[1].Failed())

	failures := FailuresOf(outcomes)
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].ChunkIndex)
	assert.Equal(t, 2, failures[1].ChunkIndex)

	err := &AllChunksFailedError{Failures: failures}
	assert.Equal(t, []int{1, 2}, err.FailedChunks())
	assert.Contains(t, err.Error(), "chunk 2: timeout")
	assert.True(t, IsAllChunksFailed(fmt.Errorf("run: %w", err)))
}
