package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRunCancelled is returned when the caller aborts a run before every chunk answered.
var ErrRunCancelled = errors.New("extraction run cancelled")

// ConfigError reports an invalid RunConfig. Nothing is attempted when it is returned.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// AllChunksFailedError is returned when no chunk produced a result.
type AllChunksFailedError struct {
	Failures []Failure
}

func (e *AllChunksFailedError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("chunk %d: %s", f.ChunkIndex, f.Reason))
	}
	return fmt.Sprintf("all %d chunks failed (%s)", len(e.Failures), strings.Join(reasons, "; "))
}

// FailedChunks returns the indices of every failed chunk.
func (e *AllChunksFailedError) FailedChunks() []int {
	out := make([]int, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.ChunkIndex)
	}
	return out
}

// DateParseWarning flags a date field whose value could not be reformatted.
type DateParseWarning struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (w DateParseWarning) String() string {
	return fmt.Sprintf("could not parse date for field %q: %q", w.Field, w.Value)
}

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsAllChunksFailed(err error) bool {
	var ae *AllChunksFailedError
	return errors.As(err, &ae)
}
