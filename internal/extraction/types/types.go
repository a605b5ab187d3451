package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Chunking methods.
const (
	ChunkMethodWords      = "words"
	ChunkMethodParagraphs = "paragraphs"
)

// Merge strategies recorded in provenance.
const (
	StrategyUnknown       = "unknown"
	StrategyAgreement     = "agreement"
	StrategyEarliestChunk = "earliest_chunk"
	StrategyConcatenate   = "concatenate"
)

const (
	DefaultUnknownValue  = "unknown"
	DefaultDateFormat    = "dd/mm/YYYY"
	DefaultListSeparator = "\n"
	ReasonCancelled      = "cancelled"
)

// Document is the raw input of a run. It is not modified after loading.
type Document struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Encoding string            `json:"encoding"`
	Content  string            `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a slice of the document in word coordinates: [StartOffset, EndOffset).
type Chunk struct {
	Index       int    `json:"index"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	TokenCount  int    `json:"token_count"`
}

// Len returns the chunk length in words.
func (c Chunk) Len() int {
	return c.EndOffset - c.StartOffset
}

// PartialResult holds the values the oracle returned for one chunk.
type PartialResult struct {
	ChunkIndex int            `json:"chunk_index"`
	Fields     map[string]any `json:"fields"`
}

// Failure records why a chunk produced no values.
type Failure struct {
	ChunkIndex int    `json:"chunk_index"`
	Reason     string `json:"reason"`
}

// Outcome is the dispatcher result for a single chunk. Exactly one of Result and Failure is set.
type Outcome struct {
	ChunkIndex int            `json:"chunk_index"`
	Result     *PartialResult `json:"result,omitempty"`
	Failure    *Failure       `json:"failure,omitempty"`
}

func (o Outcome) Failed() bool {
	return o.Failure != nil
}

// NewSuccess builds a successful outcome.
func NewSuccess(index int, fields map[string]any) Outcome {
	return Outcome{
		ChunkIndex: index,
		Result:     &PartialResult{ChunkIndex: index, Fields: fields},
	}
}

// NewFailure builds a failed outcome.
func NewFailure(index int, reason string) Outcome {
	return Outcome{
		ChunkIndex: index,
		Failure:    &Failure{ChunkIndex: index, Reason: reason},
	}
}

// FailuresOf returns the failures among outcomes, ordered by chunk index.
func FailuresOf(outcomes []Outcome) []Failure {
	var failures []Failure
	for _, o := range outcomes {
		if o.Failure != nil {
			failures = append(failures, *o.Failure)
		}
	}
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].ChunkIndex < failures[j].ChunkIndex
	})
	return failures
}

// Alternative is a value that lost the merge.
type Alternative struct {
	ChunkIndex int    `json:"chunk_index"`
	Value      string `json:"value"`
}

// Provenance explains how a merged value was chosen.
type Provenance struct {
	Strategy           string        `json:"strategy"`
	ContributingChunks []int         `json:"contributing_chunks"`
	Alternatives       []Alternative `json:"alternatives,omitempty"`
	DateParseFailed    bool          `json:"date_parse_failed,omitempty"`
}

type MergedField struct {
	Value      any        `json:"value"`
	Unknown    bool       `json:"unknown"`
	Provenance Provenance `json:"provenance"`
}

// MergedResult is the merger output. Order keeps the caller's field order.
type MergedResult struct {
	Order    []string               `json:"order"`
	Fields   map[string]MergedField `json:"fields"`
	Failures []Failure              `json:"failures,omitempty"`
}

// Result is the final record: every requested field has a string value.
type Result struct {
	Order      []string              `json:"order"`
	Values     map[string]string     `json:"values"`
	Provenance map[string]Provenance `json:"provenance,omitempty"`
	Failures   []Failure             `json:"failures,omitempty"`
	Warnings   []DateParseWarning    `json:"warnings,omitempty"`
}

// Get returns the value of field and whether it was requested.
func (r *Result) Get(field string) (string, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// FailedChunks returns the indices of failed chunks.
func (r *Result) FailedChunks() []int {
	out := make([]int, 0, len(r.Failures))
	for _, f := range r.Failures {
		out = append(out, f.ChunkIndex)
	}
	return out
}

// Stringify renders an oracle value as text. nil renders as "".
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := strings.TrimSpace(Stringify(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+Stringify(val[k]))
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

// IsUnknown reports whether value is empty or the sentinel.
func IsUnknown(value, sentinel string) bool {
	v := strings.TrimSpace(value)
	return v == "" || strings.EqualFold(v, strings.TrimSpace(sentinel))
}
