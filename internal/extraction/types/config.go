package types

import (
	"fmt"
	"strings"
)

// RunConfig is the parameter set of one extraction run. It is read once at the start
// of a run and never mutated while the run is in progress.
type RunConfig struct {
	ChunkMethod  string `json:"chunk_method" mapstructure:"chunk_method"`
	ChunkSize    int    `json:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int    `json:"chunk_overlap" mapstructure:"chunk_overlap"`
	MinChunkSize int    `json:"min_chunk_size" mapstructure:"min_chunk_size"`
	MaxThreads   int    `json:"max_threads" mapstructure:"max_threads"`

	Fields       []string `json:"fields" mapstructure:"fields"`
	DateFields   []string `json:"date_fields" mapstructure:"date_fields"`
	DateFormat   string   `json:"date_format" mapstructure:"date_format"`
	UnknownValue string   `json:"unknown_value" mapstructure:"unknown_value"`
	SystemPrompt string   `json:"system_prompt" mapstructure:"system_prompt"`

	// ListFields are merged by concatenating distinct values instead of earliest-wins.
	ListFields    []string `json:"list_fields" mapstructure:"list_fields"`
	ListSeparator string   `json:"list_separator" mapstructure:"list_separator"`
}

// Validate checks the config and returns a *ConfigError on the first problem found.
func (c *RunConfig) Validate() error {
	switch c.ChunkMethod {
	case ChunkMethodWords, ChunkMethodParagraphs:
	default:
		return &ConfigError{Field: "chunk_method", Reason: fmt.Sprintf("must be %q or %q, got %q", ChunkMethodWords, ChunkMethodParagraphs, c.ChunkMethod)}
	}
	if c.ChunkSize <= 0 {
		return &ConfigError{Field: "chunk_size", Reason: "must be greater than 0"}
	}
	if c.ChunkOverlap < 0 {
		return &ConfigError{Field: "chunk_overlap", Reason: "must not be negative"}
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{Field: "chunk_overlap", Reason: fmt.Sprintf("must be less than chunk_size (%d >= %d)", c.ChunkOverlap, c.ChunkSize)}
	}
	if c.MinChunkSize < 0 {
		return &ConfigError{Field: "min_chunk_size", Reason: "must not be negative"}
	}
	if c.MaxThreads <= 0 {
		return &ConfigError{Field: "max_threads", Reason: "must be greater than 0"}
	}
	if len(c.Fields) == 0 {
		return &ConfigError{Field: "fields", Reason: "at least one field is required"}
	}
	seen := make(map[string]struct{}, len(c.Fields))
	for _, f := range c.Fields {
		if strings.TrimSpace(f) == "" {
			return &ConfigError{Field: "fields", Reason: "field names must not be blank"}
		}
		if _, dup := seen[f]; dup {
			return &ConfigError{Field: "fields", Reason: fmt.Sprintf("duplicate field %q", f)}
		}
		seen[f] = struct{}{}
	}
	if strings.TrimSpace(c.UnknownValue) == "" {
		return &ConfigError{Field: "unknown_value", Reason: "must not be empty"}
	}
	if len(c.DateFields) > 0 && strings.TrimSpace(c.DateFormat) == "" {
		return &ConfigError{Field: "date_format", Reason: "required when date_fields are set"}
	}
	return nil
}

// WithDefaults returns a copy with empty optional settings filled in.
func (c RunConfig) WithDefaults() RunConfig {
	if c.ChunkMethod == "" {
		c.ChunkMethod = ChunkMethodWords
	}
	if c.UnknownValue == "" {
		c.UnknownValue = DefaultUnknownValue
	}
	if c.DateFormat == "" {
		c.DateFormat = DefaultDateFormat
	}
	if c.ListSeparator == "" {
		c.ListSeparator = DefaultListSeparator
	}
	c.Fields = cleanList(c.Fields)
	c.DateFields = cleanList(c.DateFields)
	c.ListFields = cleanList(c.ListFields)
	return c
}

// IsDateField reports whether field is reformatted as a date.
func (c *RunConfig) IsDateField(field string) bool {
	return contains(c.DateFields, field)
}

// IsListField reports whether field is merged as a list.
func (c *RunConfig) IsListField(field string) bool {
	return contains(c.ListFields, field)
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanList(strings.Split(s, ","))
}

func cleanList(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
