package oracle

import (
	"context"
	"errors"
	"fmt"
)

// Request is one extraction call over a single chunk.
type Request struct {
	Text         string   `json:"text"`
	Fields       []string `json:"fields"`
	SystemPrompt string   `json:"system_prompt"`

	// Prompt hints. Empty values fall back to the adapter defaults.
	UnknownValue string `json:"unknown_value,omitempty"`
	DateFormat   string `json:"date_format,omitempty"`
}

// Oracle extracts field values from a piece of text. A returned map contains
// only requested fields; missing entries are treated as unknown by the caller.
type Oracle interface {
	Extract(ctx context.Context, req Request) (map[string]any, error)
}

// ModelLister is implemented by oracles that can report the models they serve.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, req Request) (map[string]any, error)

func (f Func) Extract(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// ErrorKind classifies oracle failures.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindRateLimited ErrorKind = "rate_limited"
	KindServer      ErrorKind = "server_error"
	KindClient      ErrorKind = "client_error"
	KindMalformed   ErrorKind = "malformed_response"
	KindTransport   ErrorKind = "transport_error"
	KindCancelled   ErrorKind = "cancelled"
)

// Error is the only error type returned by adapters in this package.
type Error struct {
	Kind       ErrorKind
	Message    string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("oracle %s: %s", e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		msg += fmt.Sprintf(" after %d attempts", e.Attempts)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindServer, KindMalformed, KindTransport:
		return true
	default:
		return false
	}
}

// KindOf returns the kind of an oracle error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
