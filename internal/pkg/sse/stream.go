package sse

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ErrStreamClosed is returned by Send once the stream is closed or the client went away.
var ErrStreamClosed = errors.New("sse: stream closed")

// Stream writes events produced by other goroutines to one gin response.
type Stream struct {
	ctx       *gin.Context
	events    chan Event
	heartbeat time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewStream creates a stream for c. A zero heartbeat disables keep-alive comments.
func NewStream(c *gin.Context, bufferSize int, heartbeat time.Duration) *Stream {
	if bufferSize < 0 {
		bufferSize = 0
	}
	return &Stream{
		ctx:       c,
		events:    make(chan Event, bufferSize),
		heartbeat: heartbeat,
		done:      make(chan struct{}),
	}
}

// Send queues an event. It is safe for concurrent use and blocks while the
// buffer is full, until Serve drains it or stops.
func (s *Stream) Send(eventType string, data interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStreamClosed
	}

	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	select {
	case s.events <- Event{Type: eventType, Data: data}:
		return nil
	case <-s.done:
		return ErrStreamClosed
	}
}

// Close ends the stream once queued events are written. It is idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Serve writes SSE headers and then every queued event until Close is called
// or the client disconnects.
func (s *Stream) Serve() error {
	defer close(s.done)

	w := s.ctx.Writer
	s.ctx.Header("Content-Type", "text/event-stream")
	s.ctx.Header("Cache-Control", "no-cache")
	s.ctx.Header("Connection", "keep-alive")
	s.ctx.Header("X-Accel-Buffering", "no")
	w.WriteHeader(200)
	w.Flush()

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	clientGone := s.ctx.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return s.ctx.Request.Context().Err()

		case event, ok := <-s.events:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprint(w, event.FormatSSE()); err != nil {
				return err
			}
			w.Flush()

		case <-tick:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return err
			}
			w.Flush()
		}
	}
}
