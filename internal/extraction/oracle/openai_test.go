package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	status  int
	content string
}

// newEndpoint serves the replies in order and repeats the last one.
func newEndpoint(t *testing.T, replies ...reply) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		rep := replies[n]

		w.Header().Set("Content-Type", "application/json")
		if rep.status != http.StatusOK {
			w.WriteHeader(rep.status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": "upstream failure", "type": "server_error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "dudoxx",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": rep.content},
				"finish_reason": "stop",
			}},
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"dudoxx","object":"model"},{"id":"dudoxx-mini","object":"model"}]}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestOracle(t *testing.T, baseURL string, retries int) *OpenAIOracle {
	t.Helper()
	o, err := NewOpenAIOracle(OpenAIConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL + "/v1",
		Model:      "dudoxx",
		Timeout:    2 * time.Second,
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
	}, logger.NewNop())
	require.NoError(t, err)
	return o
}

func TestNewOpenAIOracle_Validation(t *testing.T) {
	_, err := NewOpenAIOracle(OpenAIConfig{Model: "dudoxx"}, logger.NewNop())
	assert.Error(t, err)

	_, err = NewOpenAIOracle(OpenAIConfig{APIKey: "k"}, logger.NewNop())
	assert.Error(t, err)
}

func TestOpenAIOracle_Extract(t *testing.T) {
	srv, calls := newEndpoint(t, reply{status: http.StatusOK, content: `{"first_name": "John", "last_name": "Smith"}`})
	o := newTestOracle(t, srv.URL, 3)

	got, err := o.Extract(context.Background(), Request{Text: "John Smith", Fields: []string{"first_name", "last_name"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"first_name": "John", "last_name": "Smith"}, got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIOracle_Retries(t *testing.T) {
	tests := []struct {
		name      string
		replies   []reply
		retries   int
		wantErr   ErrorKind
		wantCalls int32
	}{
		{
			name:      "server error then success",
			replies:   []reply{{status: http.StatusInternalServerError}, {status: http.StatusOK, content: `{"name": "John"}`}},
			retries:   3,
			wantCalls: 2,
		},
		{
			name:      "malformed then success",
			replies:   []reply{{status: http.StatusOK, content: "sorry"}, {status: http.StatusOK, content: `{"name": "John"}`}},
			retries:   3,
			wantCalls: 2,
		},
		{
			name:      "rate limited until attempts run out",
			replies:   []reply{{status: http.StatusTooManyRequests}},
			retries:   3,
			wantErr:   KindRateLimited,
			wantCalls: 3,
		},
		{
			name:      "client error is not retried",
			replies:   []reply{{status: http.StatusBadRequest}},
			retries:   3,
			wantErr:   KindClient,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := newEndpoint(t, tt.replies...)
			o := newTestOracle(t, srv.URL, tt.retries)

			got, err := o.Extract(context.Background(), Request{Text: "John", Fields: []string{"name"}})
			assert.Equal(t, tt.wantCalls, calls.Load())

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "John", got["name"])
				return
			}

			require.Error(t, err)
			assert.Equal(t, tt.wantErr, KindOf(err))
			var oe *Error
			require.ErrorAs(t, err, &oe)
			assert.Equal(t, int(tt.wantCalls), oe.Attempts)
		})
	}
}

func TestOpenAIOracle_CancelledRun(t *testing.T) {
	srv, _ := newEndpoint(t, reply{status: http.StatusOK, content: `{"name": "John"}`})
	o := newTestOracle(t, srv.URL, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Extract(ctx, Request{Text: "John", Fields: []string{"name"}})
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestOpenAIOracle_ListModels(t *testing.T) {
	srv, _ := newEndpoint(t, reply{status: http.StatusOK})
	o := newTestOracle(t, srv.URL, 1)

	models, err := o.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"dudoxx", "dudoxx-mini"}, models)
}
