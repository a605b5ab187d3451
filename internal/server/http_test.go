package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/llm-field-extractor/internal/auth/middleware"
	"github.com/lk2023060901/llm-field-extractor/internal/conf"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/loader"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/oracle"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/service"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
)

type limitedRunner struct{}

func (limitedRunner) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return []interface{}{int64(0), int64(0), int64(1700000000)}, nil
}

func newTestServer(cfg *conf.Config, limiter middleware.ScriptRunner) *HTTPServer {
	o := oracle.Func(func(ctx context.Context, req oracle.Request) (map[string]any, error) {
		return map[string]any{}, nil
	})
	svc := service.NewExtractionService(
		biz.NewExtractor(o, logger.NewNop()),
		loader.NewFactory(loader.Options{}, logger.NewNop()),
		service.Options{Version: "test"},
		logger.NewNop(),
	)
	return NewHTTPServer(cfg, logger.NewNop(), svc, limiter)
}

func testConfig() *conf.Config {
	cfg := &conf.Config{}
	cfg.Server.Mode = gin.TestMode
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8000
	cfg.Auth.APIToken = "secret"
	return cfg
}

func TestHTTPServer_Routes(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"health is public", "/health", "", http.StatusOK},
		{"api requires token", "/api/v1/docs", "", http.StatusUnauthorized},
		{"wrong token", "/api/v1/docs", "nope", http.StatusForbidden},
		{"valid token", "/api/v1/docs", "secret", http.StatusOK},
		{"unknown route", "/api/v1/nothing", "secret", http.StatusNotFound},
	}

	s := newTestServer(testConfig(), nil)
	assert.Equal(t, "127.0.0.1:8000", s.Addr())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(logger.RequestIDHeader))
		})
	}
}

func TestHTTPServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.MaxRequests = 1
	cfg.RateLimit.WindowSeconds = 60

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/docs", nil)
		r.Header.Set("Authorization", "Bearer secret")
		return r
	}

	w := httptest.NewRecorder()
	newTestServer(cfg, limitedRunner{}).Handler().ServeHTTP(w, req())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// no limiter means no rate limiting even when enabled
	w = httptest.NewRecorder()
	newTestServer(cfg, nil).Handler().ServeHTTP(w, req())
	assert.Equal(t, http.StatusOK, w.Code)

	// health is never limited
	w = httptest.NewRecorder()
	newTestServer(cfg, limitedRunner{}).Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
