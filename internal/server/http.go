package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/llm-field-extractor/internal/auth/middleware"
	"github.com/lk2023060901/llm-field-extractor/internal/conf"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/service"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server  *http.Server
	logger  *logger.Logger
	service *service.ExtractionService
}

// NewHTTPServer builds the router. limiter may be nil, which disables rate
// limiting even when it is enabled in the config.
func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	extractionService *service.ExtractionService,
	limiter middleware.ScriptRunner,
) *HTTPServer {
	if log == nil {
		log = logger.L()
	}
	if config.Server.Mode != "" {
		gin.SetMode(config.Server.Mode)
	}

	router := gin.New()
	router.Use(logger.GinRecovery(log))
	router.Use(logger.GinLogger(log, logger.MiddlewareOptions{
		SkipPaths: []string{"/health"},
	}))
	router.Use(middleware.CORS())

	router.GET("/health", extractionService.Health)

	api := router.Group("/api/v1")
	api.Use(middleware.BearerAuth(config.Auth.APIToken, log))
	if config.RateLimit.Enabled && limiter != nil {
		api.Use(middleware.RateLimiter(limiter, config.RateLimit.RateLimiterConfig, log))
	}
	extractionService.RegisterRoutes(api)

	return &HTTPServer{
		server: &http.Server{
			Addr:         config.Addr(),
			Handler:      router,
			ReadTimeout:  config.Server.ReadTimeout,
			WriteTimeout: config.Server.WriteTimeout,
		},
		logger:  log.Named("server"),
		service: extractionService,
	}
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}
