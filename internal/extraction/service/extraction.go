package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/formatter"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/loader"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/database"
	apperrors "github.com/lk2023060901/llm-field-extractor/internal/pkg/errors"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/response"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/sse"
	"go.uber.org/zap"
)

// SSE event types of the stream endpoint.
const (
	EventChunk  = "chunk"
	EventResult = "result"
	EventError  = "error"
)

// Options configure the HTTP front end of the extractor.
type Options struct {
	// Defaults fill every option a request leaves out.
	Defaults       types.RunConfig
	OutputFormat   string
	MaxUploadBytes int64
	Version        string

	StreamBuffer int
	Heartbeat    time.Duration
	// HealthTimeout bounds the model listing done by /health.
	HealthTimeout time.Duration
}

// ExtractionService exposes the extractor over HTTP.
type ExtractionService struct {
	extractor *biz.Extractor
	loaders   *loader.Factory
	opts      Options
	started   time.Time
	logger    *logger.Logger
}

func NewExtractionService(extractor *biz.Extractor, loaders *loader.Factory, opts Options, lgr *logger.Logger) *ExtractionService {
	if lgr == nil {
		lgr = logger.L()
	}
	if opts.OutputFormat == "" {
		opts.OutputFormat = formatter.FormatJSON
	}
	if opts.StreamBuffer <= 0 {
		opts.StreamBuffer = 16
	}
	if opts.HealthTimeout <= 0 {
		opts.HealthTimeout = 5 * time.Second
	}
	return &ExtractionService{
		extractor: extractor,
		loaders:   loaders,
		opts:      opts,
		started:   time.Now(),
		logger:    lgr.Named("http"),
	}
}

// RegisterRoutes mounts the API under api.
func (s *ExtractionService) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/extract", s.Extract)
	api.POST("/extract/file", s.ExtractFile)
	api.POST("/extract/stream", s.ExtractStream)
	api.GET("/runs", s.ListRuns)
	api.GET("/runs/:id", s.GetRun)
	api.GET("/models", s.ListModels)
	api.GET("/docs", s.Docs)
}

// Extract handles POST /extract.
func (s *ExtractionService) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.HandleError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	format, err := s.outputFormat(req.OutputFormat)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	doc := &types.Document{Source: "request", Encoding: "utf-8", Content: req.Text}
	s.run(c, &req, doc, format)
}

// ExtractFile handles POST /extract/file. Options arrive as form values with
// comma separated lists.
func (s *ExtractionService) ExtractFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.HandleError(c, apperrors.NewInvalidInputError("file is required"))
		return
	}
	if s.opts.MaxUploadBytes > 0 && fh.Size > s.opts.MaxUploadBytes {
		response.HandleError(c, apperrors.New(apperrors.ErrFileTooLarge,
			fmt.Sprintf("%d bytes exceeds the limit of %d", fh.Size, s.opts.MaxUploadBytes)))
		return
	}

	req, err := formRequest(c)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	format, err := s.outputFormat(req.OutputFormat)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.HandleError(c, apperrors.NewProcessingError(err, "cannot read upload"))
		return
	}
	defer f.Close()

	doc, err := s.loaders.Load(c.Request.Context(), fh.Filename, f)
	if err != nil {
		response.HandleError(c, toAppError(err))
		return
	}
	s.run(c, req, doc, format)
}

func (s *ExtractionService) run(c *gin.Context, req *ExtractRequest, doc *types.Document, format string) {
	cfg := s.runConfig(req)
	report, err := s.extractor.Extract(c.Request.Context(), biz.Request{Document: doc, Config: cfg})
	if err != nil {
		s.fail(c, err)
		return
	}

	if format == formatter.FormatXLSX {
		data, err := formatter.XLSX(report.Result, formatter.OptionsFrom(cfg, req.Provenance))
		if err != nil {
			response.HandleError(c, apperrors.NewProcessingError(err))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="extraction-%s.xlsx"`, report.RunID))
		c.Header("X-Run-ID", report.RunID)
		c.Data(http.StatusOK, formatter.ContentType(format), data)
		return
	}

	body, err := s.buildResponse(response.RequestID(c), report, cfg, format, req.Provenance)
	if err != nil {
		response.HandleError(c, apperrors.NewProcessingError(err))
		return
	}
	response.Success(c, body)
}

// ExtractStream handles POST /extract/stream. Each chunk outcome is sent as a
// "chunk" event, followed by one "result" or "error" event.
func (s *ExtractionService) ExtractStream(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.HandleError(c, apperrors.NewInvalidInputError(err.Error()))
		return
	}
	format, err := s.outputFormat(req.OutputFormat)
	if err != nil {
		response.HandleError(c, err)
		return
	}
	if format == formatter.FormatXLSX {
		response.HandleError(c, apperrors.New(apperrors.ErrUnsupportedFmt, "xlsx is not available on the stream endpoint"))
		return
	}

	cfg := s.runConfig(&req)
	doc := &types.Document{Source: "request", Encoding: "utf-8", Content: req.Text}
	ctx := c.Request.Context()
	requestID := response.RequestID(c)
	stream := sse.NewStream(c, s.opts.StreamBuffer, s.opts.Heartbeat)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stream.Close()

		var completed atomic.Int64
		report, err := s.extractor.Extract(ctx, biz.Request{
			Document: doc,
			Config:   cfg,
			OnOutcome: func(o types.Outcome) {
				ev := ChunkEvent{ChunkIndex: o.ChunkIndex, Failed: o.Failed(), Completed: int(completed.Add(1))}
				if o.Failure != nil {
					ev.Reason = o.Failure.Reason
				}
				_ = stream.Send(EventChunk, ev)
			},
		})
		if err != nil {
			_ = stream.Send(EventError, errorBody(err))
			return
		}

		body, err := s.buildResponse(requestID, report, cfg, format, req.Provenance)
		if err != nil {
			_ = stream.Send(EventError, errorBody(apperrors.NewProcessingError(err)))
			return
		}
		_ = stream.Send(EventResult, body)
	}()

	if err := stream.Serve(); err != nil {
		s.logger.WithContext(ctx).Info("stream ended early", zap.Error(err))
	}
	<-done
}

// GetRun handles GET /runs/:id.
func (s *ExtractionService) GetRun(c *gin.Context) {
	run, err := s.extractor.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.HandleError(c, toAppError(err))
		return
	}
	response.Success(c, gin.H{
		"status":     response.StatusSuccess,
		"request_id": response.RequestID(c),
		"run":        toRunResponse(run),
	})
}

// ListRuns handles GET /runs?page=&page_size=.
func (s *ExtractionService) ListRuns(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = database.NormalizePage(page, pageSize)

	runs, total, err := s.extractor.ListRuns(c.Request.Context(), page, pageSize)
	if err != nil {
		response.HandleError(c, toAppError(err))
		return
	}

	items := make([]*RunResponse, len(runs))
	for i, run := range runs {
		items[i] = toRunResponse(run)
	}
	response.Success(c, &ListRunsResponse{
		Status:    response.StatusSuccess,
		RequestID: response.RequestID(c),
		Items:     items,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

// ListModels handles GET /models.
func (s *ExtractionService) ListModels(c *gin.Context) {
	models, err := s.extractor.ListModels(c.Request.Context())
	if errors.Is(err, biz.ErrModelsUnsupported) {
		response.HandleError(c, toAppError(err))
		return
	}
	if err != nil {
		response.HandleError(c, apperrors.NewLLMError(err))
		return
	}
	response.Success(c, gin.H{
		"status":     response.StatusSuccess,
		"request_id": response.RequestID(c),
		"models":     models,
	})
}

// Health handles GET /health. A failing model listing degrades the status
// without failing the probe.
func (s *ExtractionService) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.HealthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   s.opts.Version,
		Uptime:    time.Since(s.started).Seconds(),
		LLMStatus: "connected",
	}
	if _, err := s.extractor.ListModels(ctx); err != nil {
		if errors.Is(err, biz.ErrModelsUnsupported) {
			resp.LLMStatus = "unknown"
		} else {
			s.logger.WithContext(ctx).Warn("llm health check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.LLMStatus = "unavailable"
		}
	}
	c.JSON(http.StatusOK, resp)
}

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

var endpoints = []endpoint{
	{http.MethodPost, "/api/v1/extract", "Extract fields from text in a JSON body"},
	{http.MethodPost, "/api/v1/extract/file", "Extract fields from an uploaded file (multipart form, comma separated lists)"},
	{http.MethodPost, "/api/v1/extract/stream", "Extract fields from text, streaming chunk progress as server-sent events"},
	{http.MethodGet, "/api/v1/runs", "List recorded extraction runs"},
	{http.MethodGet, "/api/v1/runs/:id", "Get one recorded extraction run"},
	{http.MethodGet, "/api/v1/models", "List the models served by the LLM endpoint"},
	{http.MethodGet, "/api/v1/docs", "This catalog"},
	{http.MethodGet, "/health", "Service and LLM status"},
}

// Docs handles GET /docs.
func (s *ExtractionService) Docs(c *gin.Context) {
	fileTypes := make([]string, 0)
	for _, t := range s.loaders.SupportedTypes() {
		fileTypes = append(fileTypes, string(t))
	}
	response.Success(c, gin.H{
		"status":         response.StatusSuccess,
		"request_id":     response.RequestID(c),
		"version":        s.opts.Version,
		"endpoints":      endpoints,
		"file_types":     fileTypes,
		"output_formats": formatter.Formats(),
	})
}

func (s *ExtractionService) fail(c *gin.Context, err error) {
	var allFailed *types.AllChunksFailedError
	if errors.As(err, &allFailed) {
		response.HandleErrorWithDetails(c, apperrors.NewLLMError(err), gin.H{
			"reason":        err.Error(),
			"failed_chunks": allFailed.FailedChunks(),
		})
		return
	}
	response.HandleError(c, toAppError(err))
}

func (s *ExtractionService) outputFormat(format string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = s.opts.OutputFormat
	}
	if !formatter.Valid(format) {
		return "", apperrors.New(apperrors.ErrUnsupportedFmt,
			fmt.Sprintf("output_format %q, expected one of %s", format, strings.Join(formatter.Formats(), ", ")))
	}
	return format, nil
}

// runConfig overlays the request options on the configured defaults.
func (s *ExtractionService) runConfig(req *ExtractRequest) types.RunConfig {
	cfg := s.opts.Defaults
	cfg.Fields = req.Fields
	if req.ChunkingMethod != "" {
		cfg.ChunkMethod = req.ChunkingMethod
	}
	if req.ChunkSize != nil {
		cfg.ChunkSize = *req.ChunkSize
	}
	if req.ChunkOverlap != nil {
		cfg.ChunkOverlap = *req.ChunkOverlap
	}
	if req.MinChunkSize != nil {
		cfg.MinChunkSize = *req.MinChunkSize
	}
	if req.MaxWorkers != nil {
		cfg.MaxThreads = *req.MaxWorkers
	}
	if req.SystemPrompt != "" {
		cfg.SystemPrompt = req.SystemPrompt
	}
	if req.DateFields != nil {
		cfg.DateFields = req.DateFields
	}
	if req.DateFormat != "" {
		cfg.DateFormat = req.DateFormat
	}
	if req.UnknownValue != "" {
		cfg.UnknownValue = req.UnknownValue
	}
	if req.ListFields != nil {
		cfg.ListFields = req.ListFields
	}
	if req.ListSeparator != "" {
		cfg.ListSeparator = req.ListSeparator
	}
	return cfg
}

func (s *ExtractionService) buildResponse(requestID string, report *biz.Report, cfg types.RunConfig, format string, provenance bool) (*ExtractResponse, error) {
	fields, err := formatter.JSON(report.Result, formatter.Options{})
	if err != nil {
		return nil, err
	}
	resp := &ExtractResponse{
		Status:          response.StatusSuccess,
		RequestID:       requestID,
		RunID:           report.RunID,
		ProcessingTime:  report.Metrics.ProcessingTime,
		ExtractedFields: fields,
		Metrics:         report.Metrics,
		FailedChunks:    report.Result.FailedChunks(),
		Warnings:        warningsOf(report.Result),
	}
	if provenance {
		resp.Provenance = report.Result.Provenance
	}
	if format != formatter.FormatJSON {
		out, err := formatter.Format(report.Result, format, formatter.OptionsFrom(cfg, provenance))
		if err != nil {
			return nil, err
		}
		resp.FormattedOutput = string(out)
	}
	return resp, nil
}

func formRequest(c *gin.Context) (*ExtractRequest, error) {
	req := &ExtractRequest{
		Fields:         types.SplitList(c.PostForm("fields")),
		ChunkingMethod: c.PostForm("chunking_method"),
		OutputFormat:   c.PostForm("output_format"),
		SystemPrompt:   c.PostForm("system_prompt"),
		DateFields:     types.SplitList(c.PostForm("date_fields")),
		DateFormat:     c.PostForm("date_format"),
		UnknownValue:   c.PostForm("unknown_value"),
		ListFields:     types.SplitList(c.PostForm("list_fields")),
		ListSeparator:  c.PostForm("list_separator"),
	}
	if len(req.Fields) == 0 {
		return nil, apperrors.NewInvalidInputError("fields is required")
	}

	ints := []struct {
		key string
		dst **int
	}{
		{"chunk_size", &req.ChunkSize},
		{"chunk_overlap", &req.ChunkOverlap},
		{"min_chunk_size", &req.MinChunkSize},
		{"max_workers", &req.MaxWorkers},
	}
	for _, f := range ints {
		raw, ok := c.GetPostForm(f.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("%s must be an integer", f.key))
		}
		*f.dst = &n
	}

	if raw := c.PostForm("provenance"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, apperrors.NewInvalidInputError("provenance must be a boolean")
		}
		req.Provenance = b
	}
	return req, nil
}

func errorBody(err error) response.ErrorBody {
	appErr := toAppError(err)
	body := response.ErrorBody{
		Code:    apperrors.GetName(appErr.Code),
		Message: appErr.Message,
	}
	if d := apperrors.GetDetails(appErr); d != "" {
		body.Details = d
	}
	return body
}
