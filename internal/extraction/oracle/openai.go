package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAIConfig configures an OpenAI-compatible chat completion endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	JSONMode    bool // ask the endpoint for a json_object response format
	FewShot     bool

	Timeout    time.Duration // per attempt
	MaxRetries int           // total attempts
	RetryDelay time.Duration // first backoff, doubled on every retry

	RateLimit float64 // requests per second, 0 disables
	Burst     int
}

// OpenAIOracle extracts fields with a chat completion call.
type OpenAIOracle struct {
	client  *openai.Client
	cfg     OpenAIConfig
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewOpenAIOracle creates the adapter. APIKey and Model are required.
func NewOpenAIOracle(cfg OpenAIConfig, lgr *logger.Logger) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	log := lgr
	if log == nil {
		log = logger.L()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	log.Info("openai oracle created",
		zap.String("model", cfg.Model),
		zap.String("base_url", clientCfg.BaseURL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("timeout", cfg.Timeout))

	return &OpenAIOracle{
		client:  openai.NewClientWithConfig(clientCfg),
		cfg:     cfg,
		limiter: limiter,
		logger:  log.Named("oracle"),
	}, nil
}

// Model returns the configured model name.
func (o *OpenAIOracle) Model() string {
	return o.cfg.Model
}

// Extract calls the endpoint until it returns a parseable answer, a
// non-retryable error, or the attempts run out.
func (o *OpenAIOracle) Extract(ctx context.Context, req Request) (map[string]any, error) {
	if req.SystemPrompt == "" {
		req.SystemPrompt = DefaultSystemPrompt
	}
	userPrompt := BuildUserPrompt(req, o.cfg.FewShot)

	var lastErr *Error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		fields, err := o.attempt(ctx, req, userPrompt)
		if err == nil {
			return fields, nil
		}
		lastErr = err
		lastErr.Attempts = attempt

		log := o.logger.WithContext(ctx)
		log.Warn("oracle attempt failed",
			zap.Int("attempt", attempt),
			zap.String("kind", string(err.Kind)),
			zap.Error(err))

		if !err.Retryable() || attempt == o.cfg.MaxRetries {
			break
		}

		delay := o.cfg.RetryDelay << (attempt - 1)
		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindCancelled, Message: "run cancelled while backing off", Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (o *OpenAIOracle) attempt(ctx context.Context, req Request, userPrompt string) (map[string]any, *Error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, newError(KindCancelled, "rate limiter wait", err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: o.cfg.Temperature,
	}
	if o.cfg.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(attemptCtx, chatReq)
	if err != nil {
		return nil, classify(ctx, err)
	}

	o.logger.Debug("chat completion",
		zap.String("id", resp.ID),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return nil, newError(KindMalformed, "response has no choices", nil)
	}

	fields, err := ParseResponse(resp.Choices[0].Message.Content, req.Fields)
	if err != nil {
		var oe *Error
		if errors.As(err, &oe) {
			return nil, oe
		}
		return nil, newError(KindMalformed, "parse response", err)
	}
	return fields, nil
}

// classify maps client errors to an oracle error kind. parent is the run
// context, used to tell a cancelled run from an attempt timeout.
func classify(parent context.Context, err error) *Error {
	if parent.Err() != nil {
		return newError(KindCancelled, "run cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindTimeout, "request timed out", err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	var oe *Error
	switch {
	case status == http.StatusTooManyRequests:
		oe = newError(KindRateLimited, "rate limited by endpoint", err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		oe = newError(KindTimeout, "endpoint timed out", err)
	case status >= 500:
		oe = newError(KindServer, "endpoint error", err)
	case status >= 400:
		oe = newError(KindClient, "request rejected", err)
	default:
		oe = newError(KindTransport, "request failed", err)
	}
	oe.StatusCode = status
	return oe
}

// ListModels returns the model ids the endpoint serves.
func (o *OpenAIOracle) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, classify(context.Background(), err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
