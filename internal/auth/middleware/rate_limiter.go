package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/lk2023060901/llm-field-extractor/internal/pkg/errors"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/response"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/validator"
	"go.uber.org/zap"
)

// Rate limit strategies.
const (
	StrategyIP       = "ip"
	StrategyEndpoint = "endpoint"
	StrategyToken    = "token"
)

// RateLimiterConfig configures RateLimiter.
type RateLimiterConfig struct {
	MaxRequests   int    `mapstructure:"max_requests"`
	WindowSeconds int    `mapstructure:"window_seconds"`
	Strategy      string `mapstructure:"strategy"`
	Prefix        string `mapstructure:"prefix"`
}

// ScriptRunner runs Lua scripts. *redis.Client implements it.
type ScriptRunner interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// slidingWindow keeps one sorted set entry per request inside the window.
const slidingWindow = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window * 1000)
local current = redis.call('ZCARD', key)

if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window * 1000)
	return {1, limit - current - 1, math.floor((now + window * 1000) / 1000)}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
return {0, 0, math.floor((tonumber(oldest) + window * 1000) / 1000)}
`

// RateLimiter limits requests with a Redis sliding window. When Redis fails
// the request is let through.
func RateLimiter(runner ScriptRunner, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 60
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyIP
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "extractor:rate_limit"
	}
	if log == nil {
		log = logger.L()
	}

	return func(c *gin.Context) {
		key := rateLimitKey(c, cfg)
		member := response.RequestID(c)
		if member == "" {
			member = uuid.New().String()
		}
		allowed, remaining, reset, err := checkRateLimit(c.Request.Context(), runner, key, member, cfg)
		if err != nil {
			log.Error("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

		if !allowed {
			c.Header("Retry-After", strconv.Itoa(cfg.WindowSeconds))
			response.AbortWithCode(c, apperrors.ErrRateLimited,
				fmt.Sprintf("limit of %d requests per %ds reached", cfg.MaxRequests, cfg.WindowSeconds))
			return
		}
		c.Next()
	}
}

func rateLimitKey(c *gin.Context, cfg RateLimiterConfig) string {
	ip := validator.GetIPOrDefault(c.ClientIP(), "unknown")
	switch cfg.Strategy {
	case StrategyToken:
		// tokens are never written to redis in clear
		if tok, ok := c.Get(ctxTokenKey); ok {
			sum := sha256.Sum256([]byte(tok.(string)))
			return fmt.Sprintf("%s:token:%x", cfg.Prefix, sum[:8])
		}
		return fmt.Sprintf("%s:ip:%s", cfg.Prefix, ip)
	case StrategyEndpoint:
		return fmt.Sprintf("%s:endpoint:%s:%s", cfg.Prefix, c.FullPath(), ip)
	default:
		return fmt.Sprintf("%s:ip:%s", cfg.Prefix, ip)
	}
}

func checkRateLimit(ctx context.Context, runner ScriptRunner, key, member string, cfg RateLimiterConfig) (bool, int, int64, error) {
	now := time.Now().UnixMilli()
	raw, err := runner.Eval(ctx, slidingWindow, []string{key}, now, cfg.WindowSeconds, cfg.MaxRequests, member)
	if err != nil {
		return false, 0, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, 0, fmt.Errorf("unexpected rate limit reply %v", raw)
	}
	allowed, _ := values[0].(int64)
	remaining, _ := values[1].(int64)
	reset, _ := values[2].(int64)
	return allowed == 1, int(remaining), reset, nil
}
