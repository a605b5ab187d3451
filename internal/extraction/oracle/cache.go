package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"go.uber.org/zap"
)

// Cache stores serialized oracle answers. pkg/redis.Client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// CachedOracle memoizes successful answers. Cache failures are treated as misses.
type CachedOracle struct {
	next   Oracle
	cache  Cache
	ttl    time.Duration
	prefix string
	model  string
	logger *logger.Logger
}

// NewCachedOracle wraps next. model becomes part of every key.
func NewCachedOracle(next Oracle, cache Cache, model, prefix string, ttl time.Duration, lgr *logger.Logger) *CachedOracle {
	if lgr == nil {
		lgr = logger.L()
	}
	if prefix == "" {
		prefix = "extract:oracle:"
	}
	return &CachedOracle{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		prefix: prefix,
		model:  model,
		logger: lgr.Named("oracle.cache"),
	}
}

func (c *CachedOracle) Extract(ctx context.Context, req Request) (map[string]any, error) {
	key := c.key(req)

	if raw, err := c.cache.Get(ctx, key); err == nil && raw != "" {
		var fields map[string]any
		if err := json.Unmarshal([]byte(raw), &fields); err == nil {
			c.logger.Debug("oracle cache hit", zap.String("key", key))
			return fields, nil
		}
	}

	fields, err := c.next.Extract(ctx, req)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(fields); err == nil {
		if err := c.cache.Set(ctx, key, string(b), c.ttl); err != nil {
			c.logger.Warn("oracle cache write failed", zap.Error(err))
		}
	}
	return fields, nil
}

// ListModels forwards to the wrapped oracle when it can list models.
func (c *CachedOracle) ListModels(ctx context.Context) ([]string, error) {
	if lister, ok := c.next.(ModelLister); ok {
		return lister.ListModels(ctx)
	}
	return nil, nil
}

func (c *CachedOracle) key(req Request) string {
	b, _ := json.Marshal(struct {
		Model string  `json:"model"`
		Req   Request `json:"req"`
	}{c.model, req})
	sum := sha256.Sum256(b)
	return c.prefix + hex.EncodeToString(sum[:])
}
