package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps a go-redis universal client.
type Client struct {
	config *Config
	logger *logger.Logger
	rdb    redis.UniversalClient
	closed atomic.Bool
}

// New connects to Redis and pings it.
func New(cfg *Config, log *logger.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.L()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := NewWithClient(newUniversalClient(cfg), log)
	c.config = cfg

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis client initialized",
		zap.String("mode", string(cfg.Mode)),
		zap.Strings("addrs", cfg.Addrs),
	)
	return c, nil
}

// NewWithClient wraps an existing go-redis client.
func NewWithClient(rdb redis.UniversalClient, log *logger.Logger) *Client {
	if log == nil {
		log = logger.L()
	}
	return &Client{config: DefaultConfig(), logger: log.Named("redis"), rdb: rdb}
}

func newUniversalClient(cfg *Config) redis.UniversalClient {
	opts := universalOptions(cfg)
	switch cfg.Mode {
	case ModeCluster:
		return redis.NewClusterClient(opts.Cluster())
	case ModeSentinel:
		return redis.NewFailoverClient(opts.Failover())
	default:
		return redis.NewClient(opts.Simple())
	}
}

func universalOptions(cfg *Config) *redis.UniversalOptions {
	opts := &redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	}
	if cfg.Mode == ModeSentinel {
		opts.MasterName = cfg.MasterName
	}
	return opts
}

// Get returns the string value stored at key. A missing key yields ErrNil.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil && !IsNil(err) {
		c.logger.WithContext(ctx).Debug("redis get failed", zap.String("key", key), zap.Error(err))
	}
	return val, err
}

// Set stores value at key. A zero expiration keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.rdb.Set(ctx, key, value, expiration).Err(); err != nil {
		c.logger.WithContext(ctx).Debug("redis set failed", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}
	return c.rdb.Del(ctx, keys...).Result()
}

// Eval runs a Lua script atomically.
func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.rdb.Eval(ctx, script, keys, args...).Result()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return c.rdb.Ping(ctx).Err()
}

// Close closes the client. Later calls fail with ErrClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Info("closing redis client")
	return c.rdb.Close()
}
