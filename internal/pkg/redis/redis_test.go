package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default", mutate: func(c *Config) {}},
		{name: "single needs one address", mutate: func(c *Config) { c.Addrs = []string{"a:1", "b:2"} }, wantErr: true},
		{name: "sentinel without master", mutate: func(c *Config) { c.Mode = ModeSentinel }, wantErr: true},
		{name: "sentinel", mutate: func(c *Config) { c.Mode = ModeSentinel; c.MasterName = "mymaster" }},
		{name: "cluster", mutate: func(c *Config) { c.Mode = ModeCluster; c.Addrs = []string{"a:1", "b:2"} }},
		{name: "cluster with db", mutate: func(c *Config) { c.Mode = ModeCluster; c.DB = 2 }, wantErr: true},
		{name: "unknown mode", mutate: func(c *Config) { c.Mode = "ring" }, wantErr: true},
		{name: "db out of range", mutate: func(c *Config) { c.DB = 16 }, wantErr: true},
		{name: "zero pool", mutate: func(c *Config) { c.PoolSize = 0 }, wantErr: true},
		{name: "idle above pool", mutate: func(c *Config) { c.MinIdleConns = 20 }, wantErr: true},
		{name: "zero dial timeout", mutate: func(c *Config) { c.DialTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUniversalOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeSentinel
	cfg.Addrs = []string{"s1:26379", "s2:26379"}
	cfg.MasterName = "mymaster"
	cfg.Password = "pw"

	opts := universalOptions(cfg)
	assert.Equal(t, cfg.Addrs, opts.Addrs)
	assert.Equal(t, "mymaster", opts.MasterName)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)
}

func TestClosedClient(t *testing.T) {
	rdb := goredis.NewClient(&goredis.Options{Addr: "localhost:0"})
	c := NewWithClient(rdb, logger.NewNop())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	ctx := context.Background()
	_, err := c.Get(ctx, "k")
	assert.True(t, IsClosed(err))
	assert.True(t, IsClosed(c.Set(ctx, "k", "v", 0)))
	assert.True(t, IsClosed(c.Ping(ctx)))
	_, err = c.Eval(ctx, "return 1", nil)
	assert.True(t, IsClosed(err))
}

// Requires a running Redis, e.g. EXTRACTOR_TEST_REDIS=localhost:6379.
func TestClient_Integration(t *testing.T) {
	addr := os.Getenv("EXTRACTOR_TEST_REDIS")
	if addr == "" {
		t.Skip("EXTRACTOR_TEST_REDIS not set")
	}

	cfg := DefaultConfig()
	cfg.Addrs = []string{addr}
	c, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	key := "extractor:test:" + time.Now().Format("150405.000000")

	_, err = c.Get(ctx, key)
	assert.True(t, IsNil(err))

	require.NoError(t, c.Set(ctx, key, `{"name":"John"}`, time.Minute))
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"John"}`, got)

	n, err := c.Del(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
