package data

import (
	"testing"

	"github.com/lk2023060901/llm-field-extractor/internal/conf"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNeedsRedis(t *testing.T) {
	tests := []struct {
		name      string
		cache     bool
		rateLimit bool
		want      bool
	}{
		{"nothing enabled", false, false, false},
		{"cache", true, false, true},
		{"rate limit", false, true, true},
		{"both", true, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &conf.Config{}
			cfg.Cache.Enabled = tt.cache
			cfg.RateLimit.Enabled = tt.rateLimit
			assert.Equal(t, tt.want, NeedsRedis(cfg))
		})
	}
}

func TestNewData_AllDisabled(t *testing.T) {
	d, cleanup, err := NewData(&conf.Config{}, logger.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, d.DB)
	assert.Nil(t, d.Redis)
	assert.Nil(t, d.MinIO)
}

func TestNewData_InvalidMinIO(t *testing.T) {
	cfg := &conf.Config{}
	cfg.MinIO.Enabled = true

	_, _, err := NewData(cfg, logger.NewNop())
	assert.ErrorContains(t, err, "failed to init minio")
}
