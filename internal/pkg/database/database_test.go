package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "default config", mutate: func(c *Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Host = "" }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "missing user", mutate: func(c *Config) { c.User = "" }, wantErr: true},
		{name: "missing db name", mutate: func(c *Config) { c.DBName = "" }, wantErr: true},
		{name: "invalid SSL mode", mutate: func(c *Config) { c.SSLMode = "sometimes" }, wantErr: true},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: true},
		{name: "idle above open", mutate: func(c *Config) { c.MaxIdleConns = 50; c.MaxOpenConns = 10 }, wantErr: true},
		{name: "unbounded open", mutate: func(c *Config) { c.MaxIdleConns = 50; c.MaxOpenConns = 0 }},
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

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	assert.Equal(t, "host=localhost port=5432 user=postgres password=secret dbname=extractor sslmode=disable TimeZone=UTC", cfg.DSN())

	cfg.Timezone = ""
	assert.Contains(t, cfg.DSN(), "TimeZone=UTC")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"unknown": gormlogger.Warn,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{-3, 10, 1, 10},
		{4, 500, 4, 100},
		{2, 25, 2, 25},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.page, tt.size), func(t *testing.T) {
			p, s := NormalizePage(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p)
			assert.Equal(t, tt.wantSize, s)
		})
	}
}

func TestIsRecordNotFoundError(t *testing.T) {
	assert.True(t, IsRecordNotFoundError(gorm.ErrRecordNotFound))
	assert.True(t, IsRecordNotFoundError(fmt.Errorf("get run: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsRecordNotFoundError(errors.New("boom")))
	assert.False(t, IsRecordNotFoundError(nil))
}
