package data

import (
	"context"
	"fmt"

	"github.com/lk2023060901/llm-field-extractor/internal/conf"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/database"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/minio"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/redis"
	"go.uber.org/zap"
)

// Data holds the optional backing services. A nil field means the feature
// using it is disabled in the config.
type Data struct {
	DB     *database.DB
	Redis  *redis.Client
	MinIO  *minio.Client
	Logger *logger.Logger
}

// NeedsRedis reports whether any enabled feature uses Redis.
func NeedsRedis(config *conf.Config) bool {
	return config.Cache.Enabled || config.RateLimit.Enabled
}

// NewData connects to every enabled backing service. The returned cleanup
// closes whatever was opened.
func NewData(config *conf.Config, log *logger.Logger) (*Data, func(), error) {
	if log == nil {
		log = logger.L()
	}
	d := &Data{Logger: log.Named("data")}

	cleanup := func() {
		d.Logger.Info("cleaning up data resources")

		if d.DB != nil {
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("failed to close database", zap.Error(err))
			}
		}
		if d.Redis != nil {
			if err := d.Redis.Close(); err != nil {
				d.Logger.Warn("failed to close redis", zap.Error(err))
			}
		}
		if d.MinIO != nil {
			_ = d.MinIO.Close()
		}
	}

	// Initialize PostgreSQL
	if config.Database.Enabled {
		db, err := database.New(&config.Database.Config, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init database: %w", err)
		}
		d.DB = db
	}

	// Initialize Redis
	if NeedsRedis(config) {
		rdb, err := redis.New(&config.Redis, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		d.Redis = rdb
	}

	// Initialize MinIO
	if config.MinIO.Enabled {
		mc, err := minio.NewClient(&config.MinIO.Config, log)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to init minio: %w", err)
		}
		d.MinIO = mc

		ctx, cancel := context.WithTimeout(context.Background(), config.MinIO.RequestTimeout)
		defer cancel()
		if err := mc.EnsureBucket(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to ensure minio bucket: %w", err)
		}
	}

	d.Logger.Info("data layer initialized",
		zap.Bool("database", d.DB != nil),
		zap.Bool("redis", d.Redis != nil),
		zap.Bool("minio", d.MinIO != nil),
	)
	return d, cleanup, nil
}
