package injector

import (
	"fmt"

	"github.com/lk2023060901/llm-field-extractor/internal/auth/middleware"
	"github.com/lk2023060901/llm-field-extractor/internal/conf"
	"github.com/lk2023060901/llm-field-extractor/internal/data"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/biz"
	extdata "github.com/lk2023060901/llm-field-extractor/internal/extraction/data"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/loader"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/oracle"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/service"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/lk2023060901/llm-field-extractor/internal/server"
	"go.uber.org/zap"
)

// App encapsulates all application dependencies
type App struct {
	Config     *conf.Config
	Logger     *logger.Logger
	Data       *data.Data
	Extractor  *biz.Extractor
	Loaders    *loader.Factory
	HTTPServer *server.HTTPServer
	cleanup    func()
}

// Cleanup releases all resources
func (a *App) Cleanup() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// InitializeApp wires the HTTP server.
func InitializeApp(config *conf.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.L()
	}
	app, err := InitializeExtractor(config, log)
	if err != nil {
		return nil, err
	}

	svc := service.NewExtractionService(app.Extractor, app.Loaders, ServiceOptions(config), log)
	app.HTTPServer = server.NewHTTPServer(config, log, svc, rateLimitRunner(app.Data))
	return app, nil
}

// InitializeExtractor wires everything below the transport layer. The CLI
// uses it directly.
func InitializeExtractor(config *conf.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.L()
	}

	d, cleanup, err := data.NewData(config, log)
	if err != nil {
		return nil, err
	}

	extractor, err := NewExtractor(config, d, log)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &App{
		Config:    config,
		Logger:    log,
		Data:      d,
		Extractor: extractor,
		Loaders:   loader.NewFactory(loader.Options{OfficeLicense: config.Office.License}, log),
		cleanup:   cleanup,
	}, nil
}

// NewOracle creates the LLM oracle, cached in Redis when enabled.
func NewOracle(config *conf.Config, d *data.Data, log *logger.Logger) (oracle.Oracle, error) {
	openaiOracle, err := oracle.NewOpenAIOracle(config.OpenAI(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create oracle: %w", err)
	}
	if !config.Cache.Enabled || d == nil || d.Redis == nil {
		return openaiOracle, nil
	}

	log.Info("oracle cache enabled", zap.Duration("ttl", config.Cache.TTL))
	return oracle.NewCachedOracle(openaiOracle, d.Redis, openaiOracle.Model(), config.Cache.Prefix, config.Cache.TTL, log), nil
}

// NewExtractor builds the pipeline with run history and archiving attached
// when their backing services are available.
func NewExtractor(config *conf.Config, d *data.Data, log *logger.Logger) (*biz.Extractor, error) {
	o, err := NewOracle(config, d, log)
	if err != nil {
		return nil, err
	}

	var opts []biz.Option
	if d != nil && d.DB != nil {
		repo := extdata.NewRunRepo(d.DB)
		if config.Database.AutoMigrate {
			if err := repo.Migrate(); err != nil {
				return nil, fmt.Errorf("failed to migrate run history: %w", err)
			}
		}
		opts = append(opts, biz.WithRunRepo(repo))
	}
	if d != nil && d.MinIO != nil {
		opts = append(opts, biz.WithArchive(extdata.NewMinIOArchive(d.MinIO, config.MinIO.Prefix)))
	}

	return biz.NewExtractor(o, log, opts...), nil
}

// ServiceOptions maps the config onto the HTTP service options.
func ServiceOptions(config *conf.Config) service.Options {
	return service.Options{
		Defaults:       config.RunDefaults(),
		OutputFormat:   config.Extraction.OutputFormat,
		MaxUploadBytes: config.MaxUploadBytes(),
		Version:        config.Server.Version,
		Heartbeat:      config.Server.Heartbeat,
	}
}

func rateLimitRunner(d *data.Data) middleware.ScriptRunner {
	if d == nil || d.Redis == nil {
		return nil
	}
	return d.Redis
}
