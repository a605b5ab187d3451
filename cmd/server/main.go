package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/conf"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/injector"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", conf.DefaultConfigPath, "config file path")
	envFile    = flag.String("env-file", conf.DefaultEnvFile, "dotenv file with DUDOXX_* settings")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.Load(*configFile, *envFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log, err := logger.New(&config.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("config loaded successfully",
		zap.String("model", config.LLM.Model),
		zap.String("base_url", config.LLM.BaseURL),
		zap.Bool("history", config.Database.Enabled),
		zap.Bool("archive", config.MinIO.Enabled),
		zap.Bool("cache", config.Cache.Enabled),
	)

	app, err := injector.InitializeApp(config, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer app.Cleanup()

	go func() {
		if err := app.HTTPServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully", zap.String("addr", app.HTTPServer.Addr()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// in-flight extractions get a grace period before their connections are cut
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.HTTPServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
