package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"training-platform/internal/app"
	"training-platform/internal/config"
	"training-platform/internal/observability"
	"training-platform/internal/repository"
	"training-platform/internal/server"
)

var version = "dev"

func main() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "configs/config.yml"
	}
	cfgPath := flag.String("config", defaultPath, "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := app.NewLogger(cfg.Log.Mode)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	logger.Info("Starting training platform API", zap.String("version", version))

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     version,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	// Run migrations
	if err := repository.MigrateDB(a.DB, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	gin.SetMode(cfg.Server.Mode)
	srv := server.NewServer(a.DB, server.Services{
		Auth:        a.Auth,
		Annotations: a.Annotations,
		Export:      a.Export,
	}, server.Options{
		ServiceName:    cfg.Tracing.ServiceName,
		Version:        version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Tracing:        cfg.Tracing.Enabled,
		LoginRate:      cfg.Auth.LoginRate,
		LoginBurst:     cfg.Auth.LoginBurst,
	}, logger)

	if err := srv.Run(ctx, ":"+cfg.Server.Port, cfg.Server.ShutdownTimeout); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("Application stopped.")
}
