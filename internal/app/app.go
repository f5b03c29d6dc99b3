// Package app wires configuration into repositories and services for the
// API server and the command line tool.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"training-platform/internal/config"
	"training-platform/internal/notify"
	"training-platform/internal/repository"
	"training-platform/internal/service"
	"training-platform/internal/session"
)

// App holds the long-lived dependencies built from a configuration.
type App struct {
	Config      *config.Config
	DB          *sqlx.DB
	Auth        service.AuthService
	Annotations service.AnnotationService
	Export      service.ExportService
	Logger      *zap.Logger

	redis *redis.Client
}

// NewLogger builds the process logger for mode "development" or "production".
func NewLogger(mode string) (*zap.Logger, error) {
	if mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// New opens the database and builds the services. Migrations are not run.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg.Database.Driver == repository.DriverSQLite {
		if dir := filepath.Dir(cfg.Database.URL); dir != "." && cfg.Database.URL != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := repository.NewDB(cfg.Database.Driver, cfg.Database.URL, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db, Logger: logger}

	revoked, err := a.revocationStore(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	users := repository.NewUserRepository(db, logger)
	annotations := repository.NewAnnotationRepository(db, logger)
	activity := repository.NewActivityRepository(db, logger)
	vocabulary := repository.NewVocabularyRepository(db, logger)

	a.Auth = service.NewAuthService(users, activity, revoked, service.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
		TokenTTL:  cfg.Auth.TokenTTL,
	}, logger)
	a.Annotations = service.NewAnnotationService(annotations, activity, a.notifier(), logger)
	a.Export = service.NewExportService(annotations, vocabulary, logger)
	return a, nil
}

func (a *App) revocationStore(ctx context.Context) (session.RevocationStore, error) {
	rc := a.Config.Redis
	if !rc.Enabled {
		a.Logger.Info("Token revocation kept in memory")
		return session.NewMemoryStore(), nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rdb, err := session.Connect(pingCtx, rc.Addr, rc.Password, rc.DB)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rdb
	a.Logger.Info("Token revocation kept in Redis", zap.String("addr", rc.Addr))
	return session.NewRedisStore(rdb), nil
}

func (a *App) notifier() notify.Notifier {
	tc := a.Config.Notify.Telegram
	if !tc.Enabled {
		return notify.Nop{}
	}
	tg, err := notify.NewTelegramBot(tc.BotToken, tc.ReviewerChatIDs, notify.BreakerConfig{
		MaxFailures: tc.MaxFailures,
		OpenTimeout: tc.OpenTimeout,
	}, a.Logger)
	if err != nil {
		a.Logger.Warn("Failed to initialize Telegram bot, continuing without notifications", zap.Error(err))
		return notify.Nop{}
	}
	return tg
}

// Close releases the database and Redis connections.
func (a *App) Close() error {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	return a.DB.Close()
}
