// Package app opens and closes the infrastructure shared by the taskflow
// binaries: telemetry, the Postgres store, the side cache and the broker.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/broker"
	"github.com/phrazzld/taskflow/internal/cache"
	"github.com/phrazzld/taskflow/internal/config"
	"github.com/phrazzld/taskflow/internal/platform/postgres"
	redisplatform "github.com/phrazzld/taskflow/internal/platform/redis"
	"github.com/phrazzld/taskflow/internal/platform/telemetry"
	"github.com/phrazzld/taskflow/internal/redact"
)

// Infra holds the long-lived clients of a process.
type Infra struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Gateway   *postgres.Gateway
	Cache     *cache.Store
	Broker    *broker.Broker
	Telemetry *telemetry.Provider

	backend cache.Backend
}

// Open connects every dependency in order. component names the process in
// telemetry. A broker that cannot be reached is not fatal: it keeps
// reconnecting in the background. Everything opened so far is closed when a
// later step fails.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, component string) (*Infra, error) {
	infra := &Infra{Config: cfg, Logger: logger}
	if err := infra.open(ctx, component); err != nil {
		if closeErr := infra.Close(ctx); closeErr != nil {
			logger.Error("cleanup after failed start", slog.String("error", closeErr.Error()))
		}
		return nil, err
	}
	return infra, nil
}

func (i *Infra) open(ctx context.Context, component string) error {
	cfg := i.Config

	var err error
	i.Telemetry, err = telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Component:   component,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	i.DB, err = postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database %s: %w", redact.URL(cfg.Database.URL), err)
	}
	i.Logger.Info("database connection established", slog.String("url", redact.URL(cfg.Database.URL)))

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, i.DB, "up", i.Logger); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}
	i.Gateway = postgres.NewGateway(i.DB, i.Logger)

	switch cfg.Cache.Driver {
	case "redis":
		i.backend, err = redisplatform.New(ctx, cfg.Cache.RedisURL, i.Logger)
		if err != nil {
			return err
		}
		i.Logger.Info("redis cache connected", slog.String("url", redact.URL(cfg.Cache.RedisURL)))
	default:
		i.backend = cache.NewMemoryBackend()
		i.Logger.Info("using in-process cache")
	}
	i.Cache = cache.NewStore(i.backend, cfg.Cache.TTL, i.Logger)

	i.Broker = broker.New(broker.Config{
		URL:               cfg.Broker.URL,
		ReconnectAttempts: cfg.Broker.ReconnectAttempts,
		ReconnectDelay:    cfg.Broker.ReconnectDelay,
		MessageTTL:        cfg.Broker.MessageTTL,
		PublishTimeout:    cfg.Broker.PublishTimeout,
	}, broker.DialAMQP, i.Logger)
	if err := i.Broker.Connect(ctx); err != nil {
		i.Logger.Warn("broker unavailable at startup",
			slog.String("url", redact.URL(cfg.Broker.URL)),
			slog.String("error", redact.Error(err)))
	}
	return nil
}

// HotPairs converts the configured hot pairs for the cache warmer.
func (i *Infra) HotPairs() ([]cache.Pair, error) {
	parsed, err := i.Config.Cache.ParseHotPairs()
	if err != nil {
		return nil, err
	}
	pairs := make([]cache.Pair, 0, len(parsed))
	for _, p := range parsed {
		pairs = append(pairs, cache.Pair{TeamID: p.TeamID, SubjectID: p.SubjectID})
	}
	return pairs, nil
}

// Close releases everything Open acquired. The broker is closed first,
// draining in-flight deliveries while the store and cache are still open.
func (i *Infra) Close(ctx context.Context) error {
	var errs []error
	if i.Broker != nil {
		if err := i.Broker.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
	}
	if i.backend != nil {
		if err := i.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := i.Telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}
