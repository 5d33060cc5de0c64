package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow/internal/api"
	"github.com/phrazzld/taskflow/internal/app"
	"github.com/phrazzld/taskflow/internal/cache"
	"github.com/phrazzld/taskflow/internal/config"
	"github.com/phrazzld/taskflow/internal/notify"
	"github.com/phrazzld/taskflow/internal/pipeline"
)

// application holds the server dependencies so they can be wired once and
// released together on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	infra  *app.Infra

	rooms  *notify.RoomRegistry
	hub    *notify.Hub
	relay  *notify.Relay
	tasks  *api.TaskHandler
	health *api.HealthHandler
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	infra, err := app.Open(ctx, cfg, logger, "server")
	if err != nil {
		return nil, err
	}

	a := &application{
		config: cfg,
		logger: logger,
		infra:  infra,
		rooms:  notify.NewRoomRegistry(logger),
	}

	a.hub = notify.NewHub(a.rooms, notify.HubConfig{
		AllowedOrigins: cfg.Notify.AllowedOrigins,
		OutboxSize:     cfg.Notify.OutboxSize,
	}, logger)

	// Events published by the worker, or by the fallback path below, reach
	// this process's sockets through the relay.
	a.relay = notify.NewRelay(infra.Broker, a.rooms, logger)
	if err := a.relay.Start(); err != nil {
		_ = infra.Close(ctx)
		return nil, fmt.Errorf("failed to start event relay: %w", err)
	}

	notifier := notify.NewBrokerNotifier(infra.Broker, a.rooms, logger)
	applier := pipeline.NewApplier(infra.Gateway, cache.NewInvalidator(infra.Cache, logger), notifier, logger)
	reader := cache.NewReader(infra.Cache, infra.Gateway.Tasks(), logger, cache.WithFillTTL(cfg.Cache.FillTTL))

	a.tasks = api.NewTaskHandler(pipeline.NewProducer(infra.Broker, logger), applier, reader, logger)
	a.health = api.NewHealthHandler(infra.Gateway, infra.Cache, infra.Broker)

	logger.Info("Application initialized successfully")
	return a, nil
}

// Run serves HTTP until ctx ends, then shuts everything down.
func (a *application) Run(ctx context.Context) error {
	router := setupRouter(routerDeps{
		tasks:          a.tasks,
		health:         a.health,
		hub:            a.hub,
		logger:         a.logger,
		allowedOrigins: a.config.Notify.AllowedOrigins,
	})
	if err := a.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (a *application) cleanup(ctx context.Context) {
	if a.infra == nil {
		return
	}
	if err := a.infra.Close(ctx); err != nil {
		a.logger.Error("Error during shutdown", slog.String("error", err.Error()))
	}
	a.logger.Info("Application shutdown completed")
}
