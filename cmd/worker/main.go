// Package main implements the taskflow worker: it consumes the task work
// queues, applies each mutation against Postgres, invalidates the cache,
// publishes task events and keeps hot listings warm.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/taskflow/internal/app"
	"github.com/phrazzld/taskflow/internal/cache"
	"github.com/phrazzld/taskflow/internal/config"
	"github.com/phrazzld/taskflow/internal/notify"
	"github.com/phrazzld/taskflow/internal/pipeline"
	"github.com/phrazzld/taskflow/internal/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, l); err != nil {
		l.Error("worker exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	infra, err := app.Open(ctx, cfg, l, "worker")
	if err != nil {
		return err
	}

	reader := cache.NewReader(infra.Cache, infra.Gateway.Tasks(), l, cache.WithFillTTL(cfg.Cache.FillTTL))
	notifier := notify.NewBrokerNotifier(infra.Broker, notify.Nop{}, l)
	applier := pipeline.NewApplier(infra.Gateway, cache.NewInvalidator(infra.Cache, l), notifier, l)

	metrics, err := pipeline.NewMetrics(infra.Telemetry.Meter)
	if err != nil {
		_ = infra.Close(ctx)
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	dispatcher, err := pipeline.NewDispatcher(applier, infra.Broker, pipeline.Config{
		DedupCapacity:   cfg.Dispatcher.DedupCapacity,
		DedupRetain:     cfg.Dispatcher.DedupRetain,
		PruneInterval:   cfg.Dispatcher.PruneInterval,
		MaxRetries:      cfg.Dispatcher.MaxRetries,
		RequeueDelay:    cfg.Dispatcher.RequeueDelay,
		LedgerRetention: cfg.Dispatcher.LedgerRetention,
	}, l, pipeline.WithTracer(infra.Telemetry.Tracer), pipeline.WithMetrics(metrics))
	if err != nil {
		_ = infra.Close(ctx)
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	pairs, err := infra.HotPairs()
	if err != nil {
		_ = infra.Close(ctx)
		return fmt.Errorf("invalid hot pairs: %w", err)
	}
	warmer := cache.NewWarmer(reader, pairs, cfg.Cache.WarmInterval, l)

	if err := dispatcher.Start(ctx); err != nil {
		_ = infra.Close(ctx)
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	if err := warmer.Start(ctx); err != nil {
		l.Warn("cache warmer not started", slog.String("error", err.Error()))
	}

	l.Info("worker started",
		slog.Int("hot_pairs", len(pairs)),
		slog.Bool("broker_connected", infra.Broker.IsConnected()))

	<-ctx.Done()
	l.Info("shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close drains in-flight deliveries through the broker before the
	// dispatcher, warmer, cache and database go away.
	var shutdownErr error
	if err := infra.Broker.Close(shutdownCtx); err != nil {
		l.Error("broker did not drain cleanly", slog.String("error", err.Error()))
		shutdownErr = err
	}
	dispatcher.Stop()
	warmer.Stop(shutdownCtx)
	if err := infra.Close(shutdownCtx); err != nil {
		l.Error("Error during shutdown", slog.String("error", err.Error()))
	}

	l.Info("worker shutdown completed")
	return shutdownErr
}
