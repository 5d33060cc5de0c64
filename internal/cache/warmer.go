package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/phrazzld/taskflow/internal/domain"
)

// Pair identifies a (team, subject) listing to keep warm.
type Pair struct {
	TeamID    int64
	SubjectID int64
}

// warmStatuses are the listings refreshed for each pair.
var warmStatuses = []domain.StatusFilter{domain.StatusFilterNotCompleted, domain.StatusFilterCompleted}

// Warmer periodically refreshes the first listing page of hot pairs.
type Warmer struct {
	reader   *Reader
	pairs    []Pair
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cronlib.Cron
}

// NewWarmer creates a Warmer. It does nothing until Start.
func NewWarmer(reader *Reader, pairs []Pair, interval time.Duration, logger *slog.Logger) *Warmer {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Warmer{
		reader:   reader,
		pairs:    pairs,
		interval: interval,
		logger:   logger.With(slog.String("component", "cache_warmer")),
	}
}

// WarmOnce refreshes page 1 of every configured listing and returns how many
// listings were loaded. Failures are logged and skipped.
func (w *Warmer) WarmOnce(ctx context.Context) int {
	warmed := 0
	for _, p := range w.pairs {
		for _, status := range warmStatuses {
			filter := domain.TaskFilter{
				TeamID:    p.TeamID,
				SubjectID: p.SubjectID,
				Status:    status,
				Page:      domain.DefaultPage,
				Limit:     domain.DefaultLimit,
			}
			if _, err := w.reader.Refresh(ctx, filter); err != nil {
				w.logger.Warn("cache warm failed",
					slog.Int64("team_id", p.TeamID),
					slog.Int64("subject_id", p.SubjectID),
					slog.String("status", string(status)),
					slog.String("error", err.Error()))
				continue
			}
			warmed++
		}
	}
	w.logger.Debug("cache warmed", slog.Int("listings", warmed))
	return warmed
}

// Start warms once and then schedules WarmOnce every interval.
func (w *Warmer) Start(ctx context.Context) error {
	if len(w.pairs) == 0 {
		w.logger.Info("no hot pairs configured, cache warmer disabled")
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return fmt.Errorf("cache warmer already started")
	}

	w.WarmOnce(ctx)

	cl := cronLogger{w.logger}
	c := cronlib.New(
		cronlib.WithLogger(cl),
		cronlib.WithChain(cronlib.Recover(cl), cronlib.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", w.interval), func() { w.WarmOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule cache warmer: %w", err)
	}
	c.Start()
	w.cron = c
	w.logger.Info("cache warmer started",
		slog.Duration("interval", w.interval),
		slog.Int("pairs", len(w.pairs)))
	return nil
}

// Stop stops scheduling and waits for a running warm to finish or ctx to end.
func (w *Warmer) Stop(ctx context.Context) {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	w.logger.Info("cache warmer stopped")
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, slog.String("error", err.Error()))...)
}
