package cache

import (
	"context"
	"log/slog"
	"strings"

	"github.com/phrazzld/taskflow/internal/platform/logger"
)

// Invalidator deletes the entries a mutation makes stale. It never fails:
// cache errors are logged and the entries expire on their own.
type Invalidator struct {
	store  *Store
	logger *slog.Logger
}

// NewInvalidator creates an Invalidator over store.
func NewInvalidator(store *Store, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{
		store:  store,
		logger: logger.With(slog.String("component", "cache_invalidator")),
	}
}

// InvalidateTask deletes the detail entry of taskID (when positive) and every
// listing and count entry of the (team, subject) pair.
func (i *Invalidator) InvalidateTask(ctx context.Context, teamID, subjectID, taskID int64) {
	var keys []string
	if taskID > 0 {
		keys = append(keys, TaskKey(taskID))
	}
	keys = append(keys, RoomPatterns(teamID, subjectID)...)
	i.InvalidateKeys(ctx, keys)
}

// InvalidateKeys deletes keys. Entries containing glob characters are
// expanded with a scan first.
func (i *Invalidator) InvalidateKeys(ctx context.Context, keys []string) {
	log := logger.FromContextOrDefault(ctx, i.logger)

	exact := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.ContainsAny(k, "*?[") {
			exact = append(exact, k)
			continue
		}
		matched, err := i.store.ScanKeys(ctx, k)
		if err != nil {
			log.Warn("cache scan failed during invalidation",
				slog.String("pattern", k),
				slog.String("error", err.Error()))
			continue
		}
		exact = append(exact, matched...)
	}

	if err := i.store.Delete(ctx, exact...); err != nil {
		log.Warn("cache invalidation failed",
			slog.Int("keys", len(exact)),
			slog.String("error", err.Error()))
		return
	}
	if len(exact) > 0 {
		log.Debug("cache entries invalidated", slog.Int("keys", len(exact)))
	}
}
