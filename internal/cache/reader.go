package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/taskflow/internal/domain"
	"github.com/phrazzld/taskflow/internal/platform/logger"
)

// TaskSource is the read side of store.TaskStore.
type TaskSource interface {
	GetByID(ctx context.Context, id int64) (*domain.Task, error)
	List(ctx context.Context, filter domain.TaskFilter) (*domain.TaskPage, error)
}

// listEntry is the JSON shape of a listing page entry.
type listEntry struct {
	Data  []*domain.Task `json:"data"`
	Total int            `json:"total"`
}

// Reader serves task reads from the cache, falling back to the store and
// populating the cache on a miss.
type Reader struct {
	store   *Store
	source  TaskSource
	fillTTL time.Duration
	logger  *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithFillTTL sets the TTL of entries written on a cache miss.
// Zero keeps the Store's TTL.
func WithFillTTL(ttl time.Duration) ReaderOption {
	return func(r *Reader) {
		if ttl > 0 {
			r.fillTTL = ttl
		}
	}
}

// NewReader creates a read-through Reader.
func NewReader(store *Store, source TaskSource, logger *slog.Logger, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reader{
		store:  store,
		source: source,
		logger: logger.With(slog.String("component", "cache_reader")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListTasks returns a listing page. Both the page and count entries must be
// present for a hit. Searches always go to the store.
func (r *Reader) ListTasks(ctx context.Context, filter domain.TaskFilter) (*domain.TaskPage, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	if strings.TrimSpace(filter.Search) != "" {
		return r.source.List(ctx, filter)
	}

	log := logger.FromContextOrDefault(ctx, r.logger)
	listKey := ListKey(filter.TeamID, filter.SubjectID, filter.Status, filter.Page, filter.Limit)
	countKey := CountKey(filter.TeamID, filter.SubjectID, filter.Status)

	var entry listEntry
	var total int
	listHit, err := r.store.Get(ctx, listKey, &entry)
	if err != nil {
		log.Warn("cache read failed", slog.String("key", listKey), slog.String("error", err.Error()))
	}
	countHit := false
	if listHit {
		countHit, err = r.store.Get(ctx, countKey, &total)
		if err != nil {
			log.Warn("cache read failed", slog.String("key", countKey), slog.String("error", err.Error()))
		}
	}
	if listHit && countHit {
		return &domain.TaskPage{Tasks: entry.Data, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
	}

	return r.refresh(ctx, filter, r.fillTTL)
}

// Refresh loads a listing page from the store and writes it to the cache
// with the Store's TTL. Empty pages are not cached.
func (r *Reader) Refresh(ctx context.Context, filter domain.TaskFilter) (*domain.TaskPage, error) {
	return r.refresh(ctx, filter, 0)
}

// refresh on a read miss uses the fill TTL. A load that started before a
// mutation committed can land after that mutation's invalidation, and the
// stale page then lives until the fill TTL expires.
func (r *Reader) refresh(ctx context.Context, filter domain.TaskFilter, ttl time.Duration) (*domain.TaskPage, error) {
	filter = filter.Normalize()
	page, err := r.source.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(page.Tasks) == 0 {
		return page, nil
	}

	log := logger.FromContextOrDefault(ctx, r.logger)
	listKey := ListKey(filter.TeamID, filter.SubjectID, filter.Status, filter.Page, filter.Limit)
	payload, err := json.Marshal(listEntry{Data: page.Tasks, Total: page.Total})
	if err != nil {
		log.Warn("failed to encode cache entry", slog.String("key", listKey), slog.String("error", err.Error()))
		return page, nil
	}
	if err := r.store.SetWithTTL(ctx, listKey, payload, ttl); err != nil {
		log.Warn("cache write failed", slog.String("key", listKey), slog.String("error", err.Error()))
		return page, nil
	}
	countKey := CountKey(filter.TeamID, filter.SubjectID, filter.Status)
	if err := r.store.SetJSON(ctx, countKey, page.Total, ttl); err != nil {
		log.Warn("cache write failed", slog.String("key", countKey), slog.String("error", err.Error()))
	}
	return page, nil
}

// GetTask returns one task, read through the detail entry.
func (r *Reader) GetTask(ctx context.Context, id int64) (*domain.Task, error) {
	key := TaskKey(id)
	log := logger.FromContextOrDefault(ctx, r.logger)

	var task domain.Task
	hit, err := r.store.Get(ctx, key, &task)
	if err != nil {
		log.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	if hit {
		return &task, nil
	}

	loaded, err := r.source.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.store.SetJSON(ctx, key, loaded, r.fillTTL); err != nil {
		log.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
	return loaded, nil
}
