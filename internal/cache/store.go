package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTTL is used when a Store is created with a non-positive ttl.
const DefaultTTL = time.Hour

// Store encodes cache entries as JSON on top of a Backend.
type Store struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// NewStore creates a Store. If logger is nil, a default logger will be used.
func NewStore(backend Backend, ttl time.Duration, logger *slog.Logger) *Store {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend: backend,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "cache")),
	}
}

// TTL returns the default entry lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Get decodes the entry at key into dst. It reports false on a miss.
// An entry that no longer decodes is deleted and treated as a miss.
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("dropping undecodable cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		_ = s.backend.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetWithTTL stores a listing payload of the form {"data":[...], ...}.
// Payloads that are not JSON, or whose data array is missing or empty, are rejected.
func (s *Store) SetWithTTL(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	var probe struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
	}
	if len(probe.Data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPayload, key)
	}
	return s.set(ctx, key, payload, ttl)
}

// SetJSON encodes v and stores it without payload checks.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
	}
	return s.set(ctx, key, raw, ttl)
}

func (s *Store) set(ctx context.Context, key string, raw []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.ttl
	}
	if err := s.backend.Set(ctx, key, raw, ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys. Missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.backend.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// ScanKeys lists the keys matching a glob pattern.
func (s *Store) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.backend.Scan(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	return keys, nil
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}
