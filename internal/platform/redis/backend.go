package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/taskflow/internal/cache"
)

// scanBatch is the COUNT hint passed to SCAN.
const scanBatch = 100

// Backend implements cache.Backend over a go-redis client.
type Backend struct {
	client goredis.UniversalClient
	logger *slog.Logger
}

var _ cache.Backend = (*Backend)(nil)

// New parses a redis:// URL and returns a Backend. The connection is
// verified with PING.
func New(ctx context.Context, url string, logger *slog.Logger) (*Backend, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	b := NewFromClient(goredis.NewClient(opts), logger)
	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return b, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client goredis.UniversalClient, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client: client,
		logger: logger.With(slog.String("component", "redis_cache")),
	}
}

// Get implements cache.Backend.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrMiss
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Set implements cache.Backend. A zero ttl stores the key without expiry.
func (b *Backend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// Delete implements cache.Backend.
func (b *Backend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

// Scan implements cache.Backend with cursor-based SCAN MATCH.
func (b *Backend) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := b.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Ping implements cache.Backend.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close implements cache.Backend.
func (b *Backend) Close() error {
	return b.client.Close()
}
