package cache

import (
	"context"
	"time"
)

// Backend is the key-value store behind Store. Patterns use glob syntax
// (`*`, `?`, `[...]`) as in Redis SCAN MATCH.
type Backend interface {
	// Get returns ErrMiss when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
