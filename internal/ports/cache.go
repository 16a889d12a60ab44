package ports

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value cache with per-key TTL.
type Cache interface {
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Health(ctx context.Context) error
}
