// pantry/cache/cache.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Cache is a byte-oriented key/value cache with per-entry TTL.
type Cache interface {
	// Get returns ErrNotFound for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set with ttl <= 0 uses the backend's default lifetime.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

var (
	// ErrNotFound is returned by Get for missing or expired keys.
	ErrNotFound = errors.New("cache: key not found")

	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("cache: closed")
)

// GetJSON reads key and decodes it into a T. Missing keys return
// ErrNotFound and the zero T.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, error) {
	var v T
	b, err := c.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}

// SetJSON encodes value as JSON and stores it under key for ttl.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, b, ttl)
}
