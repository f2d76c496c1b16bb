// pantry/session/redis.go
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares sessions across replicas. Keys expire with the session.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStore uses client, which the caller owns; Close does not close it.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "schoolctx:session:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(id string) string { return s.keyPrefix + id }

// Load maps redis.Nil to ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, id string) (*Data, error) {
	b, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	if time.Now().After(d.ExpiresAt) {
		return nil, ErrExpired
	}
	return &d, nil
}

// Save writes d with a TTL matching its expiry. An already expired
// session is not written.
func (s *RedisStore) Save(ctx context.Context, d *Data) error {
	ttl := time.Until(d.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(d.ID), b, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Delete removes id. Missing ids are not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error { return nil }
