// pantry/cache/memory.go
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a size-bounded in-process cache. Entries are evicted least
// recently used first and expire after their own TTL or, at the latest,
// after the cache-wide maxTTL.
type Memory struct {
	lru    *expirable.LRU[string, memEntry]
	maxTTL time.Duration
	closed atomic.Bool
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemory holds at most size entries (0 means 1024) for at most maxTTL.
func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = 1024
	}
	if maxTTL <= 0 {
		maxTTL = 10 * time.Minute
	}
	return &Memory{lru: expirable.NewLRU[string, memEntry](size, nil, maxTTL), maxTTL: maxTTL}
}

// Get returns a copy of the stored bytes.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		m.lru.Remove(key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. ttl is capped at the cache-wide maxTTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if ttl <= 0 || ttl > m.maxTTL {
		ttl = m.maxTTL
	}
	m.lru.Add(key, memEntry{value: append([]byte(nil), value...), expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete removes key. Missing keys are not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len counts entries, including expired ones not yet evicted.
func (m *Memory) Len() int { return m.lru.Len() }

// Close drops every entry. Later calls to Get and Set fail with
// ErrClosed.
func (m *Memory) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.lru.Purge()
	}
	return nil
}
