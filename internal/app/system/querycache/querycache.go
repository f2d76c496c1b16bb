// Package querycache caches each user's school-switching data for a short
// TTL and coalesces concurrent fetches for the same user.
package querycache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/metrics"
	"github.com/dalemusser/schoolctx/pantry/cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads school-switching data for the caller owning token.
type Fetcher interface {
	SchoolSwitching(ctx context.Context, token string) (models.SchoolSwitchingData, error)
}

// Cache is a read-through cache of school-switching data keyed by Key.
// Fetches for the same user share one backend call, and a fetch that was
// already running when Invalidate dropped the entry never writes its
// result back.
type Cache struct {
	store  cache.Cache
	fetch  Fetcher
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger

	// mu guards inflight and orders cache writes against Invalidate.
	mu       sync.Mutex
	inflight map[string]*flight
}

// flight is one running fetch. stale is set when Invalidate runs before
// the fetch stores its result.
type flight struct {
	stale bool
}

// New caches results in store for ttl. Failed fetches are never stored.
func New(store cache.Cache, fetch Fetcher, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		store:    store,
		fetch:    fetch,
		ttl:      ttl,
		logger:   logger,
		inflight: make(map[string]*flight),
	}
}

// Key scopes entries by tenant and user.
func Key(user models.User) string {
	return "switching:" + user.TenantID + ":" + user.ID
}

// Get returns cached data for user or fetches it with token.
func (c *Cache) Get(ctx context.Context, user models.User, token string) (models.SchoolSwitchingData, error) {
	key := Key(user)

	data, err := cache.GetJSON[models.SchoolSwitchingData](ctx, c.store, key)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return data, nil
	case !errors.Is(err, cache.ErrNotFound):
		c.logger.Warn("switching cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	// The shared fetch outlives any single caller's cancellation; the
	// HTTP client's own timeout still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		fl := c.begin(key)
		d, err := c.fetch.SchoolSwitching(fetchCtx, token)
		if err != nil {
			c.end(key, fl)
			metrics.SwitchingFetchFailures.Inc()
			return nil, err
		}
		c.storeResult(fetchCtx, key, fl, d)
		return d, nil
	})

	select {
	case <-ctx.Done():
		return models.SchoolSwitchingData{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.SchoolSwitchingData{}, res.Err
		}
		return res.Val.(models.SchoolSwitchingData), nil
	}
}

// Invalidate drops user's entry so the next Get refetches. A fetch for
// user that is still running is marked stale and its result is not cached.
func (c *Cache) Invalidate(ctx context.Context, user models.User) error {
	key := Key(user)

	c.mu.Lock()
	defer c.mu.Unlock()
	if fl, ok := c.inflight[key]; ok {
		fl.stale = true
	}
	c.group.Forget(key)
	if err := c.store.Delete(ctx, key); err != nil && !errors.Is(err, cache.ErrNotFound) {
		return err
	}
	return nil
}

func (c *Cache) begin(key string) *flight {
	fl := &flight{}
	c.mu.Lock()
	c.inflight[key] = fl
	c.mu.Unlock()
	return fl
}

func (c *Cache) end(key string, fl *flight) {
	c.mu.Lock()
	c.release(key, fl)
	c.mu.Unlock()
}

// release must be called with mu held.
func (c *Cache) release(key string, fl *flight) {
	if c.inflight[key] == fl {
		delete(c.inflight, key)
	}
}

// storeResult writes d under key unless fl went stale while fetching.
func (c *Cache) storeResult(ctx context.Context, key string, fl *flight, d models.SchoolSwitchingData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.release(key, fl)
	if fl.stale {
		c.logger.Debug("dropping switching data fetched before invalidation", zap.String("key", key))
		return
	}
	if err := cache.SetJSON(ctx, c.store, key, d, c.ttl); err != nil {
		c.logger.Warn("switching cache write failed", zap.String("key", key), zap.Error(err))
	}
}
