package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tableflip.dev/widgetsync/pkg/store"
)

// Fetcher loads the authoritative list.
type Fetcher[T any] func(ctx context.Context) ([]T, error)

// Cache is a stale-while-revalidate list cache backed by a TTL-bound
// Local Store slot.
type Cache[T any] struct {
	slot  store.Slot[[]T]
	fetch Fetcher[T]
	log   *slog.Logger

	mu    sync.RWMutex
	items []T
	ready bool

	flight singleflight.Group
	bg     sync.WaitGroup
}

// NewCache creates a cache for key whose stored copy expires after ttl.
func NewCache[T any](s *store.Store, key string, ttl time.Duration, fetch Fetcher[T], log *slog.Logger) *Cache[T] {
	if log == nil {
		log = slog.Default()
	}
	slot := store.NewSlot[[]T](s, key)
	slot.MaxAge = ttl
	return &Cache[T]{slot: slot, fetch: fetch, log: log.With("cache", key)}
}

// Preload returns the list: from memory when ready, else from a fresh
// stored copy (refreshing in the background), else from the server. A
// failed fetch yields an empty list and still marks the cache ready. force
// always fetches.
func (c *Cache[T]) Preload(ctx context.Context, force bool) []T {
	if !force {
		c.mu.RLock()
		if c.ready && len(c.items) > 0 {
			items := c.items
			c.mu.RUnlock()
			return items
		}
		c.mu.RUnlock()

		if cached, _, ok := c.slot.Load(); ok && len(cached) > 0 {
			c.set(cached)
			c.refreshInBackground()
			return cached
		}
	}
	return c.load(ctx)
}

// Items returns what is in memory, possibly nothing.
func (c *Cache[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

// Cached returns a fresh stored copy when there is one, else memory.
func (c *Cache[T]) Cached() []T {
	if cached, _, ok := c.slot.Load(); ok && len(cached) > 0 {
		c.set(cached)
		return cached
	}
	return c.Items()
}

// Ready reports whether a load has completed.
func (c *Cache[T]) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Age reports how old the stored copy is; ok is false when there is none.
func (c *Cache[T]) Age() (time.Duration, bool) {
	_, env, ok := c.slot.Load()
	if !ok {
		return 0, false
	}
	return env.Age(c.slot.Store.Now()), true
}

// Update replaces the in-memory list without persisting it.
func (c *Cache[T]) Update(items []T) {
	c.set(items)
}

// Wait blocks until background refreshes finish.
func (c *Cache[T]) Wait() {
	c.bg.Wait()
}

// Clear resets memory and storage.
func (c *Cache[T]) Clear() error {
	c.mu.Lock()
	c.items = nil
	c.ready = false
	c.mu.Unlock()
	return c.slot.Clear()
}

func (c *Cache[T]) set(items []T) {
	c.mu.Lock()
	c.items = items
	c.ready = true
	c.mu.Unlock()
}

func (c *Cache[T]) load(ctx context.Context) []T {
	v, _, _ := c.flight.Do("fetch", func() (any, error) {
		items, err := c.fetch(ctx)
		if err != nil {
			c.log.Warn("catalog: fetch failed", "error", err)
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
			return []T{}, nil
		}
		if items == nil {
			items = []T{}
		}
		c.set(items)
		if _, err := c.slot.Save(items); err != nil {
			c.log.Warn("catalog: persist failed", "error", err)
		}
		return items, nil
	})
	items, _ := v.([]T)
	return items
}

func (c *Cache[T]) refreshInBackground() {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		c.load(context.Background())
	}()
}
