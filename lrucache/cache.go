/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

func (e *cacheEntry[K, V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// LRUCache is a cache with a fixed number of entries. The least recently used entry is evicted
// when a new one does not fit.
type LRUCache[K comparable, V any] struct {
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	lruList *list.List
	entries map[K]*list.Element

	loads   loadGroup[K, V]
	metrics MetricsCollector
}

// Options represents options for the cache.
type Options struct {
	// DefaultTTL is applied by Add, GetOrAdd and GetOrLoad. Zero means no expiration.
	// Expired entries are dropped on access or by DeleteExpired.
	DefaultTTL time.Duration

	// Now overrides the time source. Used in tests.
	Now func() time.Time
}

// New creates a new LRUCache. A nil metrics collector disables metrics.
func New[K comparable, V any](maxEntries int, metrics MetricsCollector) (*LRUCache[K, V], error) {
	return NewWithOpts[K, V](maxEntries, metrics, Options{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts[K comparable, V any](maxEntries int, metrics MetricsCollector, opts Options) (*LRUCache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if opts.DefaultTTL < 0 {
		return nil, fmt.Errorf("defaultTTL must not be negative")
	}
	if metrics == nil {
		metrics = disabledMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &LRUCache[K, V]{
		maxEntries: maxEntries,
		defaultTTL: opts.DefaultTTL,
		now:        opts.Now,
		lruList:    list.New(),
		entries:    make(map[K]*list.Element),
		metrics:    metrics,
	}, nil
}

// Get returns the value stored under the key.
func (c *LRUCache[K, V]) Get(key K) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(key)
}

// Add stores the value with the default TTL.
func (c *LRUCache[K, V]) Add(key K, value V) {
	c.AddWithTTL(key, value, c.defaultTTL)
}

// AddWithTTL stores the value with the given TTL. Zero TTL means no expiration.
func (c *LRUCache[K, V]) AddWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, c.expiresAt(ttl))
}

// GetOrAdd returns the stored value or stores the one made by newValue.
// The second result reports whether the value was already present.
func (c *LRUCache[K, V]) GetOrAdd(key K, newValue func() V) (value V, exists bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value, exists = c.get(key); exists {
		return value, true
	}
	value = newValue()
	c.put(key, value, c.expiresAt(c.defaultTTL))
	return value, false
}

// GetOrLoad returns the stored value or calls load to produce it.
// Concurrent calls for the same missing key share a single load.
// Failed loads are not cached.
func (c *LRUCache[K, V]) GetOrLoad(key K, load func() (V, error)) (V, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	return c.loads.do(key, func() (V, error) {
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := load()
		if err != nil {
			return value, err
		}
		c.Add(key, value)
		return value, nil
	})
}

// Remove deletes the entry and reports whether it existed.
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.metrics.SetAmount(len(c.entries))
	return true
}

// Purge removes all entries. Removed entries are not counted as evictions.
func (c *LRUCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]*list.Element)
	c.lruList.Init()
	c.metrics.SetAmount(0)
}

// Len returns the number of entries, expired ones included.
func (c *LRUCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DeleteExpired removes expired entries and returns how many were removed.
func (c *LRUCache[K, V]) DeleteExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for elem := c.lruList.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry[K, V]).expired(now) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	if removed != 0 {
		c.metrics.SetAmount(len(c.entries))
	}
	return removed
}

// RunPeriodicCleanup calls DeleteExpired every interval until ctx is done.
func (c *LRUCache[K, V]) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.DeleteExpired()
		}
	}
}

func (c *LRUCache[K, V]) expiresAt(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *LRUCache[K, V]) get(key K) (value V, ok bool) {
	elem, found := c.entries[key]
	if !found {
		c.metrics.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if entry.expired(c.now()) {
		c.removeElement(elem)
		c.metrics.SetAmount(len(c.entries))
		c.metrics.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.metrics.IncHits()
	return entry.value, true
}

func (c *LRUCache[K, V]) put(key K, value V, expiresAt time.Time) {
	entry := &cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt}
	if elem, ok := c.entries[key]; ok {
		elem.Value = entry
		c.lruList.MoveToFront(elem)
		return
	}
	c.entries[key] = c.lruList.PushFront(entry)
	if len(c.entries) > c.maxEntries {
		c.removeElement(c.lruList.Back())
		c.metrics.AddEvictions(1)
	}
	c.metrics.SetAmount(len(c.entries))
}

func (c *LRUCache[K, V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry[K, V]).key)
}
