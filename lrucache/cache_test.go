/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLRUCache_Eviction(t *testing.T) {
	metrics := NewPrometheusMetrics(PrometheusMetricsOpts{})
	cache, err := New[string, int](2, metrics)
	require.NoError(t, err)

	cache.Add("a", 1)
	cache.Add("b", 2)
	_, ok := cache.Get("a") // "b" becomes the least recently used
	require.True(t, ok)
	cache.Add("c", 3)

	_, ok = cache.Get("b")
	require.False(t, ok)
	val, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, val)
	require.Equal(t, 2, cache.Len())

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.Entries))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.Hits))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Misses))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.Evictions))

	require.True(t, cache.Remove("a"))
	require.False(t, cache.Remove("a"))
	cache.Purge()
	require.Equal(t, 0, cache.Len())
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.Entries))
}

func TestLRUCache_Expiration(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	cache, err := NewWithOpts[string, string](10, nil, Options{DefaultTTL: time.Minute, Now: clock.Now})
	require.NoError(t, err)

	cache.Add("short", "x")
	cache.AddWithTTL("long", "y", time.Hour)
	cache.AddWithTTL("forever", "z", 0)

	clock.Advance(time.Minute)
	_, ok := cache.Get("short")
	require.False(t, ok, "entry must expire exactly at its deadline")
	_, ok = cache.Get("long")
	require.True(t, ok)

	clock.Advance(time.Hour)
	require.Equal(t, 1, cache.DeleteExpired())
	require.Equal(t, 1, cache.Len())
	_, ok = cache.Get("forever")
	require.True(t, ok)
}

func TestLRUCache_GetOrAdd(t *testing.T) {
	cache, err := New[string, []int](10, nil)
	require.NoError(t, err)

	v, exists := cache.GetOrAdd("k", func() []int { return []int{1} })
	require.False(t, exists)
	require.Equal(t, []int{1}, v)
	v, exists = cache.GetOrAdd("k", func() []int { return []int{2} })
	require.True(t, exists)
	require.Equal(t, []int{1}, v)
}

func TestLRUCache_GetOrLoad(t *testing.T) {
	cache, err := New[string, string](10, nil)
	require.NoError(t, err)

	t.Run("concurrent loads are shared", func(t *testing.T) {
		var calls int32
		release := make(chan struct{})
		load := func() (string, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return "report", nil
		}

		const callers = 5
		var wg sync.WaitGroup
		results := make([]string, callers)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], _ = cache.GetOrLoad("shared", load)
			}(i)
		}
		require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
		close(release)
		wg.Wait()

		require.Equal(t, int32(1), atomic.LoadInt32(&calls))
		for _, r := range results {
			require.Equal(t, "report", r)
		}
		val, ok := cache.Get("shared")
		require.True(t, ok)
		require.Equal(t, "report", val)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		loadErr := errors.New("upstream down")
		_, err := cache.GetOrLoad("failing", func() (string, error) { return "", loadErr })
		require.ErrorIs(t, err, loadErr)
		_, ok := cache.Get("failing")
		require.False(t, ok)

		val, err := cache.GetOrLoad("failing", func() (string, error) { return "ok", nil })
		require.NoError(t, err)
		require.Equal(t, "ok", val)
	})

	t.Run("panic is propagated", func(t *testing.T) {
		require.Panics(t, func() {
			_, _ = cache.GetOrLoad("panicking", func() (string, error) { panic("boom") })
		})
		val, err := cache.GetOrLoad("panicking", func() (string, error) { return "recovered", nil })
		require.NoError(t, err)
		require.Equal(t, "recovered", val)
	})
}

func TestNew_InvalidArgs(t *testing.T) {
	_, err := New[string, int](0, nil)
	require.EqualError(t, err, "maxEntries must be greater than 0")
	_, err = NewWithOpts[string, int](1, nil, Options{DefaultTTL: -time.Second})
	require.EqualError(t, err, "defaultTTL must not be negative")
}
