package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUPutThenGetRoundTrips(t *testing.T) {
	c := New[string, int](10, 0)

	c.Put("a", 100)
	c.Put("b", 200)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 100, got)

	got, ok = c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 200, got)
}

func TestLRUGetMissesOnUnknownKey(t *testing.T) {
	c := New[string, int](10, 0)

	got, ok := c.Get("never stored")
	assert.False(t, ok)
	assert.Zero(t, got)
}

func TestLRUPutOverwritesExistingKey(t *testing.T) {
	c := New[string, int](10, 0)

	c.Put("a", 1)
	c.Put("a", 2)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, c.Len(), "overwriting must not grow the cache")
}

func TestLRUEvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	c := New[string, int](3, 0)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)
	c.Put("d", 4)

	_, ok := c.Get("a")
	assert.False(t, ok, "the oldest entry must be the one evicted")
	for _, k := range []string{"b", "c", "d"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "entry %q should have survived the eviction", k)
	}
}

func TestLRUGetRefreshesRecency(t *testing.T) {
	c := New[string, int](3, 0)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3)

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("d", 4)

	_, ok = c.Get("a")
	assert.True(t, ok, "a recent Get must protect the entry from eviction")
	_, ok = c.Get("b")
	assert.False(t, ok, "the least recently touched entry must be the one evicted")
}

func TestLRUZeroCapacityIsUnbounded(t *testing.T) {
	c := New[int, int](0, 0)

	for i := 0; i < 5000; i++ {
		c.Put(i, i)
	}
	assert.Equal(t, 5000, c.Len())
}

func TestLRUExpiresEntriesAfterTTL(t *testing.T) {
	c := New[string, int](10, time.Minute)

	base := time.Unix(1700000000, 0)
	c.now = func() time.Time { return base }

	c.Put("a", 1)

	_, ok := c.Get("a")
	require.True(t, ok, "entry must be live before the TTL elapses")

	c.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, ok = c.Get("a")
	assert.False(t, ok, "entry must expire once the TTL has elapsed")
	assert.Equal(t, 0, c.Len(), "an expired entry must be dropped, not retained")
}

func TestLRUPutResetsTTL(t *testing.T) {
	c := New[string, int](10, time.Minute)

	base := time.Unix(1700000000, 0)
	c.now = func() time.Time { return base }
	c.Put("a", 1)

	c.now = func() time.Time { return base.Add(50 * time.Second) }
	c.Put("a", 2)

	c.now = func() time.Time { return base.Add(100 * time.Second) }
	got, ok := c.Get("a")
	require.True(t, ok, "the second Put must have reset the entry's deadline")
	assert.Equal(t, 2, got)
}

func TestLRUDeleteRemovesEntry(t *testing.T) {
	c := New[string, int](10, 0)

	c.Put("a", 1)
	c.Delete("a")
	c.Delete("missing") // no-op

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRUClearEmptiesButKeepsCounters(t *testing.T) {
	c := New[string, int](10, 0)

	c.Put("a", 1)
	_, _ = c.Get("a")
	_, _ = c.Get("miss")
	c.Clear()

	assert.Equal(t, 0, c.Len())
	stats := c.Snapshot()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestLRUSnapshotCountsTraffic(t *testing.T) {
	c := New[string, int](2, 0)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("c", 3) // evicts a

	_, _ = c.Get("b")
	_, _ = c.Get("a")

	stats := c.Snapshot()
	assert.Equal(t, 2, stats.Len)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
}

func TestLRUIsSafeForConcurrentUse(t *testing.T) {
	c := New[string, int](128, 0)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%64)
				c.Put(key, i)
				_, _ = c.Get(key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}

func TestLRUStructKeysAreSupported(t *testing.T) {
	type key struct {
		adapter string
		limit   int
	}
	c := New[key, string](10, 0)

	c.Put(key{adapter: "biomedical", limit: 5}, "records")

	got, ok := c.Get(key{adapter: "biomedical", limit: 5})
	require.True(t, ok)
	assert.Equal(t, "records", got)

	_, ok = c.Get(key{adapter: "biomedical", limit: 3})
	assert.False(t, ok, "a different limit is a different key")
}
