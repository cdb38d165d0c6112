package cache

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEntry(cost int64) *Entry {
	return &Entry{Image: image.NewRGBA(image.Rect(0, 0, 1, 1)), Cost: cost}
}

func TestCacheBoundsHoldAfterEachInsertion(t *testing.T) {
	c, err := New(3, 100)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		key := Key{Path: "/bg/a.png", ModTime: time.Unix(int64(i), 0)}
		c.Insert(key, makeEntry(20))

		stats := c.Stats()
		assert.LessOrEqualf(t, int64(stats.Count), int64(3), "entry bound violated after insertion %d", i)
		assert.LessOrEqualf(t, stats.Bytes, int64(100), "byte bound violated after insertion %d", i)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2, 1000)
	require.NoError(t, err)

	k1 := Key{Path: "/a.png"}
	k2 := Key{Path: "/b.png"}
	k3 := Key{Path: "/c.png"}

	c.Insert(k1, makeEntry(1))
	c.Insert(k2, makeEntry(1))

	// Touch k1 so it is more recent than k2.
	_, ok := c.Get(k1)
	require.True(t, ok, "expected k1 present")

	c.Insert(k3, makeEntry(1))

	_, ok = c.Get(k2)
	assert.False(t, ok, "expected k2 to have been evicted as least-recently-used")
	_, ok = c.Get(k1)
	assert.True(t, ok, "expected k1 to survive eviction")
	_, ok = c.Get(k3)
	assert.True(t, ok, "expected k3 to survive eviction")
}

func TestGetOrInsertCoalescesLoader(t *testing.T) {
	c, err := New(10, 1000)
	require.NoError(t, err)

	key := Key{Path: "/shared.png"}
	calls := 0
	loader := func() (*Entry, error) {
		calls++
		return makeEntry(10), nil
	}

	for i := 0; i < 5; i++ {
		_, err := c.GetOrInsert(key, loader)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, calls, "expected loader to run once")
}

func TestStatsReportsHitsAndMisses(t *testing.T) {
	c, err := New(10, 1000)
	require.NoError(t, err)

	key := Key{Path: "/x.png"}
	_, ok := c.Get(key)
	assert.False(t, ok, "expected miss on empty cache")

	c.Insert(key, makeEntry(5))
	_, ok = c.Get(key)
	assert.True(t, ok, "expected hit after insert")

	stats := c.Stats()
	assert.NotZero(t, stats.Misses)
	assert.NotZero(t, stats.Hits)
}
