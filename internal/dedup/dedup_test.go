package dedup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheContainsBeforeAndAfterTTL(t *testing.T) {
	c := New(0)
	base := time.Now()
	c.Add(7, base.Add(10*time.Second))

	assert.True(t, c.Contains(7, base))
	assert.True(t, c.Contains(7, base.Add(9*time.Second)))
	assert.False(t, c.Contains(7, base.Add(11*time.Second)))
	// Contains evicted the expired entry as a side effect.
	assert.Equal(t, 0, c.Len())
}

func TestCacheAddRefreshesDeadline(t *testing.T) {
	c := New(0)
	base := time.Now()
	c.Add(1, base.Add(time.Second))
	c.Add(1, base.Add(time.Minute))
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(1, base.Add(30*time.Second)))
}

func TestCacheEvictExpiredReturnsCount(t *testing.T) {
	c := New(0)
	base := time.Now()
	c.Add(1, base.Add(time.Second))
	c.Add(2, base.Add(time.Second))
	c.Add(3, base.Add(time.Hour))

	removed := c.EvictExpired(base.Add(2 * time.Second))
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(3, base.Add(2*time.Second)))
}

func TestCacheCapacityEvictsEarliestAdded(t *testing.T) {
	c := New(2)
	base := time.Now()
	far := base.Add(time.Hour)
	c.Add(1, far)
	c.Add(2, far)
	// Capacity exceeded: entry 1 (earliest added) is dropped regardless of
	// its own TTL still being far from expiry.
	c.Add(3, far)

	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Contains(1, base))
	assert.True(t, c.Contains(2, base))
	assert.True(t, c.Contains(3, base))
}

func TestCacheCapacityTouchMovesToBack(t *testing.T) {
	c := New(2)
	base := time.Now()
	far := base.Add(time.Hour)
	c.Add(1, far)
	c.Add(2, far)
	// Re-adding 1 moves it to the back of the eviction order, so the next
	// overflow should drop 2 instead.
	c.Add(1, far)
	c.Add(3, far)

	assert.True(t, c.Contains(1, base))
	assert.False(t, c.Contains(2, base))
	assert.True(t, c.Contains(3, base))
}

func TestCacheClear(t *testing.T) {
	c := New(0)
	c.Add(1, time.Now().Add(time.Hour))
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains(1, time.Now()))
}
