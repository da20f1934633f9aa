package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_BasicOperations(t *testing.T) {
	c := New[int, string](Config{Name: "test", MaxSize: 10})

	c.Set(1, "one")
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	_, ok = c.Get(2)
	assert.False(t, ok)

	assert.True(t, c.Delete(1))
	assert.False(t, c.Delete(1))
	assert.False(t, c.Contains(1))
	assert.Equal(t, "test", c.Name())
}

func TestCache_LRUEviction(t *testing.T) {
	c := New[int, int](Config{MaxSize: 2})

	c.Set(1, 1)
	c.Set(2, 2)
	_, _ = c.Get(1) // 1 变为最近使用
	c.Set(3, 3)

	assert.True(t, c.Contains(1))
	assert.False(t, c.Contains(2))
	assert.True(t, c.Contains(3))
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestCache_PinnedEntriesSurviveEvictionAndTTL(t *testing.T) {
	c := New[int, struct{}](Config{MaxSize: 1, TTL: 20 * time.Millisecond, ExpireAfterWrite: true})

	c.SetPinned(13, struct{}{})
	c.Set(1, struct{}{})
	c.Set(2, struct{}{}) // 驱逐 1，不影响 13

	assert.False(t, c.Contains(1))
	assert.True(t, c.Contains(13))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, c.Contains(13))
	assert.False(t, c.Contains(2))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Pinned)
	assert.Equal(t, 1, stats.Size)
}

func TestCache_SetPinnedPromotesExisting(t *testing.T) {
	c := New[int, int](Config{MaxSize: 1})
	c.Set(1, 1)
	c.SetPinned(1, 1)
	c.Set(2, 2)
	c.Set(3, 3)

	assert.True(t, c.Contains(1))
	assert.Equal(t, 2, c.Size())
}

func TestCache_ExpireAfterAccess(t *testing.T) {
	c := New[int, int](Config{TTL: 40 * time.Millisecond})
	c.Set(1, 1)

	time.Sleep(25 * time.Millisecond)
	assert.True(t, c.Contains(1)) // 访问续期
	time.Sleep(25 * time.Millisecond)
	assert.True(t, c.Contains(1))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.Contains(1))
	assert.Equal(t, int64(1), c.Stats().Expires)
}

func TestCache_ExpireAfterWrite(t *testing.T) {
	c := New[int, int](Config{TTL: 40 * time.Millisecond, ExpireAfterWrite: true})
	c.Set(1, 1)

	time.Sleep(25 * time.Millisecond)
	assert.True(t, c.Contains(1))
	time.Sleep(25 * time.Millisecond)
	assert.False(t, c.Contains(1))
}

func TestCache_CleanExpired(t *testing.T) {
	c := New[int, int](Config{TTL: 10 * time.Millisecond})
	c.Set(1, 1)
	c.Set(2, 2)
	c.SetPinned(3, 3)

	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 2, c.CleanExpired())
	assert.Equal(t, 1, c.Size())
	assert.Equal(t, 0, New[int, int](Config{}).CleanExpired())
}

func TestCache_OnEvict(t *testing.T) {
	var evicted []any
	c := New[string, int](Config{MaxSize: 1, OnEvict: func(key, value any) { evicted = append(evicted, key) }})

	c.Set("a", 1)
	c.Set("b", 2)

	assert.Equal(t, []any{"a"}, evicted)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[int, int](Config{MaxSize: 50})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(g*1000+i, i)
				_, _ = c.Get(g*1000 + i/2)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Size(), 50)
	assert.Contains(t, c.String(), "max=50")
}
