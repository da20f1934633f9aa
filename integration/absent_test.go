package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAbsentCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAbsentCache([]int{13}, 20*time.Millisecond, 10)

	absent, err := c.IsAbsent(ctx, 13)
	require.NoError(t, err)
	assert.True(t, absent)

	require.NoError(t, c.MarkAbsent(ctx, 7))
	absent, _ = c.IsAbsent(ctx, 7)
	assert.True(t, absent)

	time.Sleep(30 * time.Millisecond)
	absent, _ = c.IsAbsent(ctx, 7)
	assert.False(t, absent)
	absent, _ = c.IsAbsent(ctx, 13)
	assert.True(t, absent, "seeded ids never expire")
	assert.Equal(t, 1, c.Stats().Pinned)
}

type fakeRedis struct {
	keys map[string]time.Duration
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.keys[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisAbsentCache(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{keys: map[string]time.Duration{}}
	c := NewRedisAbsentCache(fake, "", time.Minute)

	require.NoError(t, c.Seed(ctx, []int{13}))
	require.NoError(t, c.MarkAbsent(ctx, 42))

	assert.Equal(t, time.Duration(0), fake.keys["composite:absent:13"])
	assert.Equal(t, time.Minute, fake.keys["composite:absent:42"])

	absent, err := c.IsAbsent(ctx, 13)
	require.NoError(t, err)
	assert.True(t, absent)
	absent, _ = c.IsAbsent(ctx, 1)
	assert.False(t, absent)
}

func TestRedisAbsentCache_SeedKeepsNoExpiry(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{keys: map[string]time.Duration{}}
	c := NewRedisAbsentCache(fake, "", time.Minute)

	require.NoError(t, c.Seed(ctx, []int{13}))
	require.NoError(t, c.MarkAbsent(ctx, 13))
	assert.Equal(t, time.Duration(0), fake.keys["composite:absent:13"], "seed must not gain a TTL")

	// 另一个实例写入的种子同样不会被动态记录覆盖
	other := NewRedisAbsentCache(fake, "", time.Minute)
	require.NoError(t, other.MarkAbsent(ctx, 13))
	assert.Equal(t, time.Duration(0), fake.keys["composite:absent:13"])

	delete(fake.keys, "composite:absent:13")
	absent, err := c.IsAbsent(ctx, 13)
	require.NoError(t, err)
	assert.True(t, absent, "seeded ids are answered without Redis")
}

func TestRedisAbsentCache_MarkAbsentDoesNotRefresh(t *testing.T) {
	ctx := context.Background()
	fake := &fakeRedis{keys: map[string]time.Duration{}}
	c := NewRedisAbsentCache(fake, "", time.Minute)

	fake.keys["composite:absent:42"] = time.Second
	require.NoError(t, c.MarkAbsent(ctx, 42))
	assert.Equal(t, time.Second, fake.keys["composite:absent:42"])
}
