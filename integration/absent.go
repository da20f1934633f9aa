package integration

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gocomposite/cache"
	"gocomposite/errors"
)

// AbsentCache 已确认不存在的产品ID（负结果缓存）
//
// 回退路径用它在熔断期间仍对这些ID返回 NotFound。
type AbsentCache interface {
	IsAbsent(ctx context.Context, productID int) (bool, error)
	MarkAbsent(ctx context.Context, productID int) error
}

// MemoryAbsentCache 进程内实现；种子ID固定驻留，其余按写入时间过期
type MemoryAbsentCache struct {
	entries *cache.Cache[int, struct{}]
}

// NewMemoryAbsentCache ttl 为动态记录的存活时间，maxSize 限制动态记录数量
func NewMemoryAbsentCache(seed []int, ttl time.Duration, maxSize int) *MemoryAbsentCache {
	c := &MemoryAbsentCache{
		entries: cache.New[int, struct{}](cache.Config{
			Name:             "known_absent",
			MaxSize:          maxSize,
			TTL:              ttl,
			ExpireAfterWrite: true,
		}),
	}
	for _, id := range seed {
		c.entries.SetPinned(id, struct{}{})
	}
	return c
}

func (c *MemoryAbsentCache) IsAbsent(_ context.Context, productID int) (bool, error) {
	return c.entries.Contains(productID), nil
}

func (c *MemoryAbsentCache) MarkAbsent(_ context.Context, productID int) error {
	c.entries.Set(productID, struct{}{})
	return nil
}

// Stats 缓存统计
func (c *MemoryAbsentCache) Stats() cache.CacheStats {
	return c.entries.Stats()
}

// redisKV RedisAbsentCache 用到的 go-redis 子集
type redisKV interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisAbsentCache 多实例共享的实现：SET key 1 EX ttl NX / EXISTS key
//
// 种子ID同时保存在进程内，且动态记录只用 NX 写入，不会给不过期的种子加上 TTL。
type RedisAbsentCache struct {
	client redisKV
	prefix string
	ttl    time.Duration
	seeds  map[int]struct{}
}

// NewRedisAbsentCache prefix 为空时使用 "composite:absent:"
func NewRedisAbsentCache(client redisKV, prefix string, ttl time.Duration) *RedisAbsentCache {
	if prefix == "" {
		prefix = "composite:absent:"
	}
	return &RedisAbsentCache{client: client, prefix: prefix, ttl: ttl, seeds: make(map[int]struct{})}
}

// Seed 写入不过期的种子ID；启动阶段调用，不与查询并发
func (c *RedisAbsentCache) Seed(ctx context.Context, ids []int) error {
	for _, id := range ids {
		c.seeds[id] = struct{}{}
		if err := c.client.Set(ctx, c.key(id), 1, 0).Err(); err != nil {
			return errors.WrapError(err, errors.ErrCodeInternal, "failed to seed known-absent id "+strconv.Itoa(id))
		}
	}
	return nil
}

func (c *RedisAbsentCache) IsAbsent(ctx context.Context, productID int) (bool, error) {
	if _, ok := c.seeds[productID]; ok {
		return true, nil
	}
	n, err := c.client.Exists(ctx, c.key(productID)).Result()
	if err != nil {
		return false, errors.WrapError(err, errors.ErrCodeInternal, "known-absent lookup failed")
	}
	return n > 0, nil
}

func (c *RedisAbsentCache) MarkAbsent(ctx context.Context, productID int) error {
	if _, ok := c.seeds[productID]; ok {
		return nil
	}
	if err := c.client.SetNX(ctx, c.key(productID), 1, c.ttl).Err(); err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "failed to record known-absent id")
	}
	return nil
}

func (c *RedisAbsentCache) key(productID int) string {
	return c.prefix + strconv.Itoa(productID)
}
