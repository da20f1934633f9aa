// Package cache 提供进程内的泛型 LRU + TTL 缓存
//
// 这里主要用于负结果缓存：记录已确认不存在的实体，
// 使熔断期间也能对这些ID直接给出 NotFound。
package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"
)

// Cache 通用泛型缓存
//
// 核心特性：
// - LRU 驱逐：超过容量时删除最久未使用的非固定条目
// - TTL 过期：默认按访问时间，ExpireAfterWrite 时按写入时间
// - 固定条目：SetPinned 写入的条目既不过期也不被驱逐
// - 并发安全：Mutex 保护
//
// 使用示例：
//
//	absent := cache.New[int, struct{}](cache.Config{
//	    Name:             "known_absent",
//	    MaxSize:          10000,
//	    TTL:              5 * time.Minute,
//	    ExpireAfterWrite: true,
//	})
//	absent.SetPinned(13, struct{}{})
type Cache[K comparable, V any] struct {
	name   string
	config Config

	items map[K]*cacheEntry[K, V]

	// LRU 链表（最近使用的在前），固定条目不在链表中
	lruList *list.List

	mu    sync.Mutex
	stats CacheStats
}

type cacheEntry[K comparable, V any] struct {
	key        K
	value      V
	writtenAt  time.Time
	accessedAt time.Time
	pinned     bool
	lruElement *list.Element
}

// Config 缓存配置
type Config struct {
	// Name 缓存名称（用于日志和统计）
	Name string

	// MaxSize 非固定条目的最大数量，0 表示无限制
	MaxSize int

	// TTL 过期时间，0 表示永不过期
	TTL time.Duration

	// ExpireAfterWrite 为 true 时 TTL 从写入时刻起算，访问不续期
	ExpireAfterWrite bool

	// OnEvict 驱逐/过期回调（可选）
	OnEvict func(key, value any)
}

// CacheStats 缓存统计信息
type CacheStats struct {
	Hits      int64 // 缓存命中次数
	Misses    int64 // 缓存未命中次数
	Evictions int64 // LRU 驱逐次数
	Expires   int64 // TTL 过期次数
	Size      int   // 当前条目数（含固定条目）
	Pinned    int   // 固定条目数
}

// New 创建新的缓存实例
func New[K comparable, V any](config Config) *Cache[K, V] {
	if config.Name == "" {
		config.Name = "unnamed"
	}
	return &Cache[K, V]{
		name:    config.Name,
		config:  config,
		items:   make(map[K]*cacheEntry[K, V]),
		lruList: list.New(),
	}
}

// Name 缓存名称
func (c *Cache[K, V]) Name() string { return c.name }

// Get 获取缓存值
func (c *Cache[K, V]) Get(key K) (value V, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		return value, false
	}

	now := time.Now()
	if c.isExpired(entry, now) {
		c.removeEntryUnsafe(entry)
		c.stats.Misses++
		c.stats.Expires++
		return value, false
	}

	entry.accessedAt = now
	if entry.lruElement != nil {
		c.lruList.MoveToFront(entry.lruElement)
	}
	c.stats.Hits++
	return entry.value, true
}

// Contains 与 Get 相同，但只关心是否存在
func (c *Cache[K, V]) Contains(key K) bool {
	_, ok := c.Get(key)
	return ok
}

// Set 设置缓存值；已存在的固定条目保持固定
func (c *Cache[K, V]) Set(key K, value V) {
	c.set(key, value, false)
}

// SetPinned 写入固定条目
func (c *Cache[K, V]) SetPinned(key K, value V) {
	c.set(key, value, true)
}

func (c *Cache[K, V]) set(key K, value V, pinned bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if entry, exists := c.items[key]; exists {
		entry.value = value
		entry.writtenAt = now
		entry.accessedAt = now
		if pinned && !entry.pinned {
			entry.pinned = true
			c.lruList.Remove(entry.lruElement)
			entry.lruElement = nil
		}
		if entry.lruElement != nil {
			c.lruList.MoveToFront(entry.lruElement)
		}
		return
	}

	if !pinned && c.config.MaxSize > 0 && c.lruList.Len() >= c.config.MaxSize {
		c.evictOldestUnsafe()
	}

	entry := &cacheEntry[K, V]{
		key:        key,
		value:      value,
		writtenAt:  now,
		accessedAt: now,
		pinned:     pinned,
	}
	if !pinned {
		entry.lruElement = c.lruList.PushFront(entry)
	}
	c.items[key] = entry
}

// Delete 删除缓存条目（固定条目同样可删除）
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.items[key]
	if !exists {
		return false
	}
	c.removeEntryUnsafe(entry)
	return true
}

// CleanExpired 清理过期条目，返回清理数量
func (c *Cache[K, V]) CleanExpired() int {
	if c.config.TTL <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cleaned := 0
	now := time.Now()
	for _, entry := range c.items {
		if c.isExpired(entry, now) {
			c.removeEntryUnsafe(entry)
			cleaned++
		}
	}
	c.stats.Expires += int64(cleaned)
	return cleaned
}

// Stats 获取缓存统计信息（副本）
func (c *Cache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = len(c.items)
	stats.Pinned = len(c.items) - c.lruList.Len()
	return stats
}

// Size 获取当前缓存条目数
func (c *Cache[K, V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// isExpired 需要持锁调用
func (c *Cache[K, V]) isExpired(entry *cacheEntry[K, V], now time.Time) bool {
	if entry.pinned || c.config.TTL <= 0 {
		return false
	}
	since := entry.accessedAt
	if c.config.ExpireAfterWrite {
		since = entry.writtenAt
	}
	return now.Sub(since) >= c.config.TTL
}

// evictOldestUnsafe 需要持锁调用
func (c *Cache[K, V]) evictOldestUnsafe() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	c.removeEntryUnsafe(oldest.Value.(*cacheEntry[K, V]))
	c.stats.Evictions++
}

// removeEntryUnsafe 需要持锁调用
func (c *Cache[K, V]) removeEntryUnsafe(entry *cacheEntry[K, V]) {
	if c.config.OnEvict != nil {
		c.config.OnEvict(entry.key, entry.value)
	}
	if entry.lruElement != nil {
		c.lruList.Remove(entry.lruElement)
	}
	delete(c.items, entry.key)
}

// String 返回缓存信息的字符串表示
func (c *Cache[K, V]) String() string {
	stats := c.Stats()
	return fmt.Sprintf("Cache[%s]: size=%d (pinned=%d), max=%d, hits=%d, misses=%d, evictions=%d, expires=%d",
		c.name, stats.Size, stats.Pinned, c.config.MaxSize,
		stats.Hits, stats.Misses, stats.Evictions, stats.Expires)
}
