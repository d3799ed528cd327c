package cache

import (
	"sync"
	"time"
)

// LocalCache 本地内存缓存
//
// 特点：
// - 支持 TTL 过期
// - SetIfAbsent 与 Incr 是单次原子操作，可替代 Redis 的 SETNX / INCR+EXPIRE
// - 自动清理过期条目
// - 容量限制（满时淘汰最早过期的条目）
type LocalCache struct {
	mu      sync.Mutex
	data    map[string]*cacheEntry
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type cacheEntry struct {
	value     interface{}
	counter   int64
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数，<= 0 表示不限制
//   - ttl: 默认过期时间
func NewLocalCache(maxSize int, ttl time.Duration) *LocalCache {
	cache := &LocalCache{
		data:    make(map[string]*cacheEntry),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	// 启动定期清理
	go cache.cleanupLoop(time.Minute)

	return cache
}

// Get 获取缓存值
func (c *LocalCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.liveLocked(key)
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// SetIfAbsent 仅当键不存在（或已过期）时写入，返回是否写入成功
func (c *LocalCache) SetIfAbsent(key string, value interface{}, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.liveLocked(key); ok {
		return false
	}
	c.putLocked(key, &cacheEntry{value: value, expiresAt: c.now().Add(c.ttlOrDefault(ttl))})
	return true
}

// Incr 计数器加一并返回新值
//
// 键不存在时以 1 创建并设置 ttl；已存在时不延长过期时间。
func (c *LocalCache) Incr(key string, ttl time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.liveLocked(key); ok {
		entry.counter++
		return entry.counter
	}
	c.putLocked(key, &cacheEntry{counter: 1, expiresAt: c.now().Add(c.ttlOrDefault(ttl))})
	return 1
}

// Close 停止后台清理
func (c *LocalCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *LocalCache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.ttl
	}
	return ttl
}

func (c *LocalCache) liveLocked(key string) (*cacheEntry, bool) {
	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.data, key)
		return nil, false
	}
	return entry, true
}

func (c *LocalCache) putLocked(key string, entry *cacheEntry) {
	if _, exists := c.data[key]; !exists && c.maxSize > 0 && len(c.data) >= c.maxSize {
		c.evictLocked()
	}
	c.data[key] = entry
}

// evictLocked 先清理过期条目，仍然满时淘汰最早过期的条目
func (c *LocalCache) evictLocked() {
	c.purgeExpiredLocked()
	if len(c.data) < c.maxSize {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, e := range c.data {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	delete(c.data, oldestKey)
}

func (c *LocalCache) purgeExpiredLocked() int {
	now := c.now()
	removed := 0
	for k, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.purgeExpiredLocked()
			c.mu.Unlock()
		}
	}
}
