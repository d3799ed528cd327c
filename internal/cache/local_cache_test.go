package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestCache(maxSize int) (*LocalCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCache(maxSize, time.Minute)
	c.now = clock.Now
	return c, clock
}

func TestLocalCache_SetIfAbsent(t *testing.T) {
	c, clock := newTestCache(0)
	defer c.Close()

	t.Run("首次写入成功", func(t *testing.T) {
		assert.True(t, c.SetIfAbsent("k", "first", 10*time.Second))
	})

	t.Run("存在时不覆盖", func(t *testing.T) {
		assert.False(t, c.SetIfAbsent("k", "second", 10*time.Second))
		v, ok := c.Get("k")
		assert.True(t, ok)
		assert.Equal(t, "first", v)
	})

	t.Run("过期后可以重新写入", func(t *testing.T) {
		clock.Advance(10 * time.Second)
		_, ok := c.Get("k")
		assert.False(t, ok)
		assert.True(t, c.SetIfAbsent("k", "third", 10*time.Second))
	})
}

func TestLocalCache_Incr(t *testing.T) {
	c, clock := newTestCache(0)
	defer c.Close()

	assert.Equal(t, int64(1), c.Incr("counter", time.Minute))
	assert.Equal(t, int64(2), c.Incr("counter", time.Minute))

	// 再次计数不延长过期时间
	clock.Advance(59 * time.Second)
	assert.Equal(t, int64(3), c.Incr("counter", time.Minute))
	clock.Advance(time.Second)
	assert.Equal(t, int64(1), c.Incr("counter", time.Minute))
}

func TestLocalCache_IncrConcurrent(t *testing.T) {
	c := NewLocalCache(0, time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Incr("counter", time.Minute)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(51), c.Incr("counter", time.Minute))
}

func TestLocalCache_Eviction(t *testing.T) {
	c, clock := newTestCache(2)
	defer c.Close()

	assert.True(t, c.SetIfAbsent("a", 1, 10*time.Second))
	clock.Advance(time.Second)
	assert.True(t, c.SetIfAbsent("b", 2, 10*time.Second))
	assert.True(t, c.SetIfAbsent("c", 3, 10*time.Second))

	c.mu.Lock()
	size := len(c.data)
	c.mu.Unlock()
	assert.Equal(t, 2, size)
	_, ok := c.Get("a")
	assert.False(t, ok, "最早过期的条目应被淘汰")
	_, ok = c.Get("c")
	assert.True(t, ok)
}
