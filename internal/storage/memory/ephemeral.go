package memory

import (
	"context"
	"time"

	"publier/backend/internal/cache"
	"publier/backend/internal/domain"
)

// CounterStore 进程内的限流计数器，单实例部署或测试时替代 Redis
type CounterStore struct {
	cache *cache.LocalCache
}

// NewCounterStore 创建进程内计数器
func NewCounterStore(maxKeys int) *CounterStore {
	return &CounterStore{cache: cache.NewLocalCache(maxKeys, time.Minute)}
}

// IncrWindow 原子递增窗口计数，首次创建时设置过期时间
func (s *CounterStore) IncrWindow(_ context.Context, key string, ttl time.Duration) (int64, error) {
	return s.cache.Incr(key, ttl), nil
}

// Close 停止后台清理
func (s *CounterStore) Close() { s.cache.Close() }

// IdempotencyStore 进程内的幂等响应缓存
type IdempotencyStore struct {
	cache *cache.LocalCache
}

// NewIdempotencyStore 创建进程内幂等缓存
func NewIdempotencyStore(maxKeys int, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{cache: cache.NewLocalCache(maxKeys, ttl)}
}

// Get 查找指纹，未命中返回 nil
func (s *IdempotencyStore) Get(_ context.Context, fingerprint string) (*domain.IdempotencyRecord, error) {
	v, ok := s.cache.Get(fingerprint)
	if !ok {
		return nil, nil
	}
	rec := v.(domain.IdempotencyRecord)
	rec.Body = append([]byte(nil), rec.Body...)
	return &rec, nil
}

// SaveIfAbsent 先写者胜出
func (s *IdempotencyStore) SaveIfAbsent(_ context.Context, record *domain.IdempotencyRecord, ttl time.Duration) (bool, error) {
	rec := *record
	rec.Body = append([]byte(nil), record.Body...)
	return s.cache.SetIfAbsent(record.Fingerprint, rec, ttl), nil
}

// Close 停止后台清理
func (s *IdempotencyStore) Close() { s.cache.Close() }
