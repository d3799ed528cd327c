package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"publier/backend/internal/domain"
)

const idempotencyKeyPrefix = "idem:"

// IdempotencyStore 基于 SET NX 的幂等响应存储
type IdempotencyStore struct {
	rdb *goredis.Client
}

// NewIdempotencyStore 创建 Redis 幂等存储
func NewIdempotencyStore(c *Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: c.rdb}
}

// Get 查找指纹，未命中返回 nil
func (s *IdempotencyStore) Get(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error) {
	raw, err := s.rdb.Get(ctx, idempotencyKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}

	var rec domain.IdempotencyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

// SaveIfAbsent 仅在指纹不存在时写入
func (s *IdempotencyStore) SaveIfAbsent(ctx context.Context, record *domain.IdempotencyRecord, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("encode idempotency record: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, idempotencyKeyPrefix+record.Fingerprint, raw, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("save idempotency record: %w", err)
	}
	return ok, nil
}
