package redis

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"

	"publier/backend/internal/webhook"
)

// Locker 基于 redislock 的分布式锁，保证同一时间只有一个实例执行重试扫描
type Locker struct {
	client *redislock.Client
}

// NewLocker 创建分布式锁
func NewLocker(c *Client) *Locker {
	return &Locker{client: redislock.New(c.rdb)}
}

// Obtain 获取锁，已被占用时返回 webhook.ErrLockNotObtained
func (l *Locker) Obtain(ctx context.Context, key string, ttl time.Duration) (webhook.Lease, error) {
	lock, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, webhook.ErrLockNotObtained
	}
	if err != nil {
		return nil, err
	}
	return lock, nil
}
