package webhook

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// 重试间隔：1分钟、5分钟、15分钟、1小时、6小时
var retrySchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	6 * time.Hour,
}

// RetryPolicy 失败投递的退避策略
type RetryPolicy struct {
	MaxAttempts int
}

// NextRetry 计算下次重试时间
//
// attempts 为包含本次在内的尝试次数，达到上限后返回 nil。
func (p RetryPolicy) NextRetry(attempts int, from time.Time) *time.Time {
	if attempts < 1 || attempts >= p.MaxAttempts {
		return nil
	}
	index := attempts - 1
	if index >= len(retrySchedule) {
		index = len(retrySchedule) - 1
	}
	next := from.Add(retrySchedule[index])
	return &next
}

// ErrLockNotObtained 锁已被其他实例持有
var ErrLockNotObtained = errors.New("lock not obtained")

// Lease 已获取的分布式锁
type Lease interface {
	Release(ctx context.Context) error
}

// Locker 分布式锁，由 storage/redis 基于 redislock 实现
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

const sweepLockKey = "publier:webhook:sweep"

// Sweeper 定时扫描到期的失败投递并重新投递
type Sweeper struct {
	dispatcher *Dispatcher
	locker     Locker
	interval   time.Duration
	batch      int
	log        *zap.Logger
}

// NewSweeper 创建重试扫描器，locker 为 nil 时不加锁
func NewSweeper(dispatcher *Dispatcher, locker Locker, interval time.Duration, batch int, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		dispatcher: dispatcher,
		locker:     locker,
		interval:   interval,
		batch:      batch,
		log:        log,
	}
}

// Run 按固定间隔扫描，直到 ctx 结束
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error("webhook retry sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep 执行一次扫描，返回提交的重试数量
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		lease, err := s.locker.Obtain(ctx, sweepLockKey, s.interval)
		if errors.Is(err, ErrLockNotObtained) {
			s.log.Debug("webhook retry sweep held by another instance")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	due, err := s.dispatcher.repo.ListDueDeliveries(ctx, s.dispatcher.now().UTC(), s.batch)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for i := range due {
		if !s.dispatcher.scheduleRetry(due[i].ID, due[i].WebhookID) {
			s.log.Warn("background queue full, deferring remaining retries",
				zap.Int("remaining", len(due)-i),
			)
			break
		}
		submitted++
	}
	if submitted > 0 {
		s.log.Info("webhook retries scheduled", zap.Int("count", submitted))
	}
	return submitted, nil
}
