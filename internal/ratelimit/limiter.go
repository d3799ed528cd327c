package ratelimit

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"publier/backend/internal/monitoring"
)

// CounterStore 固定窗口计数存储
//
// IncrWindow 必须是原子操作：自增计数，当结果为 1 时设置 ttl，返回自增后的值。
type CounterStore interface {
	IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Decision 一次准入判断的结果，由响应层决定如何写入头部
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	// Degraded 计数存储不可用，请求被放行
	Degraded bool
}

// Limiter 固定窗口限流器
//
// 窗口边界附近最多可能放行 2N 个请求，每个主体每个窗口只占用一个计数键。
type Limiter struct {
	store   CounterStore
	limit   int
	window  time.Duration
	log     *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewLimiter 创建限流器
func NewLimiter(store CounterStore, limit int, window time.Duration, log *zap.Logger, metrics *monitoring.Metrics) *Limiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Limiter{
		store:   store,
		limit:   limit,
		window:  window,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Admit 对主体做一次准入判断
func (l *Limiter) Admit(ctx context.Context, principalKey string) Decision {
	now := l.now()
	windowSeconds := int64(l.window / time.Second)
	if windowSeconds < 1 {
		windowSeconds = 1
	}
	bucket := now.Unix() / windowSeconds
	resetAt := time.Unix((bucket+1)*windowSeconds, 0)

	count, err := l.store.IncrWindow(ctx, WindowKey(principalKey, bucket), l.window)
	if err != nil {
		l.metrics.RecordRateLimit("degraded")
		l.log.Warn("rate limit store unavailable, admitting request",
			zap.String("principal", principalKey),
			zap.Error(err),
		)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: resetAt, Degraded: true}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	if count > int64(l.limit) {
		l.metrics.RecordRateLimit("rejected")
		return Decision{
			Allowed:    false,
			Limit:      l.limit,
			Remaining:  0,
			RetryAfter: time.Duration(windowSeconds) * time.Second,
			ResetAt:    resetAt,
		}
	}

	l.metrics.RecordRateLimit("allowed")
	return Decision{Allowed: true, Limit: l.limit, Remaining: remaining, ResetAt: resetAt}
}

// WindowKey 计数键 rate:<principal>:<窗口序号>
func WindowKey(principalKey string, bucket int64) string {
	return "rate:" + principalKey + ":" + strconv.FormatInt(bucket, 10)
}
