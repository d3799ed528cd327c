package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"publier/backend/internal/monitoring"
	"publier/backend/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) IncrWindow(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func newTestLimiter(store CounterStore, limit int, at time.Time) (*Limiter, *monitoring.Metrics) {
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	l := NewLimiter(store, limit, time.Minute, zap.NewNop(), metrics)
	l.now = func() time.Time { return at }
	return l, metrics
}

func TestLimiter_Admit(t *testing.T) {
	ctx := context.Background()
	start := time.Unix(1_700_000_040, 0) // 窗口起点

	t.Run("第 N+1 个请求被拒绝", func(t *testing.T) {
		store := memory.NewCounterStore(1000)
		defer store.Close()
		l, metrics := newTestLimiter(store, 100, start)

		for i := 1; i <= 100; i++ {
			d := l.Admit(ctx, "key:k1")
			require.True(t, d.Allowed, "request %d", i)
			assert.Equal(t, 100-i, d.Remaining)
		}

		d := l.Admit(ctx, "key:k1")
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
		assert.Equal(t, 60*time.Second, d.RetryAfter)
		assert.Equal(t, time.Unix(1_700_000_100, 0), d.ResetAt)

		assert.Equal(t, 100.0, testutil.ToFloat64(metrics.RateLimitDecisions.WithLabelValues("allowed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitDecisions.WithLabelValues("rejected")))
	})

	t.Run("新窗口重新计数", func(t *testing.T) {
		store := memory.NewCounterStore(1000)
		defer store.Close()
		l, _ := newTestLimiter(store, 2, start)

		assert.True(t, l.Admit(ctx, "key:k1").Allowed)
		assert.True(t, l.Admit(ctx, "key:k1").Allowed)
		assert.False(t, l.Admit(ctx, "key:k1").Allowed)

		l.now = func() time.Time { return start.Add(time.Minute) }
		d := l.Admit(ctx, "key:k1")
		assert.True(t, d.Allowed)
		assert.Equal(t, 1, d.Remaining)
	})

	t.Run("不同主体互不影响", func(t *testing.T) {
		store := memory.NewCounterStore(1000)
		defer store.Close()
		l, _ := newTestLimiter(store, 1, start)

		assert.True(t, l.Admit(ctx, "key:a").Allowed)
		assert.False(t, l.Admit(ctx, "key:a").Allowed)
		assert.True(t, l.Admit(ctx, "session:b").Allowed)
	})

	t.Run("存储不可用时放行", func(t *testing.T) {
		l, metrics := newTestLimiter(failingStore{}, 1, start)

		for i := 0; i < 3; i++ {
			d := l.Admit(ctx, "key:k1")
			assert.True(t, d.Allowed)
			assert.True(t, d.Degraded)
			assert.Equal(t, 1, d.Limit)
		}
		assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RateLimitDecisions.WithLabelValues("degraded")))
	})
}

func TestWindowKey(t *testing.T) {
	assert.Equal(t, "rate:key:abc:28333334", WindowKey("key:abc", 28333334))
}
