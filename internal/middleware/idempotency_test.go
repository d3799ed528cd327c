package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"publier/backend/internal/domain"
	"publier/backend/internal/idempotency"
	"publier/backend/internal/storage/memory"
)

type brokenIdempotencyStore struct{}

func (brokenIdempotencyStore) Get(context.Context, string) (*domain.IdempotencyRecord, error) {
	return nil, errors.New("timeout")
}

func (brokenIdempotencyStore) SaveIfAbsent(context.Context, *domain.IdempotencyRecord, time.Duration) (bool, error) {
	return false, errors.New("timeout")
}

func TestIdempotency(t *testing.T) {
	f := newFixture(t, true)
	raw := f.issueKey(t, "key-idem", domain.EnvironmentProduction, nil, domain.ScopePostsWrite)
	other := f.issueKey(t, "key-other", domain.EnvironmentProduction, nil, domain.ScopePostsWrite)

	newRouter := func(store idempotency.Store, calls *int32, status int) *gin.Engine {
		guard := idempotency.NewGuard(store, 10*time.Minute, 16, zap.NewNop(), f.metrics)
		r := newEngine()
		r.POST("/posts", f.authn.Authenticate(domain.ScopePostsWrite), Idempotency(guard), func(c *gin.Context) {
			n := atomic.AddInt32(calls, 1)
			c.JSON(status, gin.H{"call": n})
		})
		return r
	}

	t.Run("相同幂等键回放首次响应", func(t *testing.T) {
		store := memory.NewIdempotencyStore(100, time.Minute)
		defer store.Close()
		var calls int32
		r := newRouter(store, &calls, http.StatusCreated)

		first := doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "abc"})
		second := doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "abc"})

		require.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, first.Code, second.Code)
		assert.Equal(t, first.Body.String(), second.Body.String())
		assert.Equal(t, first.Header().Get("Content-Type"), second.Header().Get("Content-Type"))
		assert.Empty(t, first.Header().Get(HeaderIdempotentReplayed))
		assert.Equal(t, "true", second.Header().Get(HeaderIdempotentReplayed))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("不同幂等键或不同主体独立执行", func(t *testing.T) {
		store := memory.NewIdempotencyStore(100, time.Minute)
		defer store.Close()
		var calls int32
		r := newRouter(store, &calls, http.StatusCreated)

		doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "k1"})
		doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "k2"})
		doRequest(r, http.MethodPost, "/posts", other, map[string]string{HeaderIdempotencyKey: "k1"})
		doRequest(r, http.MethodPost, "/posts?draft=1", raw, map[string]string{HeaderIdempotencyKey: "k1"})
		assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	})

	t.Run("未提供幂等键时不缓存", func(t *testing.T) {
		store := memory.NewIdempotencyStore(100, time.Minute)
		defer store.Close()
		var calls int32
		r := newRouter(store, &calls, http.StatusCreated)

		doRequest(r, http.MethodPost, "/posts", raw, nil)
		doRequest(r, http.MethodPost, "/posts", raw, nil)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("5xx 响应不缓存", func(t *testing.T) {
		store := memory.NewIdempotencyStore(100, time.Minute)
		defer store.Close()
		var calls int32
		r := newRouter(store, &calls, http.StatusServiceUnavailable)

		doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "retry"})
		w := doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "retry"})
		assert.Empty(t, w.Header().Get(HeaderIdempotentReplayed))
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("幂等键过长返回 400", func(t *testing.T) {
		store := memory.NewIdempotencyStore(100, time.Minute)
		defer store.Close()
		var calls int32
		r := newRouter(store, &calls, http.StatusCreated)

		w := doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: strings.Repeat("x", 17)})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, domain.KindInvalidRequest, decodeError(t, w).Code)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("存储故障时照常执行并返回真实响应", func(t *testing.T) {
		var calls int32
		r := newRouter(brokenIdempotencyStore{}, &calls, http.StatusCreated)

		first := doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "abc"})
		second := doRequest(r, http.MethodPost, "/posts", raw, map[string]string{HeaderIdempotencyKey: "abc"})
		assert.Equal(t, http.StatusCreated, first.Code)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.JSONEq(t, `{"call":2}`, second.Body.String())
		assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.IdempotencyFailures), 2.0)
	})
}
