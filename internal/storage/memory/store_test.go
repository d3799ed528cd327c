package memory

import (
	"context"
	"testing"
	"time"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryStore_UserOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	user := &domain.User{ID: "u1", Email: "dev@example.com", Name: "Dev", PasswordHash: "x", CreatedAt: baseTime}
	require.NoError(t, store.CreateUser(ctx, user))

	// 邮箱大小写不敏感
	err := store.CreateUser(ctx, &domain.User{ID: "u2", Email: "DEV@example.com"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	got, err := store.GetUserByEmail(ctx, "Dev@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	require.NoError(t, store.UpdateLastLogin(ctx, "u1", baseTime))
	got, err = store.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	assert.True(t, got.LastLoginAt.Equal(baseTime))

	_, err = store.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_SessionOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	live := &domain.Session{ID: "s1", UserID: "u1", TokenHash: "h1", ExpiresAt: baseTime.Add(time.Hour)}
	expired := &domain.Session{ID: "s2", UserID: "u1", TokenHash: "h2", ExpiresAt: baseTime.Add(-time.Hour)}
	require.NoError(t, store.CreateSession(ctx, live))
	require.NoError(t, store.CreateSession(ctx, expired))

	got, err := store.GetSessionByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)

	count, err := store.DeleteExpiredSessions(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = store.GetSessionByHash(ctx, "h2")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.DeleteSession(ctx, "s1"))
	_, err = store.GetSessionByHash(ctx, "h1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_AppIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateApp(ctx, &domain.App{ID: "a1", UserID: "u1", Name: "Blog", CreatedAt: baseTime}))

	t.Run("同一用户名称冲突", func(t *testing.T) {
		err := store.CreateApp(ctx, &domain.App{ID: "a2", UserID: "u1", Name: "blog"})
		assert.ErrorIs(t, err, storage.ErrConflict)
	})

	t.Run("不同用户可以同名", func(t *testing.T) {
		assert.NoError(t, store.CreateApp(ctx, &domain.App{ID: "a3", UserID: "u2", Name: "Blog"}))
	})

	t.Run("跨租户读取返回不存在", func(t *testing.T) {
		_, err := store.GetApp(ctx, "u2", "a1")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, store.DeleteApp(ctx, "u2", "a1"), storage.ErrNotFound)
	})

	t.Run("删除应用级联删除密钥", func(t *testing.T) {
		require.NoError(t, store.CreateAPIKey(ctx, &domain.APIKey{ID: "k1", AppID: "a1", KeyHash: "kh"}))
		require.NoError(t, store.DeleteApp(ctx, "u1", "a1"))
		_, err := store.GetAPIKeyByHash(ctx, "kh")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestMemoryStore_APIKeyOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	key := &domain.APIKey{ID: "k1", AppID: "a1", KeyHash: "hash", Scopes: []domain.Scope{domain.ScopePostsRead}}
	require.NoError(t, store.CreateAPIKey(ctx, key))
	assert.ErrorIs(t, store.CreateAPIKey(ctx, &domain.APIKey{ID: "k2", AppID: "a1", KeyHash: "hash"}), storage.ErrConflict)

	got, err := store.GetAPIKeyByHash(ctx, "hash")
	require.NoError(t, err)
	got.Scopes[0] = domain.ScopePostsWrite

	again, err := store.GetAPIKeyByHash(ctx, "hash")
	require.NoError(t, err)
	assert.Equal(t, domain.ScopePostsRead, again.Scopes[0], "返回值应为副本")

	assert.ErrorIs(t, store.RevokeAPIKey(ctx, "other-app", "k1"), storage.ErrNotFound)
	require.NoError(t, store.RevokeAPIKey(ctx, "a1", "k1"))
	again, err = store.GetAPIKeyByHash(ctx, "hash")
	require.NoError(t, err)
	assert.True(t, again.Revoked)

	require.NoError(t, store.TouchAPIKey(ctx, "k1", baseTime))
	require.NoError(t, store.DeleteAPIKey(ctx, "a1", "k1"))
	_, err = store.GetAPIKeyByHash(ctx, "hash")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_Deliveries(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.CreateWebhook(ctx, &domain.Webhook{ID: "w1", AppID: "a1", Enabled: true}))
	require.NoError(t, store.CreateWebhook(ctx, &domain.Webhook{ID: "w2", AppID: "a1", Enabled: false}))

	enabled, err := store.ListEnabledWebhooks(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "w1", enabled[0].ID)

	require.NoError(t, store.CreateDelivery(ctx, &domain.WebhookDelivery{
		ID: "d1", WebhookID: "w1", Status: domain.DeliveryPending, CreatedAt: baseTime,
	}))

	retryAt := baseTime.Add(time.Minute)
	require.NoError(t, store.RecordAttempt(ctx, "d1", domain.DeliveryAttempt{
		Status:      domain.DeliveryFailed,
		Error:       "HTTP 500",
		AttemptedAt: baseTime,
		NextRetryAt: &retryAt,
	}))

	d, err := store.GetDelivery(ctx, "w1", "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, d.Attempts)
	assert.Equal(t, domain.DeliveryFailed, d.Status)

	due, err := store.ListDueDeliveries(ctx, baseTime, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = store.ListDueDeliveries(ctx, retryAt, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	claimed, err := store.ClaimRetry(ctx, "d1", retryAt)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimRetry(ctx, "d1", retryAt)
	require.NoError(t, err)
	assert.False(t, claimed, "同一条投递只能被抢占一次")

	require.NoError(t, store.DeleteWebhook(ctx, "a1", "w1"))
	_, err = store.GetDelivery(ctx, "w1", "d1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_ClaimStalePending(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	reclaimAt := baseTime.Add(2 * time.Minute)
	require.NoError(t, store.CreateDelivery(ctx, &domain.WebhookDelivery{
		ID: "d1", WebhookID: "w1", Status: domain.DeliveryPending, NextRetryAt: &reclaimAt, CreatedAt: baseTime,
	}))
	require.NoError(t, store.CreateDelivery(ctx, &domain.WebhookDelivery{
		ID: "d2", WebhookID: "w1", Status: domain.DeliverySuccess, NextRetryAt: &reclaimAt, CreatedAt: baseTime,
	}))

	t.Run("接管时间未到不返回", func(t *testing.T) {
		due, err := store.ListDueDeliveries(ctx, baseTime, 10)
		require.NoError(t, err)
		assert.Empty(t, due)

		claimed, err := store.ClaimRetry(ctx, "d1", baseTime)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("超时的 pending 记录可被抢占", func(t *testing.T) {
		due, err := store.ListDueDeliveries(ctx, reclaimAt, 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, "d1", due[0].ID)

		claimed, err := store.ClaimRetry(ctx, "d1", reclaimAt)
		require.NoError(t, err)
		assert.True(t, claimed)

		claimed, err = store.ClaimRetry(ctx, "d2", reclaimAt)
		require.NoError(t, err)
		assert.False(t, claimed, "已成功的投递不会被重试")
	})
}

func TestMemoryStore_VerificationTokens(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.CreateUser(ctx, &domain.User{ID: "u1", Email: "dev@example.com", CreatedAt: baseTime}))

	expires := baseTime.Add(24 * time.Hour)
	require.NoError(t, store.ReplaceVerificationToken(ctx, &domain.EmailVerificationToken{
		ID: "t1", UserID: "u1", TokenHash: "hash-1", ExpiresAt: expires, CreatedAt: baseTime,
	}))

	t.Run("替换后旧令牌失效", func(t *testing.T) {
		require.NoError(t, store.ReplaceVerificationToken(ctx, &domain.EmailVerificationToken{
			ID: "t2", UserID: "u1", TokenHash: "hash-2", ExpiresAt: expires, CreatedAt: baseTime,
		}))
		_, err := store.ConsumeVerificationToken(ctx, "hash-1", baseTime)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("未知用户", func(t *testing.T) {
		err := store.ReplaceVerificationToken(ctx, &domain.EmailVerificationToken{
			ID: "t3", UserID: "missing", TokenHash: "hash-3", ExpiresAt: expires,
		})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("过期令牌不可使用", func(t *testing.T) {
		_, err := store.ConsumeVerificationToken(ctx, "hash-2", expires)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("使用后标记已验证并删除令牌", func(t *testing.T) {
		userID, err := store.ConsumeVerificationToken(ctx, "hash-2", baseTime.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "u1", userID)

		u, err := store.GetUserByID(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, u.EmailVerified)
		require.NotNil(t, u.EmailVerifiedAt)
		assert.Equal(t, baseTime.Add(time.Hour), *u.EmailVerifiedAt)

		_, err = store.ConsumeVerificationToken(ctx, "hash-2", baseTime.Add(time.Hour))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("清理过期令牌", func(t *testing.T) {
		require.NoError(t, store.ReplaceVerificationToken(ctx, &domain.EmailVerificationToken{
			ID: "t4", UserID: "u1", TokenHash: "hash-4", ExpiresAt: expires, CreatedAt: baseTime,
		}))
		removed, err := store.DeleteExpiredVerificationTokens(ctx, baseTime)
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		removed, err = store.DeleteExpiredVerificationTokens(ctx, expires)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})
}

func TestMemoryStore_ListPostsPagination(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	for i, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		require.NoError(t, store.CreatePost(ctx, &domain.Post{
			ID:        id,
			AppID:     "a1",
			Content:   "hello",
			Status:    domain.PostDraft,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.CreatePost(ctx, &domain.Post{ID: "other", AppID: "a2", Status: domain.PostDraft, CreatedAt: baseTime}))

	page, err := store.ListPosts(ctx, domain.PostFilter{AppID: "a1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p5", page[0].ID)
	assert.Equal(t, "p4", page[1].ID)

	page, err = store.ListPosts(ctx, domain.PostFilter{AppID: "a1", Limit: 2, Cursor: "p4"})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "p3", page[0].ID)

	_, err = store.ListPosts(ctx, domain.PostFilter{AppID: "a1", Cursor: "other"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	stats, err := store.CountPostsByStatus(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 5, stats.Draft)
}

func TestIdempotencyStore_FirstWriterWins(t *testing.T) {
	ctx := context.Background()
	store := NewIdempotencyStore(100, time.Minute)
	defer store.Close()

	rec, err := store.Get(ctx, "fp")
	require.NoError(t, err)
	assert.Nil(t, rec)

	ok, err := store.SaveIfAbsent(ctx, &domain.IdempotencyRecord{Fingerprint: "fp", StatusCode: 201, Body: []byte("first")}, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SaveIfAbsent(ctx, &domain.IdempotencyRecord{Fingerprint: "fp", StatusCode: 201, Body: []byte("second")}, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err = store.Get(ctx, "fp")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "first", string(rec.Body))
}
