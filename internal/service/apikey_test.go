package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/storage/memory"
)

func TestAPIKeyService_Create(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAPIKeyService(store, store, zap.NewNop())
	prod := newTestApp(t, store, "user-1", domain.EnvironmentProduction)
	dev := newTestApp(t, store, "user-1", domain.EnvironmentDevelopment)

	t.Run("生产应用签发 live 密钥且只保存摘要", func(t *testing.T) {
		created, err := svc.Create(ctx, CreateAPIKeyInput{UserID: "user-1", AppID: prod.ID, Name: "ci"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(created.RawKey, auth.PrefixLiveKey))
		assert.Equal(t, auth.HashToken(created.RawKey), created.Key.KeyHash)
		assert.Equal(t, created.RawKey[:auth.KeyPrefixLength], created.Key.KeyPrefix)
		assert.ElementsMatch(t, domain.AllScopes, created.Key.Scopes)
		assert.Nil(t, created.Key.ExpiresAt)

		stored, err := store.GetAPIKeyByHash(ctx, auth.HashToken(created.RawKey))
		require.NoError(t, err)
		assert.Equal(t, created.Key.ID, stored.ID)
	})

	t.Run("开发应用签发 test 密钥", func(t *testing.T) {
		created, err := svc.Create(ctx, CreateAPIKeyInput{UserID: "user-1", AppID: dev.ID, Name: "local"})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(created.RawKey, auth.PrefixTestKey))
		assert.Equal(t, domain.EnvironmentDevelopment, created.Key.Environment)
	})

	t.Run("指定权限与有效期", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		svc := NewAPIKeyService(store, store, zap.NewNop())
		svc.now = func() time.Time { return now }

		days := 30
		created, err := svc.Create(ctx, CreateAPIKeyInput{
			UserID:        "user-1",
			AppID:         prod.ID,
			Name:          "reader",
			Scopes:        []string{"posts:read", "posts:read"},
			ExpiresInDays: &days,
		})
		require.NoError(t, err)
		assert.Equal(t, []domain.Scope{domain.ScopePostsRead}, created.Key.Scopes)
		require.NotNil(t, created.Key.ExpiresAt)
		assert.Equal(t, now.AddDate(0, 0, 30), *created.Key.ExpiresAt)
	})

	t.Run("参数不合法", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateAPIKeyInput{UserID: "user-1", AppID: prod.ID, Name: "x", Scopes: []string{"posts:delete"}})
		requireAPIError(t, err, domain.KindInvalidRequest)

		for _, days := range []int{0, 366} {
			d := days
			_, err = svc.Create(ctx, CreateAPIKeyInput{UserID: "user-1", AppID: prod.ID, Name: "x", ExpiresInDays: &d})
			requireAPIError(t, err, domain.KindInvalidRequest)
		}

		_, err = svc.Create(ctx, CreateAPIKeyInput{UserID: "user-1", AppID: prod.ID, Name: ""})
		requireAPIError(t, err, domain.KindInvalidRequest)
	})

	t.Run("不能为他人的应用签发", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateAPIKeyInput{UserID: "user-2", AppID: prod.ID, Name: "steal"})
		requireAPIError(t, err, domain.KindNotFound)
	})
}

func TestAPIKeyService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewAPIKeyService(store, store, zap.NewNop())
	app := newTestApp(t, store, "user-1", domain.EnvironmentProduction)

	created, err := svc.Create(ctx, CreateAPIKeyInput{UserID: "user-1", AppID: app.ID, Name: "ci"})
	require.NoError(t, err)

	t.Run("列出密钥", func(t *testing.T) {
		keys, err := svc.List(ctx, "user-1", app.ID)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, created.Key.KeyPrefix, keys[0].KeyPrefix)

		_, err = svc.List(ctx, "user-2", app.ID)
		requireAPIError(t, err, domain.KindNotFound)
	})

	t.Run("吊销后无法解析", func(t *testing.T) {
		require.NoError(t, svc.Revoke(ctx, "user-1", app.ID, created.Key.ID))

		creds := auth.NewCredentialStore(store, store, nil, zap.NewNop(), nil)
		_, err := creds.Resolve(ctx, created.RawKey)
		assert.Error(t, err)
	})

	t.Run("删除不存在的密钥", func(t *testing.T) {
		err := svc.Delete(ctx, "user-1", app.ID, "missing")
		requireAPIError(t, err, domain.KindNotFound)

		err = svc.Revoke(ctx, "user-1", app.ID, "missing")
		requireAPIError(t, err, domain.KindNotFound)
	})

	t.Run("删除密钥", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, "user-1", app.ID, created.Key.ID))
		keys, err := svc.List(ctx, "user-1", app.ID)
		require.NoError(t, err)
		assert.Empty(t, keys)
	})
}
