package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

const (
	msgAPIKeyNotFound = "API key not found"

	maxKeyLifetimeDays = 365
)

// APIKeyService API Key业务逻辑服务
//
// 所有操作先校验应用归属，再按应用隔离访问密钥。
type APIKeyService struct {
	apps storage.AppRepository
	keys storage.APIKeyRepository
	log  *zap.Logger
	now  func() time.Time
}

// NewAPIKeyService 创建API Key服务
func NewAPIKeyService(apps storage.AppRepository, keys storage.APIKeyRepository, log *zap.Logger) *APIKeyService {
	return &APIKeyService{apps: apps, keys: keys, log: log, now: time.Now}
}

// CreateAPIKeyInput 创建API Key的输入参数
type CreateAPIKeyInput struct {
	UserID string
	AppID  string
	Name   string
	// Scopes 为空时授予全部权限
	Scopes []string
	// ExpiresInDays 可选，1-365
	ExpiresInDays *int
}

// CreatedAPIKey 新签发的密钥，RawKey 只在签发响应中出现一次
type CreatedAPIKey struct {
	Key    *domain.APIKey
	RawKey string
}

// Create 为应用签发 API Key
//
// 参数:
//   - input: 创建参数
//
// 返回值:
//   - *CreatedAPIKey: 含原文的签发结果，存储层只保存摘要
//   - error: 应用不存在返回 NOT_FOUND，参数不合法返回 INVALID_REQUEST
func (s *APIKeyService) Create(ctx context.Context, input CreateAPIKeyInput) (*CreatedAPIKey, error) {
	app, err := s.apps.GetApp(ctx, input.UserID, input.AppID)
	if err != nil {
		return nil, notFound(err, msgAppNotFound)
	}

	name := strings.TrimSpace(input.Name)
	if err := domain.ValidateName(name); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}
	scopes, err := domain.ParseScopes(input.Scopes)
	if err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}

	now := s.now().UTC()
	var expiresAt *time.Time
	if input.ExpiresInDays != nil {
		days := *input.ExpiresInDays
		if days < 1 || days > maxKeyLifetimeDays {
			return nil, domain.InvalidRequest("expires_in_days must be between 1 and 365")
		}
		t := now.AddDate(0, 0, days)
		expiresAt = &t
	}

	issued, err := auth.GenerateAPIKey(app.Environment)
	if err != nil {
		return nil, err
	}

	key := &domain.APIKey{
		ID:          uuid.New().String(),
		AppID:       app.ID,
		Name:        name,
		KeyHash:     issued.Hash,
		KeyPrefix:   issued.Prefix,
		Environment: app.Environment,
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := s.keys.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	s.log.Info("api key issued",
		zap.String("key_id", key.ID),
		zap.String("app_id", app.ID),
		zap.String("environment", string(key.Environment)),
	)
	return &CreatedAPIKey{Key: key, RawKey: issued.Raw}, nil
}

// List 列出应用的密钥，只包含不可逆的前缀
func (s *APIKeyService) List(ctx context.Context, userID, appID string) ([]domain.APIKey, error) {
	if _, err := s.apps.GetApp(ctx, userID, appID); err != nil {
		return nil, notFound(err, msgAppNotFound)
	}
	return s.keys.ListAPIKeys(ctx, appID)
}

// Revoke 吊销密钥，下一次认证即失效
func (s *APIKeyService) Revoke(ctx context.Context, userID, appID, keyID string) error {
	if _, err := s.apps.GetApp(ctx, userID, appID); err != nil {
		return notFound(err, msgAppNotFound)
	}
	if err := s.keys.RevokeAPIKey(ctx, appID, keyID); err != nil {
		return notFound(err, msgAPIKeyNotFound)
	}
	s.log.Info("api key revoked", zap.String("key_id", keyID), zap.String("app_id", appID))
	return nil
}

// Delete 删除密钥
func (s *APIKeyService) Delete(ctx context.Context, userID, appID, keyID string) error {
	if _, err := s.apps.GetApp(ctx, userID, appID); err != nil {
		return notFound(err, msgAppNotFound)
	}
	if err := s.keys.DeleteAPIKey(ctx, appID, keyID); err != nil {
		return notFound(err, msgAPIKeyNotFound)
	}
	s.log.Info("api key deleted", zap.String("key_id", keyID), zap.String("app_id", appID))
	return nil
}
