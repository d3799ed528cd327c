package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"go.uber.org/zap"

	"publier/backend/internal/domain"
	"publier/backend/internal/monitoring"
	"publier/backend/internal/storage"
)

// TaskSubmitter 后台任务队列，由 pool.WorkerPool 实现
type TaskSubmitter interface {
	TrySubmit(name string, task func(ctx context.Context) error) bool
}

// KeyLookup CredentialStore 需要的 API Key 存储操作
type KeyLookup interface {
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	TouchAPIKey(ctx context.Context, keyID string, at time.Time) error
}

// SessionLookup CredentialStore 需要的会话存储操作
type SessionLookup interface {
	GetSessionByHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
}

const touchTaskName = "credential.touch"

// CredentialStore 将 Bearer 令牌解析为凭证
//
// 令牌原文只用于计算摘要，既不记录日志也不落盘。每次解析都直接访问存储，
// 吊销或删除在下一次查找时生效。
type CredentialStore struct {
	keys     KeyLookup
	sessions SessionLookup
	tasks    TaskSubmitter
	log      *zap.Logger
	metrics  *monitoring.Metrics
	now      func() time.Time
}

// NewCredentialStore 创建凭证存储
func NewCredentialStore(keys KeyLookup, sessions SessionLookup, tasks TaskSubmitter, log *zap.Logger, metrics *monitoring.Metrics) *CredentialStore {
	return &CredentialStore{
		keys:     keys,
		sessions: sessions,
		tasks:    tasks,
		log:      log,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Resolve 解析令牌
//
// 格式不合法返回 ErrMalformedToken（不访问存储），未找到或已吊销返回 storage.ErrNotFound，
// 其他错误为存储故障。
func (s *CredentialStore) Resolve(ctx context.Context, raw string) (*domain.Credential, error) {
	format, err := Classify(raw)
	if err != nil {
		return nil, err
	}
	hash := HashToken(raw)

	if format.Class == domain.CredentialSession {
		return s.resolveSession(ctx, hash)
	}
	return s.resolveAPIKey(ctx, hash, format.Environment)
}

func (s *CredentialStore) resolveAPIKey(ctx context.Context, hash string, env domain.Environment) (*domain.Credential, error) {
	key, err := s.keys.GetAPIKeyByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	if !hashEqual(key.KeyHash, hash) || key.Revoked || key.Environment != env {
		return nil, storage.ErrNotFound
	}

	return &domain.Credential{
		ID:          key.ID,
		OwnerID:     key.AppID,
		Class:       domain.CredentialAPIKey,
		Environment: key.Environment,
		SecretHash:  key.KeyHash,
		Scopes:      append([]domain.Scope(nil), key.Scopes...),
		ExpiresAt:   key.ExpiresAt,
		LastUsedAt:  key.LastUsedAt,
		Revoked:     key.Revoked,
	}, nil
}

func (s *CredentialStore) resolveSession(ctx context.Context, hash string) (*domain.Credential, error) {
	sess, err := s.sessions.GetSessionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if !hashEqual(sess.TokenHash, hash) {
		return nil, storage.ErrNotFound
	}

	expiresAt := sess.ExpiresAt
	return &domain.Credential{
		ID:         sess.ID,
		OwnerID:    sess.UserID,
		Class:      domain.CredentialSession,
		SecretHash: sess.TokenHash,
		ExpiresAt:  &expiresAt,
		LastUsedAt: sess.LastUsedAt,
	}, nil
}

// Touch 异步更新 last_used_at，失败只记录日志和指标
func (s *CredentialStore) Touch(cred *domain.Credential) {
	id, class := cred.ID, cred.Class

	submitted := s.tasks.TrySubmit(touchTaskName, func(ctx context.Context) error {
		at := s.now().UTC()
		if class == domain.CredentialSession {
			return s.sessions.TouchSession(ctx, id, at)
		}
		return s.keys.TouchAPIKey(ctx, id, at)
	})
	if !submitted {
		s.metrics.RecordBackgroundTask(touchTaskName, "dropped")
		s.log.Warn("background queue full, dropping credential touch",
			zap.String("credential_id", id),
			zap.String("class", string(class)),
		)
	}
}

func hashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
