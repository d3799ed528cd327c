package storage

import (
	"context"
	"errors"
	"time"

	"publier/backend/internal/domain"
)

var (
	// ErrNotFound 记录不存在，或不属于调用方租户
	ErrNotFound = errors.New("record not found")
	// ErrConflict 唯一约束冲突
	ErrConflict = errors.New("record already exists")
)

// UserRepository 定义开发者账号存取操作。
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// SessionRepository 定义登录会话存取操作。
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSessionByHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// EmailVerificationRepository 定义邮箱验证令牌存取操作。
type EmailVerificationRepository interface {
	// ReplaceVerificationToken 删除用户已有的令牌后保存新令牌
	ReplaceVerificationToken(ctx context.Context, token *domain.EmailVerificationToken) error
	// ConsumeVerificationToken 在同一事务中删除未过期的令牌并标记邮箱已验证，返回用户 ID；
	// 令牌不存在或已过期时返回 ErrNotFound
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (string, error)
	DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int, error)
}

// AppRepository 定义应用存取操作，所有查询都按用户隔离。
type AppRepository interface {
	CreateApp(ctx context.Context, app *domain.App) error
	GetApp(ctx context.Context, userID, appID string) (*domain.App, error)
	ListApps(ctx context.Context, userID string) ([]domain.App, error)
	UpdateApp(ctx context.Context, app *domain.App) error
	// DeleteApp 删除应用及其 API Key、Webhook 与帖子
	DeleteApp(ctx context.Context, userID, appID string) error
}

// APIKeyRepository 定义 API Key 存取操作。
type APIKeyRepository interface {
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context, appID string) ([]domain.APIKey, error)
	RevokeAPIKey(ctx context.Context, appID, keyID string) error
	DeleteAPIKey(ctx context.Context, appID, keyID string) error
	TouchAPIKey(ctx context.Context, keyID string, at time.Time) error
}

// WebhookRepository 定义 Webhook 订阅存取操作。
type WebhookRepository interface {
	CreateWebhook(ctx context.Context, webhook *domain.Webhook) error
	GetWebhook(ctx context.Context, appID, webhookID string) (*domain.Webhook, error)
	// GetWebhookByID 不做租户隔离，仅供后台重试使用
	GetWebhookByID(ctx context.Context, webhookID string) (*domain.Webhook, error)
	ListWebhooks(ctx context.Context, appID string) ([]domain.Webhook, error)
	ListEnabledWebhooks(ctx context.Context, appID string) ([]domain.Webhook, error)
	UpdateWebhook(ctx context.Context, webhook *domain.Webhook) error
	DeleteWebhook(ctx context.Context, appID, webhookID string) error
}

// DeliveryRepository 定义 Webhook 投递记录存取操作。
type DeliveryRepository interface {
	CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	GetDelivery(ctx context.Context, webhookID, deliveryID string) (*domain.WebhookDelivery, error)
	ListDeliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error)
	// RecordAttempt 以单次更新写入一次尝试的结果，并将尝试次数加一
	RecordAttempt(ctx context.Context, deliveryID string, attempt domain.DeliveryAttempt) error
	// ListDueDeliveries 返回 next_retry_at 已到期的 failed 或 pending 投递
	ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
	// ClaimRetry 清空到期投递的 next_retry_at，返回是否由本次调用抢到
	ClaimRetry(ctx context.Context, deliveryID string, now time.Time) (bool, error)
}

// PostRepository 定义帖子存取操作，所有查询都按应用隔离。
type PostRepository interface {
	CreatePost(ctx context.Context, post *domain.Post) error
	GetPost(ctx context.Context, appID, postID string) (*domain.Post, error)
	ListPosts(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error)
	UpdatePost(ctx context.Context, post *domain.Post) error
	DeletePost(ctx context.Context, appID, postID string) error
	CountPostsByStatus(ctx context.Context, appID string) (domain.PostStats, error)
}

// Store 聚合所有持久化仓储。
type Store interface {
	UserRepository
	SessionRepository
	EmailVerificationRepository
	AppRepository
	APIKeyRepository
	WebhookRepository
	DeliveryRepository
	PostRepository

	Health(ctx context.Context) error
	Close() error
}
