package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

const (
	msgWebhookNotFound  = "Webhook not found"
	msgDeliveryNotFound = "Delivery not found"

	// MaxDeliveryPageSize 投递记录单页上限
	MaxDeliveryPageSize     = 100
	defaultDeliveryPageSize = 20
)

// Redeliverer 手动重投，由 webhook.Dispatcher 实现
type Redeliverer interface {
	Redeliver(hook *domain.Webhook, delivery *domain.WebhookDelivery) error
}

// WebhookStore Webhook 服务需要的存储操作
type WebhookStore interface {
	storage.AppRepository
	storage.WebhookRepository
	storage.DeliveryRepository
}

// WebhookService Webhook 订阅与投递记录服务
type WebhookService struct {
	store      WebhookStore
	dispatcher Redeliverer
	log        *zap.Logger
	now        func() time.Time
}

// NewWebhookService 创建 Webhook 服务
func NewWebhookService(store WebhookStore, dispatcher Redeliverer, log *zap.Logger) *WebhookService {
	return &WebhookService{store: store, dispatcher: dispatcher, log: log, now: time.Now}
}

// CreateWebhookInput 创建 Webhook 输入
type CreateWebhookInput struct {
	UserID string
	AppID  string
	URL    string
	// Events 为空表示订阅全部事件
	Events []string
}

// UpdateWebhookInput 更新 Webhook 输入，nil 字段保持不变
type UpdateWebhookInput struct {
	UserID    string
	AppID     string
	WebhookID string
	URL       *string
	Events    *[]string
	Enabled   *bool
}

// CreatedWebhook 新建的订阅，Secret 只在创建响应中出现一次
type CreatedWebhook struct {
	Webhook *domain.Webhook
	Secret  string
}

// Create 创建 Webhook
func (s *WebhookService) Create(ctx context.Context, input CreateWebhookInput) (*CreatedWebhook, error) {
	if _, err := s.store.GetApp(ctx, input.UserID, input.AppID); err != nil {
		return nil, notFound(err, msgAppNotFound)
	}
	if err := domain.ValidateWebhookURL(input.URL); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}
	events, err := domain.ParseEventTypes(input.Events)
	if err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}

	secret, err := auth.GenerateWebhookSecret()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	hook := &domain.Webhook{
		ID:        uuid.New().String(),
		AppID:     input.AppID,
		URL:       input.URL,
		Events:    events,
		Secret:    secret,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateWebhook(ctx, hook); err != nil {
		return nil, err
	}

	s.log.Info("webhook created", zap.String("webhook_id", hook.ID), zap.String("app_id", hook.AppID))
	return &CreatedWebhook{Webhook: hook, Secret: secret}, nil
}

// List 列出应用的 Webhooks，不含密钥
func (s *WebhookService) List(ctx context.Context, userID, appID string) ([]domain.Webhook, error) {
	if _, err := s.store.GetApp(ctx, userID, appID); err != nil {
		return nil, notFound(err, msgAppNotFound)
	}
	return s.store.ListWebhooks(ctx, appID)
}

// Get 获取 Webhook
func (s *WebhookService) Get(ctx context.Context, userID, appID, webhookID string) (*domain.Webhook, error) {
	if _, err := s.store.GetApp(ctx, userID, appID); err != nil {
		return nil, notFound(err, msgAppNotFound)
	}
	hook, err := s.store.GetWebhook(ctx, appID, webhookID)
	if err != nil {
		return nil, notFound(err, msgWebhookNotFound)
	}
	return hook, nil
}

// Update 更新订阅地址、事件过滤或启用状态
func (s *WebhookService) Update(ctx context.Context, input UpdateWebhookInput) (*domain.Webhook, error) {
	if input.URL == nil && input.Events == nil && input.Enabled == nil {
		return nil, domain.InvalidRequest("At least one field must be provided: url, events, enabled")
	}

	hook, err := s.Get(ctx, input.UserID, input.AppID, input.WebhookID)
	if err != nil {
		return nil, err
	}

	if input.URL != nil {
		if err := domain.ValidateWebhookURL(*input.URL); err != nil {
			return nil, domain.InvalidRequest(err.Error())
		}
		hook.URL = *input.URL
	}
	if input.Events != nil {
		events, err := domain.ParseEventTypes(*input.Events)
		if err != nil {
			return nil, domain.InvalidRequest(err.Error())
		}
		hook.Events = events
	}
	if input.Enabled != nil {
		hook.Enabled = *input.Enabled
	}
	hook.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateWebhook(ctx, hook); err != nil {
		return nil, notFound(err, msgWebhookNotFound)
	}
	return hook, nil
}

// Delete 删除 Webhook 及其投递记录
func (s *WebhookService) Delete(ctx context.Context, userID, appID, webhookID string) error {
	if _, err := s.store.GetApp(ctx, userID, appID); err != nil {
		return notFound(err, msgAppNotFound)
	}
	if err := s.store.DeleteWebhook(ctx, appID, webhookID); err != nil {
		return notFound(err, msgWebhookNotFound)
	}
	s.log.Info("webhook deleted", zap.String("webhook_id", webhookID), zap.String("app_id", appID))
	return nil
}

// ListDeliveries 获取投递记录，最新的在前
func (s *WebhookService) ListDeliveries(ctx context.Context, userID, appID, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	if _, err := s.Get(ctx, userID, appID, webhookID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDeliveryPageSize
	}
	if limit > MaxDeliveryPageSize {
		limit = MaxDeliveryPageSize
	}
	return s.store.ListDeliveries(ctx, webhookID, limit)
}

// Redeliver 手动重投一条记录，投递在后台完成
func (s *WebhookService) Redeliver(ctx context.Context, userID, appID, webhookID, deliveryID string) (*domain.WebhookDelivery, error) {
	hook, err := s.Get(ctx, userID, appID, webhookID)
	if err != nil {
		return nil, err
	}
	if !hook.Enabled {
		return nil, domain.Conflict("Webhook is disabled")
	}

	delivery, err := s.store.GetDelivery(ctx, webhookID, deliveryID)
	if err != nil {
		return nil, notFound(err, msgDeliveryNotFound)
	}

	if err := s.dispatcher.Redeliver(hook, delivery); err != nil {
		return nil, err
	}

	s.log.Info("webhook redelivery queued",
		zap.String("webhook_id", webhookID),
		zap.String("delivery_id", deliveryID),
	)
	return delivery, nil
}
