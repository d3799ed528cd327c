package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"publier/backend/internal/domain"
)

// ========== Webhook Repository ==========

// CreateWebhook 创建 Webhook
func (s *Store) CreateWebhook(ctx context.Context, webhook *domain.Webhook) error {
	return translate(s.db.WithContext(ctx).Create(webhook).Error)
}

// GetWebhook 获取应用下的 Webhook
func (s *Store) GetWebhook(ctx context.Context, appID, webhookID string) (*domain.Webhook, error) {
	var webhook domain.Webhook
	if err := s.db.WithContext(ctx).Where("id = ? AND app_id = ?", webhookID, appID).First(&webhook).Error; err != nil {
		return nil, translate(err)
	}
	return &webhook, nil
}

func (s *Store) GetWebhookByID(ctx context.Context, webhookID string) (*domain.Webhook, error) {
	var webhook domain.Webhook
	if err := s.db.WithContext(ctx).Where("id = ?", webhookID).First(&webhook).Error; err != nil {
		return nil, translate(err)
	}
	return &webhook, nil
}

// ListWebhooks 列出应用的 Webhooks
func (s *Store) ListWebhooks(ctx context.Context, appID string) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	err := s.db.WithContext(ctx).
		Where("app_id = ?", appID).
		Order("created_at DESC, id DESC").
		Find(&webhooks).Error
	return webhooks, err
}

// ListEnabledWebhooks 列出应用已启用的 Webhooks
func (s *Store) ListEnabledWebhooks(ctx context.Context, appID string) ([]domain.Webhook, error) {
	var webhooks []domain.Webhook
	err := s.db.WithContext(ctx).
		Where("app_id = ? AND enabled = ?", appID, true).
		Order("created_at DESC, id DESC").
		Find(&webhooks).Error
	return webhooks, err
}

// UpdateWebhook 更新 Webhook
func (s *Store) UpdateWebhook(ctx context.Context, webhook *domain.Webhook) error {
	return affected(s.db.WithContext(ctx).Model(&domain.Webhook{}).
		Where("id = ? AND app_id = ?", webhook.ID, webhook.AppID).
		Select("url", "events", "enabled", "updated_at").
		Updates(webhook))
}

// DeleteWebhook 删除 Webhook 及其投递记录
func (s *Store) DeleteWebhook(ctx context.Context, appID, webhookID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := affected(tx.Where("id = ? AND app_id = ?", webhookID, appID).Delete(&domain.Webhook{})); err != nil {
			return err
		}
		return tx.Where("webhook_id = ?", webhookID).Delete(&domain.WebhookDelivery{}).Error
	})
}

// ========== Delivery Repository ==========

// CreateDelivery 记录一次待投递
func (s *Store) CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error {
	return translate(s.db.WithContext(ctx).Create(delivery).Error)
}

func (s *Store) GetDelivery(ctx context.Context, webhookID, deliveryID string) (*domain.WebhookDelivery, error) {
	var delivery domain.WebhookDelivery
	err := s.db.WithContext(ctx).
		Where("id = ? AND webhook_id = ?", deliveryID, webhookID).
		First(&delivery).Error
	if err != nil {
		return nil, translate(err)
	}
	return &delivery, nil
}

// ListDeliveries 获取投递记录，最新的在前
func (s *Store) ListDeliveries(ctx context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	var deliveries []domain.WebhookDelivery
	q := s.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&deliveries).Error
	return deliveries, err
}

// RecordAttempt 写入一次投递尝试的结果，尝试次数在数据库中原子递增
func (s *Store) RecordAttempt(ctx context.Context, deliveryID string, attempt domain.DeliveryAttempt) error {
	return affected(s.db.WithContext(ctx).Model(&domain.WebhookDelivery{}).
		Where("id = ?", deliveryID).
		Updates(map[string]interface{}{
			"status":          attempt.Status,
			"attempts":        gorm.Expr("attempts + 1"),
			"response_status": attempt.ResponseStatus,
			"last_error":      attempt.Error,
			"last_attempt_at": attempt.AttemptedAt,
			"next_retry_at":   attempt.NextRetryAt,
		}))
}

// retryableStatuses 失败记录与超时未写回的 pending 记录
var retryableStatuses = []domain.DeliveryStatus{domain.DeliveryFailed, domain.DeliveryPending}

// ListDueDeliveries 返回需要重试的投递，按到期时间升序
func (s *Store) ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	var deliveries []domain.WebhookDelivery
	q := s.db.WithContext(ctx).
		Where("status IN ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", retryableStatuses, now).
		Order("next_retry_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&deliveries).Error
	return deliveries, err
}

// ClaimRetry 条件更新清空 next_retry_at，只有一个调用方能抢占成功
func (s *Store) ClaimRetry(ctx context.Context, deliveryID string, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&domain.WebhookDelivery{}).
		Where("id = ? AND status IN ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", deliveryID, retryableStatuses, now).
		Update("next_retry_at", gorm.Expr("NULL"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
