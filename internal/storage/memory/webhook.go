package memory

import (
	"context"
	"sort"
	"time"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

// CreateWebhook 创建 Webhook
func (s *Store) CreateWebhook(_ context.Context, webhook *domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.webhooks[webhook.ID]; exists {
		return storage.ErrConflict
	}
	s.webhooks[webhook.ID] = cloneWebhook(webhook)
	return nil
}

// GetWebhook 获取应用下的 Webhook
func (s *Store) GetWebhook(_ context.Context, appID, webhookID string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[webhookID]
	if !ok || w.AppID != appID {
		return nil, storage.ErrNotFound
	}
	return cloneWebhook(w), nil
}

func (s *Store) GetWebhookByID(_ context.Context, webhookID string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[webhookID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneWebhook(w), nil
}

// ListWebhooks 列出应用的 Webhooks
func (s *Store) ListWebhooks(_ context.Context, appID string) ([]domain.Webhook, error) {
	return s.listWebhooks(appID, false), nil
}

// ListEnabledWebhooks 列出应用已启用的 Webhooks
func (s *Store) ListEnabledWebhooks(_ context.Context, appID string) ([]domain.Webhook, error) {
	return s.listWebhooks(appID, true), nil
}

func (s *Store) listWebhooks(appID string, enabledOnly bool) []domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Webhook, 0)
	for _, w := range s.webhooks {
		if w.AppID != appID || (enabledOnly && !w.Enabled) {
			continue
		}
		out = append(out, *cloneWebhook(w))
	}
	sortByCreatedDesc(out, func(w domain.Webhook) (time.Time, string) { return w.CreatedAt, w.ID })
	return out
}

// UpdateWebhook 更新 Webhook
func (s *Store) UpdateWebhook(_ context.Context, webhook *domain.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.webhooks[webhook.ID]
	if !ok || existing.AppID != webhook.AppID {
		return storage.ErrNotFound
	}
	s.webhooks[webhook.ID] = cloneWebhook(webhook)
	return nil
}

// DeleteWebhook 删除 Webhook 及其投递记录
func (s *Store) DeleteWebhook(_ context.Context, appID, webhookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[webhookID]
	if !ok || w.AppID != appID {
		return storage.ErrNotFound
	}
	s.deleteWebhookLocked(webhookID)
	return nil
}

func (s *Store) deleteWebhookLocked(webhookID string) {
	for id, d := range s.deliveries {
		if d.WebhookID == webhookID {
			delete(s.deliveries, id)
		}
	}
	delete(s.webhooks, webhookID)
}

// CreateDelivery 记录一次待投递
func (s *Store) CreateDelivery(_ context.Context, delivery *domain.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.deliveries[delivery.ID]; exists {
		return storage.ErrConflict
	}
	s.deliveries[delivery.ID] = cloneDelivery(delivery)
	return nil
}

func (s *Store) GetDelivery(_ context.Context, webhookID, deliveryID string) (*domain.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[deliveryID]
	if !ok || d.WebhookID != webhookID {
		return nil, storage.ErrNotFound
	}
	return cloneDelivery(d), nil
}

// ListDeliveries 获取投递记录，最新的在前
func (s *Store) ListDeliveries(_ context.Context, webhookID string, limit int) ([]domain.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WebhookDelivery, 0)
	for _, d := range s.deliveries {
		if d.WebhookID == webhookID {
			out = append(out, *cloneDelivery(d))
		}
	}
	sortByCreatedDesc(out, func(d domain.WebhookDelivery) (time.Time, string) { return d.CreatedAt, d.ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RecordAttempt 写入一次投递尝试的结果
func (s *Store) RecordAttempt(_ context.Context, deliveryID string, attempt domain.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[deliveryID]
	if !ok {
		return storage.ErrNotFound
	}
	at := attempt.AttemptedAt
	d.Status = attempt.Status
	d.Attempts++
	d.ResponseStatus = attempt.ResponseStatus
	d.LastError = attempt.Error
	d.LastAttemptAt = &at
	d.NextRetryAt = copyTime(attempt.NextRetryAt)
	return nil
}

// ListDueDeliveries 返回 next_retry_at 已到期的投递，按到期时间升序
func (s *Store) ListDueDeliveries(_ context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.WebhookDelivery, 0)
	for _, d := range s.deliveries {
		if retryable(d.Status) && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, *cloneDelivery(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(*out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ClaimRetry 抢占一条到期投递
func (s *Store) ClaimRetry(_ context.Context, deliveryID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deliveries[deliveryID]
	if !ok {
		return false, storage.ErrNotFound
	}
	if !retryable(d.Status) || d.NextRetryAt == nil || d.NextRetryAt.After(now) {
		return false, nil
	}
	d.NextRetryAt = nil
	return true, nil
}

// retryable 失败记录与超时未写回的 pending 记录都可以被扫描器接管
func retryable(status domain.DeliveryStatus) bool {
	return status == domain.DeliveryFailed || status == domain.DeliveryPending
}

func cloneWebhook(w *domain.Webhook) *domain.Webhook {
	out := *w
	out.Events = append([]domain.WebhookEventType(nil), w.Events...)
	return &out
}

func cloneDelivery(d *domain.WebhookDelivery) *domain.WebhookDelivery {
	out := *d
	out.Payload = append([]byte(nil), d.Payload...)
	out.LastAttemptAt = copyTime(d.LastAttemptAt)
	out.NextRetryAt = copyTime(d.NextRetryAt)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
