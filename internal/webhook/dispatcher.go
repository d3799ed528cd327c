package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"publier/backend/internal/domain"
	"publier/backend/internal/monitoring"
	"publier/backend/internal/storage"
)

const (
	userAgent       = "Publier-Webhooks/1.0"
	maxErrorLength  = 1024
	maxResponseRead = 64 << 10

	taskFanOut   = "webhook.fanout"
	taskDelivery = "webhook.deliver"
	taskRetry    = "webhook.retry"
)

// ErrQueueFull 后台队列已满，事件未被接收
var ErrQueueFull = errors.New("webhook dispatch queue is full")

// Repository 投递所需的存储操作
type Repository interface {
	ListEnabledWebhooks(ctx context.Context, appID string) ([]domain.Webhook, error)
	GetWebhookByID(ctx context.Context, webhookID string) (*domain.Webhook, error)
	CreateDelivery(ctx context.Context, delivery *domain.WebhookDelivery) error
	GetDelivery(ctx context.Context, webhookID, deliveryID string) (*domain.WebhookDelivery, error)
	RecordAttempt(ctx context.Context, deliveryID string, attempt domain.DeliveryAttempt) error
	ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]domain.WebhookDelivery, error)
	ClaimRetry(ctx context.Context, deliveryID string, now time.Time) (bool, error)
}

// TaskSubmitter 后台任务队列
type TaskSubmitter interface {
	TrySubmit(name string, task func(ctx context.Context) error) bool
}

// Config 投递配置
type Config struct {
	Timeout      time.Duration
	MaxAttempts  int
	MaxPerSecond int
}

// Dispatcher Webhook 事件分发器
//
// Dispatch 只负责入队，投递结果只能通过投递记录观察，不会影响触发事件的请求。
type Dispatcher struct {
	repo    Repository
	tasks   TaskSubmitter
	client  *http.Client
	limiter *rate.Limiter
	timeout time.Duration
	policy  RetryPolicy
	log     *zap.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewDispatcher 创建分发器，client 为 nil 时使用默认客户端
func NewDispatcher(repo Repository, tasks TaskSubmitter, client *http.Client, cfg Config, log *zap.Logger, metrics *monitoring.Metrics) *Dispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}

	limit := rate.Inf
	burst := 1
	if cfg.MaxPerSecond > 0 {
		limit = rate.Limit(cfg.MaxPerSecond)
		burst = cfg.MaxPerSecond
	}

	return &Dispatcher{
		repo:    repo,
		tasks:   tasks,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
		timeout: cfg.Timeout,
		policy:  RetryPolicy{MaxAttempts: cfg.MaxAttempts},
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// Dispatch 分发事件
//
// 信封在调用方协程中序列化一次，订阅查找与投递都在后台完成。
func (d *Dispatcher) Dispatch(ownerID string, event domain.WebhookEventType, data interface{}) error {
	envelope := domain.Envelope{
		ID:        "evt_" + uuid.New().String(),
		Type:      event,
		CreatedAt: d.now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook envelope: %w", err)
	}

	submitted := d.tasks.TrySubmit(taskFanOut, func(ctx context.Context) error {
		return d.fanOut(ctx, ownerID, envelope.ID, event, payload)
	})
	if !submitted {
		d.metrics.RecordBackgroundTask(taskFanOut, "dropped")
		return ErrQueueFull
	}
	return nil
}

// fanOut 为每个订阅先写入 pending 记录再交给协程池投递
//
// 队列不可用时（已满或正在排空）在当前任务中直接投递，记录总能落库。
// pending 记录带有接管时间，进程在写回结果前退出时由扫描器重新投递。
func (d *Dispatcher) fanOut(ctx context.Context, ownerID, eventID string, event domain.WebhookEventType, payload []byte) error {
	hooks, err := d.repo.ListEnabledWebhooks(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}

	var errs []error
	for i := range hooks {
		hook := hooks[i]
		if !hook.Enabled || !hook.Subscribes(event) {
			continue
		}

		delivery, err := d.createDelivery(ctx, &hook, eventID, event, payload)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		submitted := d.tasks.TrySubmit(taskDelivery, func(ctx context.Context) error {
			return d.attempt(ctx, &hook, delivery)
		})
		if submitted {
			continue
		}
		d.metrics.RecordBackgroundTask(taskDelivery, "inline")
		d.log.Debug("background queue unavailable, delivering inline",
			zap.String("webhook_id", hook.ID),
			zap.String("delivery_id", delivery.ID),
		)
		if err := d.attempt(ctx, &hook, delivery); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) createDelivery(ctx context.Context, hook *domain.Webhook, eventID string, event domain.WebhookEventType, payload []byte) (*domain.WebhookDelivery, error) {
	now := d.now().UTC()
	reclaimAt := now.Add(d.pendingLease())
	delivery := &domain.WebhookDelivery{
		ID:          uuid.New().String(),
		WebhookID:   hook.ID,
		EventID:     eventID,
		EventType:   event,
		Payload:     payload,
		Status:      domain.DeliveryPending,
		NextRetryAt: &reclaimAt,
		CreatedAt:   now,
	}
	if err := d.repo.CreateDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}
	return delivery, nil
}

// pendingLease pending 记录被扫描器接管前的等待时间
func (d *Dispatcher) pendingLease() time.Duration {
	return d.timeout + retrySchedule[0]
}

// Redeliver 手动重新投递一条记录
func (d *Dispatcher) Redeliver(hook *domain.Webhook, delivery *domain.WebhookDelivery) error {
	h, del := *hook, *delivery
	submitted := d.tasks.TrySubmit(taskRetry, func(ctx context.Context) error {
		return d.attempt(ctx, &h, &del)
	})
	if !submitted {
		d.metrics.RecordBackgroundTask(taskRetry, "dropped")
		return ErrQueueFull
	}
	return nil
}

// scheduleRetry 提交一次自动重试，任务执行时再抢占记录
func (d *Dispatcher) scheduleRetry(deliveryID, webhookID string) bool {
	return d.tasks.TrySubmit(taskRetry, func(ctx context.Context) error {
		return d.retry(ctx, deliveryID, webhookID)
	})
}

func (d *Dispatcher) retry(ctx context.Context, deliveryID, webhookID string) error {
	claimed, err := d.repo.ClaimRetry(ctx, deliveryID, d.now().UTC())
	if err != nil {
		return fmt.Errorf("claim retry: %w", err)
	}
	if !claimed {
		return nil
	}

	hook, err := d.repo.GetWebhookByID(ctx, webhookID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}
	if !hook.Enabled {
		d.log.Debug("skipping retry for disabled webhook", zap.String("webhook_id", hook.ID))
		return nil
	}

	delivery, err := d.repo.GetDelivery(ctx, webhookID, deliveryID)
	if err != nil {
		return fmt.Errorf("load delivery: %w", err)
	}
	return d.attempt(ctx, hook, delivery)
}

// attempt 执行一次投递并更新记录
//
// 限速等待失败（任务被取消）同样记为一次失败尝试，记录不会停留在 pending。
func (d *Dispatcher) attempt(ctx context.Context, hook *domain.Webhook, delivery *domain.WebhookDelivery) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return d.record(ctx, hook, delivery, 0, fmt.Errorf("webhook throttle: %w", err), 0)
	}

	start := d.now()
	status, sendErr := d.send(ctx, hook, delivery)
	return d.record(ctx, hook, delivery, status, sendErr, time.Since(start))
}

func (d *Dispatcher) record(ctx context.Context, hook *domain.Webhook, delivery *domain.WebhookDelivery, status int, sendErr error, elapsed time.Duration) error {
	attemptedAt := d.now().UTC()
	result := domain.DeliveryAttempt{
		Status:         domain.DeliverySuccess,
		ResponseStatus: status,
		AttemptedAt:    attemptedAt,
	}
	if sendErr != nil {
		result.Status = domain.DeliveryFailed
		result.Error = truncateError(sendErr.Error())
		result.NextRetryAt = d.policy.NextRetry(delivery.Attempts+1, attemptedAt)
	}
	d.metrics.RecordWebhookDelivery(string(result.Status), elapsed)

	// 请求上下文超时后仍需写回结果
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.repo.RecordAttempt(recordCtx, delivery.ID, result); err != nil {
		return fmt.Errorf("record delivery attempt: %w", err)
	}

	if sendErr != nil {
		d.log.Info("webhook delivery failed",
			zap.String("webhook_id", hook.ID),
			zap.String("delivery_id", delivery.ID),
			zap.Int("attempt", delivery.Attempts+1),
			zap.Error(sendErr),
		)
	}
	return nil
}

// send 发送 HTTP 请求，非 2xx 视为失败
func (d *Dispatcher) send(ctx context.Context, hook *domain.Webhook, delivery *domain.WebhookDelivery) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	timestamp := d.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, SignatureHeader(hook.Secret, timestamp, delivery.Payload))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(HeaderEventType, string(delivery.EventType))
	req.Header.Set(HeaderDelivery, delivery.ID)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseRead))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func truncateError(s string) string {
	if len(s) <= maxErrorLength {
		return s
	}
	return s[:maxErrorLength]
}
