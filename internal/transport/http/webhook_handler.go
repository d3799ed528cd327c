package httptransport

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/domain"
	"publier/backend/internal/service"
)

const msgStoreSecretSecurely = "Store the secret securely. It will not be shown again."

// WebhookHandler Webhook 管理处理器
type WebhookHandler struct {
	webhookService *service.WebhookService
}

// NewWebhookHandler 创建 Webhook 处理器
func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// createWebhookRequest 创建 Webhook 请求
type createWebhookRequest struct {
	URL    string   `json:"url" binding:"required,https_url"`
	Events []string `json:"events" binding:"omitempty,dive,webhook_event"`
}

// updateWebhookRequest 更新 Webhook 请求
type updateWebhookRequest struct {
	URL     *string   `json:"url" binding:"omitempty,https_url"`
	Events  *[]string `json:"events" binding:"omitempty,dive,webhook_event"`
	Enabled *bool     `json:"enabled"`
}

type createdWebhookResponse struct {
	ID        string                    `json:"id"`
	URL       string                    `json:"url"`
	Events    []domain.WebhookEventType `json:"events"`
	Enabled   bool                      `json:"enabled"`
	Secret    string                    `json:"secret"`
	CreatedAt time.Time                 `json:"created_at"`
	Warning   string                    `json:"_warning"`
}

type redeliveryResponse struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
}

// CreateWebhook 创建 Webhook，签名密钥只返回一次
func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	var req createWebhookRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.webhookService.Create(c.Request.Context(), service.CreateWebhookInput{
		UserID: userID,
		AppID:  c.Param("appId"),
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	hook := created.Webhook
	Created(c, createdWebhookResponse{
		ID:        hook.ID,
		URL:       hook.URL,
		Events:    hook.Events,
		Enabled:   hook.Enabled,
		Secret:    created.Secret,
		CreatedAt: hook.CreatedAt,
		Warning:   msgStoreSecretSecurely,
	})
}

// ListWebhooks 列出应用的 Webhooks
func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	hooks, err := h.webhookService.List(c.Request.Context(), userID, c.Param("appId"))
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, hooks)
}

// GetWebhook 获取 Webhook
func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	hook, err := h.webhookService.Get(c.Request.Context(), userID, c.Param("appId"), c.Param("webhookId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, hook)
}

// UpdateWebhook 更新 Webhook
func (h *WebhookHandler) UpdateWebhook(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	var req updateWebhookRequest
	if !bindJSON(c, &req) {
		return
	}

	hook, err := h.webhookService.Update(c.Request.Context(), service.UpdateWebhookInput{
		UserID:    userID,
		AppID:     c.Param("appId"),
		WebhookID: c.Param("webhookId"),
		URL:       req.URL,
		Events:    req.Events,
		Enabled:   req.Enabled,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, hook)
}

// DeleteWebhook 删除 Webhook
func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	if err := h.webhookService.Delete(c.Request.Context(), userID, c.Param("appId"), c.Param("webhookId")); err != nil {
		Fail(c, err)
		return
	}
	NoContent(c)
}

// ListDeliveries 获取投递记录
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxDeliveryPageSize {
			Fail(c, domain.InvalidRequest("limit must be an integer between 1 and 100"))
			return
		}
		limit = n
	}

	deliveries, err := h.webhookService.ListDeliveries(c.Request.Context(), userID, c.Param("appId"), c.Param("webhookId"), limit)
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, deliveries)
}

// Redeliver 手动重投，投递在后台完成
func (h *WebhookHandler) Redeliver(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	delivery, err := h.webhookService.Redeliver(c.Request.Context(), userID,
		c.Param("appId"), c.Param("webhookId"), c.Param("deliveryId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Accepted(c, redeliveryResponse{DeliveryID: delivery.ID, Status: "queued"})
}
