package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/service"
)

const msgStoreKeySecurely = "Store this key securely. It will not be shown again."

// APIKeyHandler API Key管理处理器
type APIKeyHandler struct {
	apiKeyService *service.APIKeyService
}

// NewAPIKeyHandler 创建API Key处理器
func NewAPIKeyHandler(apiKeyService *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{apiKeyService: apiKeyService}
}

// createAPIKeyRequest 创建API Key请求
type createAPIKeyRequest struct {
	Name          string   `json:"name" binding:"required"`
	Scopes        []string `json:"scopes" binding:"omitempty,dive,scope"`
	ExpiresInDays *int     `json:"expires_in_days" binding:"omitempty,min=1,max=365"`
}

// createdAPIKeyResponse 签发响应，Key 只出现这一次
type createdAPIKeyResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Key         string             `json:"key"`
	KeyPrefix   string             `json:"key_prefix"`
	Environment domain.Environment `json:"environment"`
	Scopes      []domain.Scope     `json:"scopes"`
	ExpiresAt   *time.Time         `json:"expires_at"`
	CreatedAt   time.Time          `json:"created_at"`
	Warning     string             `json:"_warning"`
}

// apiKeyResponse 列表中的密钥，只包含预览
type apiKeyResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	KeyPreview  string             `json:"key_preview"`
	Environment domain.Environment `json:"environment"`
	Scopes      []domain.Scope     `json:"scopes"`
	Revoked     bool               `json:"revoked"`
	LastUsedAt  *time.Time         `json:"last_used_at"`
	ExpiresAt   *time.Time         `json:"expires_at"`
	CreatedAt   time.Time          `json:"created_at"`
}

// CreateAPIKey 为应用签发API Key
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	var req createAPIKeyRequest
	if !bindJSON(c, &req) {
		return
	}

	created, err := h.apiKeyService.Create(c.Request.Context(), service.CreateAPIKeyInput{
		UserID:        userID,
		AppID:         c.Param("appId"),
		Name:          req.Name,
		Scopes:        req.Scopes,
		ExpiresInDays: req.ExpiresInDays,
	})
	if err != nil {
		Fail(c, err)
		return
	}

	key := created.Key
	Created(c, createdAPIKeyResponse{
		ID:          key.ID,
		Name:        key.Name,
		Key:         created.RawKey,
		KeyPrefix:   key.KeyPrefix,
		Environment: key.Environment,
		Scopes:      key.Scopes,
		ExpiresAt:   key.ExpiresAt,
		CreatedAt:   key.CreatedAt,
		Warning:     msgStoreKeySecurely,
	})
}

// ListAPIKeys 列出应用的API Key
func (h *APIKeyHandler) ListAPIKeys(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	keys, err := h.apiKeyService.List(c.Request.Context(), userID, c.Param("appId"))
	if err != nil {
		Fail(c, err)
		return
	}

	items := make([]apiKeyResponse, 0, len(keys))
	for i := range keys {
		k := &keys[i]
		items = append(items, apiKeyResponse{
			ID:          k.ID,
			Name:        k.Name,
			KeyPreview:  auth.KeyPreview(k.KeyPrefix),
			Environment: k.Environment,
			Scopes:      k.Scopes,
			Revoked:     k.Revoked,
			LastUsedAt:  k.LastUsedAt,
			ExpiresAt:   k.ExpiresAt,
			CreatedAt:   k.CreatedAt,
		})
	}
	List(c, items)
}

// RevokeAPIKey 吊销API Key
func (h *APIKeyHandler) RevokeAPIKey(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	if err := h.apiKeyService.Revoke(c.Request.Context(), userID, c.Param("appId"), c.Param("keyId")); err != nil {
		Fail(c, err)
		return
	}
	Message(c, "API key revoked")
}

// DeleteAPIKey 删除API Key
func (h *APIKeyHandler) DeleteAPIKey(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	if err := h.apiKeyService.Delete(c.Request.Context(), userID, c.Param("appId"), c.Param("keyId")); err != nil {
		Fail(c, err)
		return
	}
	NoContent(c)
}
