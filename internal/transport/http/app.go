package httptransport

import (
	"github.com/gin-gonic/gin"

	"publier/backend/internal/domain"
	"publier/backend/internal/service"
)

// AppHandler 应用管理处理器
type AppHandler struct {
	appService *service.AppService
}

// NewAppHandler 创建应用处理器
func NewAppHandler(appService *service.AppService) *AppHandler {
	return &AppHandler{appService: appService}
}

type createAppRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"max=500"`
	Environment string `json:"environment" binding:"omitempty,oneof=development production"`
}

type updateAppRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description" binding:"omitempty,max=500"`
	Environment *string `json:"environment" binding:"omitempty,oneof=development production"`
}

// CreateApp 创建应用
func (h *AppHandler) CreateApp(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	var req createAppRequest
	if !bindJSON(c, &req) {
		return
	}

	app, err := h.appService.Create(c.Request.Context(), service.CreateAppInput{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Environment: domain.Environment(req.Environment),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, app)
}

// ListApps 列出当前用户的应用
func (h *AppHandler) ListApps(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	apps, err := h.appService.List(c.Request.Context(), userID)
	if err != nil {
		Fail(c, err)
		return
	}
	List(c, apps)
}

// GetApp 获取应用详情
func (h *AppHandler) GetApp(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	app, err := h.appService.Get(c.Request.Context(), userID, c.Param("appId"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, app)
}

// UpdateApp 更新应用
func (h *AppHandler) UpdateApp(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	var req updateAppRequest
	if !bindJSON(c, &req) {
		return
	}

	input := service.UpdateAppInput{
		UserID:      userID,
		AppID:       c.Param("appId"),
		Name:        req.Name,
		Description: req.Description,
	}
	if req.Environment != nil {
		env := domain.Environment(*req.Environment)
		input.Environment = &env
	}

	app, err := h.appService.Update(c.Request.Context(), input)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, app)
}

// DeleteApp 删除应用
func (h *AppHandler) DeleteApp(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	if err := h.appService.Delete(c.Request.Context(), userID, c.Param("appId")); err != nil {
		Fail(c, err)
		return
	}
	NoContent(c)
}
