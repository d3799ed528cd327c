package httptransport

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/domain"
	"publier/backend/internal/service"
)

// PostHandler 帖子处理器，所有路由使用 API Key 认证
type PostHandler struct {
	postService *service.PostService
}

// NewPostHandler 创建帖子处理器
func NewPostHandler(postService *service.PostService) *PostHandler {
	return &PostHandler{postService: postService}
}

type createPostRequest struct {
	Content     string          `json:"content" binding:"required"`
	Platforms   []string        `json:"platforms" binding:"omitempty,max=10"`
	Metadata    json.RawMessage `json:"metadata"`
	ScheduledAt *time.Time      `json:"scheduled_at"`
}

type updatePostRequest struct {
	Content     *string    `json:"content"`
	Platforms   *[]string  `json:"platforms" binding:"omitempty,max=10"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

type postStatsResponse struct {
	AppID string           `json:"app_id"`
	Posts domain.PostStats `json:"posts"`
}

// CreatePost 创建帖子
func (h *PostHandler) CreatePost(c *gin.Context) {
	appID, ok := apiKeyAppID(c)
	if !ok {
		return
	}
	var req createPostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.postService.Create(c.Request.Context(), service.CreatePostInput{
		AppID:       appID,
		Content:     req.Content,
		Platforms:   req.Platforms,
		Metadata:    req.Metadata,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, post)
}

// ListPosts 分页列出帖子
func (h *PostHandler) ListPosts(c *gin.Context) {
	appID, ok := apiKeyAppID(c)
	if !ok {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxPostPageSize {
			Fail(c, domain.InvalidRequest("limit must be an integer between 1 and 100"))
			return
		}
		limit = n
	}

	page, err := h.postService.List(c.Request.Context(), service.ListPostsInput{
		AppID:  appID,
		Status: c.Query("status"),
		Cursor: c.Query("cursor"),
		Limit:  limit,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, page)
}

// GetPost 获取帖子
func (h *PostHandler) GetPost(c *gin.Context) {
	appID, ok := apiKeyAppID(c)
	if !ok {
		return
	}
	post, err := h.postService.Get(c.Request.Context(), appID, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, post)
}

// UpdatePost 修改草稿或排期中的帖子
func (h *PostHandler) UpdatePost(c *gin.Context) {
	appID, ok := apiKeyAppID(c)
	if !ok {
		return
	}
	var req updatePostRequest
	if !bindJSON(c, &req) {
		return
	}

	post, err := h.postService.Update(c.Request.Context(), service.UpdatePostInput{
		AppID:       appID,
		PostID:      c.Param("id"),
		Content:     req.Content,
		Platforms:   req.Platforms,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, post)
}

// PublishPost 立即发布帖子
func (h *PostHandler) PublishPost(c *gin.Context) {
	appID, ok := apiKeyAppID(c)
	if !ok {
		return
	}
	post, err := h.postService.Publish(c.Request.Context(), appID, c.Param("id"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, post)
}

// DeletePost 删除帖子
func (h *PostHandler) DeletePost(c *gin.Context) {
	appID, ok := apiKeyAppID(c)
	if !ok {
		return
	}
	if err := h.postService.Delete(c.Request.Context(), appID, c.Param("id")); err != nil {
		Fail(c, err)
		return
	}
	NoContent(c)
}

// PostAnalytics 按状态统计帖子数量
func (h *PostHandler) PostAnalytics(c *gin.Context) {
	appID, ok := apiKeyAppID(c)
	if !ok {
		return
	}
	stats, err := h.postService.Stats(c.Request.Context(), appID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, postStatsResponse{AppID: appID, Posts: stats})
}
