package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

const (
	msgPostNotFound = "Post not found"

	// MaxPostPageSize 帖子列表单页上限
	MaxPostPageSize     = 100
	defaultPostPageSize = 20
	maxPlatforms        = 10
)

// EventPublisher 领域事件发布，由 webhook.Dispatcher 实现
type EventPublisher interface {
	Dispatch(ownerID string, event domain.WebhookEventType, data interface{}) error
}

// PostService 帖子业务逻辑服务
//
// 帖子归属于 API Key 所在的应用，状态变化会以事件形式发布给该应用的 Webhook。
// 事件发布失败只记录日志，不影响请求结果。
type PostService struct {
	store  storage.PostRepository
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewPostService 创建帖子服务
func NewPostService(store storage.PostRepository, events EventPublisher, log *zap.Logger) *PostService {
	return &PostService{store: store, events: events, log: log, now: time.Now}
}

// CreatePostInput 创建帖子输入
type CreatePostInput struct {
	AppID       string
	Content     string
	Platforms   []string
	Metadata    json.RawMessage
	ScheduledAt *time.Time
}

// UpdatePostInput 更新帖子输入，nil 字段保持不变
type UpdatePostInput struct {
	AppID       string
	PostID      string
	Content     *string
	Platforms   *[]string
	ScheduledAt *time.Time
}

// ListPostsInput 帖子列表查询参数
type ListPostsInput struct {
	AppID  string
	Status string
	Cursor string
	Limit  int
}

// PostPage 帖子分页结果
type PostPage struct {
	Posts      []domain.Post `json:"data"`
	NextCursor string        `json:"next_cursor,omitempty"`
	HasMore    bool          `json:"has_more"`
}

// Create 创建帖子
//
// 参数:
//   - input: 创建参数，ScheduledAt 非空时必须晚于当前时间
//
// 返回值:
//   - *domain.Post: 草稿或排期状态的帖子
//   - error: 参数不合法返回 INVALID_REQUEST
func (s *PostService) Create(ctx context.Context, input CreatePostInput) (*domain.Post, error) {
	if err := domain.ValidatePostContent(input.Content); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}
	platforms, err := normalizePlatforms(input.Platforms)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	post := &domain.Post{
		ID:        uuid.New().String(),
		AppID:     input.AppID,
		Content:   input.Content,
		Platforms: platforms,
		Status:    domain.PostDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(input.Metadata) > 0 {
		if !json.Valid(input.Metadata) {
			return nil, domain.InvalidRequest("metadata must be valid JSON")
		}
		post.Metadata = datatypes.JSON(input.Metadata)
	}
	if input.ScheduledAt != nil {
		at := input.ScheduledAt.UTC()
		if !at.After(now) {
			return nil, domain.InvalidRequest("scheduled_at must be in the future")
		}
		post.ScheduledAt = &at
		post.Status = domain.PostScheduled
	}

	if err := s.store.CreatePost(ctx, post); err != nil {
		return nil, err
	}

	s.publish(post, domain.EventPostCreated)
	if post.Status == domain.PostScheduled {
		s.publish(post, domain.EventPostScheduled)
	}
	return post, nil
}

// List 按创建时间倒序分页列出帖子
func (s *PostService) List(ctx context.Context, input ListPostsInput) (*PostPage, error) {
	filter := domain.PostFilter{AppID: input.AppID, Cursor: input.Cursor}
	if input.Status != "" {
		status, ok := domain.ParsePostStatus(input.Status)
		if !ok {
			return nil, domain.InvalidRequest("status must be one of: draft, scheduled, published, failed")
		}
		filter.Status = status
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultPostPageSize
	}
	if limit > MaxPostPageSize {
		limit = MaxPostPageSize
	}
	// 多取一条用于判断是否还有下一页
	filter.Limit = limit + 1

	posts, err := s.store.ListPosts(ctx, filter)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.InvalidRequest("Invalid cursor")
		}
		return nil, err
	}

	page := &PostPage{Posts: posts}
	if len(posts) > limit {
		page.Posts = posts[:limit]
		page.HasMore = true
		page.NextCursor = page.Posts[limit-1].ID
	}
	if page.Posts == nil {
		page.Posts = []domain.Post{}
	}
	return page, nil
}

// Get 获取帖子
func (s *PostService) Get(ctx context.Context, appID, postID string) (*domain.Post, error) {
	post, err := s.store.GetPost(ctx, appID, postID)
	if err != nil {
		return nil, notFound(err, msgPostNotFound)
	}
	return post, nil
}

// Update 修改草稿或排期中的帖子
func (s *PostService) Update(ctx context.Context, input UpdatePostInput) (*domain.Post, error) {
	if input.Content == nil && input.Platforms == nil && input.ScheduledAt == nil {
		return nil, domain.InvalidRequest("At least one field must be provided: content, platforms, scheduled_at")
	}

	post, err := s.Get(ctx, input.AppID, input.PostID)
	if err != nil {
		return nil, err
	}
	if !post.Editable() {
		return nil, domain.Conflict("Only draft or scheduled posts can be edited")
	}

	now := s.now().UTC()
	if input.Content != nil {
		if err := domain.ValidatePostContent(*input.Content); err != nil {
			return nil, domain.InvalidRequest(err.Error())
		}
		post.Content = *input.Content
	}
	if input.Platforms != nil {
		platforms, err := normalizePlatforms(*input.Platforms)
		if err != nil {
			return nil, err
		}
		post.Platforms = platforms
	}
	rescheduled := false
	if input.ScheduledAt != nil {
		at := input.ScheduledAt.UTC()
		if !at.After(now) {
			return nil, domain.InvalidRequest("scheduled_at must be in the future")
		}
		post.ScheduledAt = &at
		rescheduled = true
		post.Status = domain.PostScheduled
	}
	post.UpdatedAt = now

	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, notFound(err, msgPostNotFound)
	}
	if rescheduled {
		s.publish(post, domain.EventPostScheduled)
	}
	return post, nil
}

// Publish 立即发布帖子
func (s *PostService) Publish(ctx context.Context, appID, postID string) (*domain.Post, error) {
	post, err := s.Get(ctx, appID, postID)
	if err != nil {
		return nil, err
	}
	if post.Status == domain.PostPublished {
		return nil, domain.Conflict("Post is already published")
	}

	now := s.now().UTC()
	post.Status = domain.PostPublished
	post.PublishedAt = &now
	post.UpdatedAt = now

	if err := s.store.UpdatePost(ctx, post); err != nil {
		return nil, notFound(err, msgPostNotFound)
	}
	s.publish(post, domain.EventPostPublished)
	return post, nil
}

// Delete 删除帖子
func (s *PostService) Delete(ctx context.Context, appID, postID string) error {
	if err := s.store.DeletePost(ctx, appID, postID); err != nil {
		return notFound(err, msgPostNotFound)
	}
	return nil
}

// Stats 按状态统计帖子数量
func (s *PostService) Stats(ctx context.Context, appID string) (domain.PostStats, error) {
	return s.store.CountPostsByStatus(ctx, appID)
}

func (s *PostService) publish(post *domain.Post, event domain.WebhookEventType) {
	if s.events == nil {
		return
	}
	if err := s.events.Dispatch(post.AppID, event, post); err != nil {
		s.log.Warn("failed to dispatch post event",
			zap.String("event", string(event)),
			zap.String("post_id", post.ID),
			zap.Error(err),
		)
	}
}

func normalizePlatforms(values []string) ([]string, error) {
	if len(values) > maxPlatforms {
		return nil, domain.InvalidRequest("at most 10 platforms are allowed")
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		p := strings.ToLower(strings.TrimSpace(v))
		if p == "" {
			return nil, domain.InvalidRequest("platforms must not contain empty values")
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
