package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

const (
	msgAppNotFound  = "App not found"
	msgAppNameTaken = "An app with this name already exists"
)

// AppService 应用业务逻辑服务
type AppService struct {
	store storage.AppRepository
	log   *zap.Logger
	now   func() time.Time
}

// NewAppService 创建应用服务
func NewAppService(store storage.AppRepository, log *zap.Logger) *AppService {
	return &AppService{store: store, log: log, now: time.Now}
}

// CreateAppInput 创建应用的输入参数
type CreateAppInput struct {
	UserID      string
	Name        string
	Description string
	Environment domain.Environment
}

// UpdateAppInput 更新应用的输入参数，nil 字段保持不变
type UpdateAppInput struct {
	UserID      string
	AppID       string
	Name        *string
	Description *string
	Environment *domain.Environment
}

// Create 创建应用
//
// 参数:
//   - input: 创建参数，Environment 为空时默认 development
//
// 返回值:
//   - *domain.App: 创建的应用
//   - error: 名称不合法返回 INVALID_REQUEST，同一用户下重名返回 CONFLICT
func (s *AppService) Create(ctx context.Context, input CreateAppInput) (*domain.App, error) {
	name := strings.TrimSpace(input.Name)
	if err := domain.ValidateName(name); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}

	env := input.Environment
	if env == "" {
		env = domain.EnvironmentDevelopment
	}
	if !env.Valid() {
		return nil, domain.InvalidRequest("environment must be 'development' or 'production'")
	}

	now := s.now().UTC()
	app := &domain.App{
		ID:          uuid.New().String(),
		UserID:      input.UserID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Environment: env,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateApp(ctx, app); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, domain.Conflict(msgAppNameTaken)
		}
		return nil, err
	}

	s.log.Info("app created", zap.String("app_id", app.ID), zap.String("user_id", app.UserID))
	return app, nil
}

// List 列出用户的应用
func (s *AppService) List(ctx context.Context, userID string) ([]domain.App, error) {
	return s.store.ListApps(ctx, userID)
}

// Get 获取用户的应用，不属于该用户时与不存在一样返回 NOT_FOUND
func (s *AppService) Get(ctx context.Context, userID, appID string) (*domain.App, error) {
	app, err := s.store.GetApp(ctx, userID, appID)
	if err != nil {
		return nil, notFound(err, msgAppNotFound)
	}
	return app, nil
}

// Update 更新应用名称、描述或环境
func (s *AppService) Update(ctx context.Context, input UpdateAppInput) (*domain.App, error) {
	if input.Name == nil && input.Description == nil && input.Environment == nil {
		return nil, domain.InvalidRequest("At least one field must be provided: name, description, environment")
	}

	app, err := s.Get(ctx, input.UserID, input.AppID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if err := domain.ValidateName(name); err != nil {
			return nil, domain.InvalidRequest(err.Error())
		}
		app.Name = name
	}
	if input.Description != nil {
		app.Description = strings.TrimSpace(*input.Description)
	}
	if input.Environment != nil {
		if !input.Environment.Valid() {
			return nil, domain.InvalidRequest("environment must be 'development' or 'production'")
		}
		app.Environment = *input.Environment
	}
	app.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateApp(ctx, app); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, domain.Conflict(msgAppNameTaken)
		}
		return nil, notFound(err, msgAppNotFound)
	}
	return app, nil
}

// Delete 删除应用及其下属资源
func (s *AppService) Delete(ctx context.Context, userID, appID string) error {
	if err := s.store.DeleteApp(ctx, userID, appID); err != nil {
		return notFound(err, msgAppNotFound)
	}
	s.log.Info("app deleted", zap.String("app_id", appID), zap.String("user_id", userID))
	return nil
}

// notFound 将存储层的 ErrNotFound 转换为对外的 NOT_FOUND
func notFound(err error, message string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return domain.NotFound(message)
	}
	return err
}
