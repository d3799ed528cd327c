package postgres

import (
	"context"

	"gorm.io/gorm"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

// nameTaken 同一用户下应用名不区分大小写唯一
func nameTaken(tx *gorm.DB, userID, name, exceptID string) (bool, error) {
	var count int64
	err := tx.Model(&domain.App{}).
		Where("user_id = ? AND LOWER(name) = LOWER(?) AND id <> ?", userID, name, exceptID).
		Count(&count).Error
	return count > 0, err
}

// CreateApp 创建应用，同名时返回 ErrConflict
func (s *Store) CreateApp(ctx context.Context, app *domain.App) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, app.UserID, app.Name, app.ID)
		if err != nil {
			return err
		}
		if taken {
			return storage.ErrConflict
		}
		return translate(tx.Create(app).Error)
	})
}

func (s *Store) GetApp(ctx context.Context, userID, appID string) (*domain.App, error) {
	var app domain.App
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", appID, userID).First(&app).Error; err != nil {
		return nil, translate(err)
	}
	return &app, nil
}

func (s *Store) ListApps(ctx context.Context, userID string) ([]domain.App, error) {
	var apps []domain.App
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&apps).Error
	return apps, err
}

func (s *Store) UpdateApp(ctx context.Context, app *domain.App) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := nameTaken(tx, app.UserID, app.Name, app.ID)
		if err != nil {
			return err
		}
		if taken {
			return storage.ErrConflict
		}
		return affected(tx.Model(&domain.App{}).
			Where("id = ? AND user_id = ?", app.ID, app.UserID).
			Updates(map[string]interface{}{
				"name":        app.Name,
				"description": app.Description,
				"environment": app.Environment,
				"updated_at":  app.UpdatedAt,
			}))
	})
}

// DeleteApp 删除应用及其 API Key、Webhook、投递记录和帖子
func (s *Store) DeleteApp(ctx context.Context, userID, appID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var app domain.App
		if err := tx.Where("id = ? AND user_id = ?", appID, userID).First(&app).Error; err != nil {
			return translate(err)
		}

		webhookIDs := tx.Model(&domain.Webhook{}).Select("id").Where("app_id = ?", appID)
		if err := tx.Where("webhook_id IN (?)", webhookIDs).Delete(&domain.WebhookDelivery{}).Error; err != nil {
			return err
		}
		for _, model := range []interface{}{&domain.Webhook{}, &domain.APIKey{}, &domain.Post{}} {
			if err := tx.Where("app_id = ?", appID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&app).Error
	})
}
