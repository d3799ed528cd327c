package postgres

import (
	"context"

	"publier/backend/internal/domain"
)

// ========== Post Repository ==========

func (s *Store) CreatePost(ctx context.Context, post *domain.Post) error {
	return translate(s.db.WithContext(ctx).Create(post).Error)
}

func (s *Store) GetPost(ctx context.Context, appID, postID string) (*domain.Post, error) {
	var post domain.Post
	if err := s.db.WithContext(ctx).Where("id = ? AND app_id = ?", postID, appID).First(&post).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

// ListPosts 按创建时间倒序分页；游标不存在时返回 ErrNotFound
func (s *Store) ListPosts(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error) {
	q := s.db.WithContext(ctx).Where("app_id = ?", filter.AppID)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	if filter.Cursor != "" {
		cursor, err := s.GetPost(ctx, filter.AppID, filter.Cursor)
		if err != nil {
			return nil, err
		}
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var posts []domain.Post
	err := q.Order("created_at DESC, id DESC").Find(&posts).Error
	return posts, err
}

func (s *Store) UpdatePost(ctx context.Context, post *domain.Post) error {
	return affected(s.db.WithContext(ctx).Model(&domain.Post{}).
		Where("id = ? AND app_id = ?", post.ID, post.AppID).
		Select("content", "platforms", "status", "metadata", "scheduled_at", "published_at", "updated_at").
		Updates(post))
}

func (s *Store) DeletePost(ctx context.Context, appID, postID string) error {
	return affected(s.db.WithContext(ctx).
		Where("id = ? AND app_id = ?", postID, appID).
		Delete(&domain.Post{}))
}

// CountPostsByStatus 统计应用下各状态的帖子数量
func (s *Store) CountPostsByStatus(ctx context.Context, appID string) (domain.PostStats, error) {
	var rows []struct {
		Status domain.PostStatus
		Count  int
	}
	err := s.db.WithContext(ctx).Model(&domain.Post{}).
		Select("status, COUNT(*) AS count").
		Where("app_id = ?", appID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return domain.PostStats{}, err
	}

	var stats domain.PostStats
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case domain.PostDraft:
			stats.Draft = row.Count
		case domain.PostScheduled:
			stats.Scheduled = row.Count
		case domain.PostPublished:
			stats.Published = row.Count
		case domain.PostFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}
