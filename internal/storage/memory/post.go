package memory

import (
	"context"
	"time"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

func (s *Store) CreatePost(_ context.Context, post *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; exists {
		return storage.ErrConflict
	}
	s.posts[post.ID] = clonePost(post)
	return nil
}

func (s *Store) GetPost(_ context.Context, appID, postID string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[postID]
	if !ok || p.AppID != appID {
		return nil, storage.ErrNotFound
	}
	return clonePost(p), nil
}

// ListPosts 按创建时间倒序分页；游标不存在时返回 ErrNotFound
func (s *Store) ListPosts(_ context.Context, filter domain.PostFilter) ([]domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Post, 0)
	for _, p := range s.posts {
		if p.AppID != filter.AppID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		all = append(all, *clonePost(p))
	}
	sortByCreatedDesc(all, func(p domain.Post) (time.Time, string) { return p.CreatedAt, p.ID })

	start := 0
	if filter.Cursor != "" {
		cursor, ok := s.posts[filter.Cursor]
		if !ok || cursor.AppID != filter.AppID {
			return nil, storage.ErrNotFound
		}
		start = len(all)
		for i, p := range all {
			if p.CreatedAt.Before(cursor.CreatedAt) ||
				(p.CreatedAt.Equal(cursor.CreatedAt) && p.ID < cursor.ID) {
				start = i
				break
			}
		}
	}

	end := len(all)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return all[start:end], nil
}

func (s *Store) UpdatePost(_ context.Context, post *domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.posts[post.ID]
	if !ok || existing.AppID != post.AppID {
		return storage.ErrNotFound
	}
	s.posts[post.ID] = clonePost(post)
	return nil
}

func (s *Store) DeletePost(_ context.Context, appID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[postID]
	if !ok || p.AppID != appID {
		return storage.ErrNotFound
	}
	delete(s.posts, postID)
	return nil
}

// CountPostsByStatus 统计应用下各状态的帖子数量
func (s *Store) CountPostsByStatus(_ context.Context, appID string) (domain.PostStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.PostStats
	for _, p := range s.posts {
		if p.AppID != appID {
			continue
		}
		stats.Total++
		switch p.Status {
		case domain.PostDraft:
			stats.Draft++
		case domain.PostScheduled:
			stats.Scheduled++
		case domain.PostPublished:
			stats.Published++
		case domain.PostFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func clonePost(p *domain.Post) *domain.Post {
	out := *p
	out.Platforms = append([]string(nil), p.Platforms...)
	out.Metadata = append([]byte(nil), p.Metadata...)
	return &out
}
