package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

// CreateApp 创建应用，同一用户下名称（不区分大小写）重复时返回 ErrConflict
func (s *Store) CreateApp(_ context.Context, app *domain.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.appNameTakenLocked(app.UserID, app.Name, "") {
		return storage.ErrConflict
	}
	a := *app
	s.apps[a.ID] = &a
	return nil
}

func (s *Store) GetApp(_ context.Context, userID, appID string) (*domain.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.apps[appID]
	if !ok || a.UserID != userID {
		return nil, storage.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (s *Store) ListApps(_ context.Context, userID string) ([]domain.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.App, 0)
	for _, a := range s.apps {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sortByCreatedDesc(out, func(a domain.App) (time.Time, string) { return a.CreatedAt, a.ID })
	return out, nil
}

func (s *Store) UpdateApp(_ context.Context, app *domain.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.apps[app.ID]
	if !ok || existing.UserID != app.UserID {
		return storage.ErrNotFound
	}
	if s.appNameTakenLocked(app.UserID, app.Name, app.ID) {
		return storage.ErrConflict
	}
	a := *app
	s.apps[a.ID] = &a
	return nil
}

// DeleteApp 删除应用并级联删除其下数据
func (s *Store) DeleteApp(_ context.Context, userID, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.apps[appID]
	if !ok || a.UserID != userID {
		return storage.ErrNotFound
	}

	for id, k := range s.apiKeys {
		if k.AppID == appID {
			delete(s.keyByHash, k.KeyHash)
			delete(s.apiKeys, id)
		}
	}
	for id, w := range s.webhooks {
		if w.AppID == appID {
			s.deleteWebhookLocked(id)
		}
	}
	for id, p := range s.posts {
		if p.AppID == appID {
			delete(s.posts, id)
		}
	}
	delete(s.apps, appID)
	return nil
}

func (s *Store) appNameTakenLocked(userID, name, exceptID string) bool {
	for _, a := range s.apps {
		if a.UserID == userID && a.ID != exceptID && strings.EqualFold(a.Name, name) {
			return true
		}
	}
	return false
}

// sortByCreatedDesc 按创建时间倒序，时间相同按 ID 倒序
func sortByCreatedDesc[T any](items []T, key func(T) (time.Time, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
}
