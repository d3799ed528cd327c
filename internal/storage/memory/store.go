package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

// Store 使用内存保存全部业务数据，主要用于开发验证和测试。
type Store struct {
	mu sync.RWMutex

	users   map[string]*domain.User // userID -> user
	byEmail map[string]string       // email -> userID

	sessions      map[string]*domain.Session // sessionID -> session
	sessionByHash map[string]string          // tokenHash -> sessionID

	verifications      map[string]*domain.EmailVerificationToken // tokenHash -> token
	verificationByUser map[string]string                         // userID -> tokenHash

	apps map[string]*domain.App // appID -> app

	apiKeys   map[string]*domain.APIKey // keyID -> key
	keyByHash map[string]string         // keyHash -> keyID

	webhooks   map[string]*domain.Webhook         // webhookID -> webhook
	deliveries map[string]*domain.WebhookDelivery // deliveryID -> delivery

	posts map[string]*domain.Post // postID -> post
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:              make(map[string]*domain.User),
		byEmail:            make(map[string]string),
		sessions:           make(map[string]*domain.Session),
		sessionByHash:      make(map[string]string),
		verifications:      make(map[string]*domain.EmailVerificationToken),
		verificationByUser: make(map[string]string),
		apps:               make(map[string]*domain.App),
		apiKeys:            make(map[string]*domain.APIKey),
		keyByHash:          make(map[string]string),
		webhooks:           make(map[string]*domain.Webhook),
		deliveries:         make(map[string]*domain.WebhookDelivery),
		posts:              make(map[string]*domain.Post),
	}
}

// Health 内存存储始终可用
func (s *Store) Health(context.Context) error { return nil }

// Close 内存存储无需释放资源
func (s *Store) Close() error { return nil }

// CreateUser 创建用户，邮箱重复时返回 ErrConflict
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := s.byEmail[email]; exists {
		return storage.ErrConflict
	}
	u := *user
	s.users[u.ID] = &u
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *s.users[id]
	return &out, nil
}

func (s *Store) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	t := at
	u.LastLoginAt = &t
	return nil
}

// CreateSession 保存会话
func (s *Store) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessionByHash[session.TokenHash]; exists {
		return storage.ErrConflict
	}
	sess := *session
	s.sessions[sess.ID] = &sess
	s.sessionByHash[sess.TokenHash] = sess.ID
	return nil
}

func (s *Store) GetSessionByHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.sessionByHash[tokenHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *s.sessions[id]
	return &out, nil
}

func (s *Store) TouchSession(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	t := at
	sess.LastUsedAt = &t
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.sessionByHash, sess.TokenHash)
	delete(s.sessions, id)
	return nil
}

// DeleteExpiredSessions 删除过期会话，返回删除数量
func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, sess := range s.sessions {
		if sess.IsExpired(now) {
			delete(s.sessionByHash, sess.TokenHash)
			delete(s.sessions, id)
			count++
		}
	}
	return count, nil
}

// CreateAPIKey 保存 API Key，摘要重复时返回 ErrConflict
func (s *Store) CreateAPIKey(_ context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keyByHash[key.KeyHash]; exists {
		return storage.ErrConflict
	}
	k := cloneAPIKey(key)
	s.apiKeys[k.ID] = k
	s.keyByHash[k.KeyHash] = k.ID
	return nil
}

func (s *Store) GetAPIKeyByHash(_ context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.keyByHash[keyHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneAPIKey(s.apiKeys[id]), nil
}

func (s *Store) ListAPIKeys(_ context.Context, appID string) ([]domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.APIKey, 0)
	for _, k := range s.apiKeys {
		if k.AppID == appID {
			out = append(out, *cloneAPIKey(k))
		}
	}
	sortByCreatedDesc(out, func(k domain.APIKey) (time.Time, string) { return k.CreatedAt, k.ID })
	return out, nil
}

func (s *Store) RevokeAPIKey(_ context.Context, appID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[keyID]
	if !ok || k.AppID != appID {
		return storage.ErrNotFound
	}
	k.Revoked = true
	return nil
}

func (s *Store) DeleteAPIKey(_ context.Context, appID, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[keyID]
	if !ok || k.AppID != appID {
		return storage.ErrNotFound
	}
	delete(s.keyByHash, k.KeyHash)
	delete(s.apiKeys, keyID)
	return nil
}

func (s *Store) TouchAPIKey(_ context.Context, keyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.apiKeys[keyID]
	if !ok {
		return storage.ErrNotFound
	}
	t := at
	k.LastUsedAt = &t
	return nil
}

func cloneAPIKey(k *domain.APIKey) *domain.APIKey {
	out := *k
	out.Scopes = append([]domain.Scope(nil), k.Scopes...)
	return &out
}
