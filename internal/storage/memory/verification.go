package memory

import (
	"context"
	"time"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

// ReplaceVerificationToken 保存新令牌，同一用户的旧令牌立即失效
func (s *Store) ReplaceVerificationToken(_ context.Context, token *domain.EmailVerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token.UserID]; !ok {
		return storage.ErrNotFound
	}
	if _, exists := s.verifications[token.TokenHash]; exists {
		return storage.ErrConflict
	}
	if old, ok := s.verificationByUser[token.UserID]; ok {
		delete(s.verifications, old)
	}
	t := *token
	s.verifications[t.TokenHash] = &t
	s.verificationByUser[t.UserID] = t.TokenHash
	return nil
}

// ConsumeVerificationToken 删除令牌并标记邮箱已验证
func (s *Store) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.verifications[tokenHash]
	if !ok || t.IsExpired(now) {
		return "", storage.ErrNotFound
	}
	u, ok := s.users[t.UserID]
	if !ok {
		return "", storage.ErrNotFound
	}

	verifiedAt := now
	u.EmailVerified = true
	u.EmailVerifiedAt = &verifiedAt
	u.UpdatedAt = now

	delete(s.verifications, tokenHash)
	delete(s.verificationByUser, t.UserID)
	return t.UserID, nil
}

// DeleteExpiredVerificationTokens 删除过期令牌，返回删除数量
func (s *Store) DeleteExpiredVerificationTokens(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for hash, t := range s.verifications {
		if t.IsExpired(now) {
			delete(s.verifications, hash)
			delete(s.verificationByUser, t.UserID)
			count++
		}
	}
	return count, nil
}
