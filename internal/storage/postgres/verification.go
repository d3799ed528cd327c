package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"publier/backend/internal/domain"
)

// ReplaceVerificationToken 删除用户已有的令牌后保存新令牌
func (s *Store) ReplaceVerificationToken(ctx context.Context, token *domain.EmailVerificationToken) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", token.UserID).Delete(&domain.EmailVerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
	return translate(err)
}

// ConsumeVerificationToken 删除令牌并标记邮箱已验证
//
// 删除成功的调用方才会写入用户状态，并发使用同一令牌时只有一方成功。
func (s *Store) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token domain.EmailVerificationToken
		if err := tx.Where("token_hash = ? AND expires_at > ?", tokenHash, now).First(&token).Error; err != nil {
			return err
		}
		if err := affected(tx.Where("id = ?", token.ID).Delete(&domain.EmailVerificationToken{})); err != nil {
			return err
		}
		if err := affected(tx.Model(&domain.User{}).
			Where("id = ?", token.UserID).
			Updates(map[string]interface{}{
				"email_verified":    true,
				"email_verified_at": now,
				"updated_at":        now,
			})); err != nil {
			return err
		}
		userID = token.UserID
		return nil
	})
	if err != nil {
		return "", translate(err)
	}
	return userID, nil
}

// DeleteExpiredVerificationTokens 删除过期令牌，返回删除数量
func (s *Store) DeleteExpiredVerificationTokens(ctx context.Context, now time.Time) (int, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.EmailVerificationToken{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}
