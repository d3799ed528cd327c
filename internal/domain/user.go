package domain

import "time"

// User 开发者账号
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email        string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Name         string     `json:"name" gorm:"type:varchar(100)"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255);not null"` // 不返回给前端
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`

	EmailVerified   bool       `json:"email_verified" gorm:"not null;default:false"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
}

// EmailVerificationToken 邮箱验证令牌
//
// 每个用户最多一条，重新发送时替换；验证成功后删除，令牌只能使用一次。
type EmailVerificationToken struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	TokenHash string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired 判断令牌是否过期
func (t *EmailVerificationToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Session 开发者登录会话
//
// 令牌原文只在登录时返回一次，存储层只保存其 SHA-256 摘要。
type Session struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string     `json:"user_id" gorm:"type:varchar(36);index;not null"`
	TokenHash  string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	IPAddress  string     `json:"ip_address,omitempty" gorm:"type:varchar(64)"`
	UserAgent  string     `json:"user_agent,omitempty" gorm:"type:varchar(255)"`
	ExpiresAt  time.Time  `json:"expires_at" gorm:"index;not null"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// IsExpired 判断会话是否过期
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
