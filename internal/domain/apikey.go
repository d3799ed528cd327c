package domain

import (
	"time"
)

// Scope API Key 权限范围
type Scope string

const (
	ScopePostsRead     Scope = "posts:read"
	ScopePostsWrite    Scope = "posts:write"
	ScopeAnalyticsRead Scope = "analytics:read"
)

// AllScopes 全部已知权限范围，也是创建 API Key 时的默认值
var AllScopes = []Scope{ScopePostsRead, ScopePostsWrite, ScopeAnalyticsRead}

// ParseScope 校验并转换权限范围字符串
func ParseScope(s string) (Scope, bool) {
	for _, scope := range AllScopes {
		if string(scope) == s {
			return scope, true
		}
	}
	return "", false
}

// APIKey API密钥实体
//
// 只保存密钥摘要和展示用前缀，原文在签发时返回一次。
// Scopes 在签发后不可修改。
type APIKey struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AppID       string      `json:"app_id" gorm:"type:varchar(36);index;not null"`
	Name        string      `json:"name" gorm:"type:varchar(100);not null"`
	KeyHash     string      `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	KeyPrefix   string      `json:"key_prefix" gorm:"type:varchar(20);not null"`
	Environment Environment `json:"environment" gorm:"type:varchar(20);not null"`
	Scopes      []Scope     `json:"scopes" gorm:"serializer:json;type:json"`
	Revoked     bool        `json:"revoked" gorm:"not null;default:false"`
	ExpiresAt   *time.Time  `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time  `json:"last_used_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// IsExpired 判断 API Key 是否过期
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// HasScope 判断是否拥有指定权限
func (k *APIKey) HasScope(scope Scope) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
