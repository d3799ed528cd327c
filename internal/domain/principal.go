package domain

import "time"

// CredentialClass 凭证类别
type CredentialClass string

const (
	CredentialAPIKey  CredentialClass = "api_key"
	CredentialSession CredentialClass = "session"
)

// Credential 凭证存储解析出的统一视图
//
// API Key 的 OwnerID 是应用 ID，会话的 OwnerID 是用户 ID。
type Credential struct {
	ID          string
	OwnerID     string
	Class       CredentialClass
	Environment Environment
	SecretHash  string
	Scopes      []Scope
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	Revoked     bool
}

// IsExpired 判断凭证是否过期
func (c *Credential) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Principal 构造附加到请求上下文的身份
func (c *Credential) Principal() Principal {
	if c.Class == CredentialSession {
		return &SessionPrincipal{SessionID: c.ID, UserID: c.OwnerID}
	}
	scopes := make([]Scope, len(c.Scopes))
	copy(scopes, c.Scopes)
	return &APIKeyPrincipal{
		KeyID:       c.ID,
		AppID:       c.OwnerID,
		Scopes:      scopes,
		Environment: c.Environment,
	}
}

// Principal 已认证身份
//
// 只有 *APIKeyPrincipal 与 *SessionPrincipal 两种实现。
type Principal interface {
	// Key 限流与幂等指纹使用的身份键
	Key() string
	// Owner 租户 ID
	Owner() string
	// Allows 判断是否满足路由要求的权限
	Allows(scope Scope) bool
	Class() CredentialClass

	sealed()
}

// APIKeyPrincipal 由 API Key 认证的程序化调用方
type APIKeyPrincipal struct {
	KeyID       string
	AppID       string
	Scopes      []Scope
	Environment Environment
}

func (p *APIKeyPrincipal) Key() string { return "key:" + p.KeyID }
func (p *APIKeyPrincipal) Owner() string { return p.AppID }
func (p *APIKeyPrincipal) Class() CredentialClass { return CredentialAPIKey }
func (p *APIKeyPrincipal) sealed() {}

func (p *APIKeyPrincipal) Allows(scope Scope) bool {
	for _, s := range p.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// SessionPrincipal 由登录会话认证的开发者，拥有全部权限
type SessionPrincipal struct {
	SessionID string
	UserID    string
}

func (p *SessionPrincipal) Key() string { return "session:" + p.SessionID }
func (p *SessionPrincipal) Owner() string { return p.UserID }
func (p *SessionPrincipal) Class() CredentialClass { return CredentialSession }
func (p *SessionPrincipal) Allows(Scope) bool { return true }
func (p *SessionPrincipal) sealed() {}
