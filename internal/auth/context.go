package auth

import (
	"context"

	"publier/backend/internal/domain"
)

type principalKey struct{}

// WithPrincipal 将已认证身份写入请求上下文
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom 读取请求上下文中的身份
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(domain.Principal)
	return p, ok && p != nil
}

// APIKeyFrom 读取 API Key 身份，会话身份返回 false
func APIKeyFrom(ctx context.Context) (*domain.APIKeyPrincipal, bool) {
	p, ok := ctx.Value(principalKey{}).(*domain.APIKeyPrincipal)
	return p, ok && p != nil
}

// SessionFrom 读取会话身份，API Key 身份返回 false
func SessionFrom(ctx context.Context) (*domain.SessionPrincipal, bool) {
	p, ok := ctx.Value(principalKey{}).(*domain.SessionPrincipal)
	return p, ok && p != nil
}
