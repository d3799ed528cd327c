package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/monitoring"
	"publier/backend/internal/storage"
)

// CredentialResolver 认证中间件依赖的凭证存储，由 auth.CredentialStore 实现
type CredentialResolver interface {
	Resolve(ctx context.Context, raw string) (*domain.Credential, error)
	Touch(cred *domain.Credential)
}

const (
	msgMissingToken   = "Missing or invalid Authorization header"
	msgInvalidToken   = "Invalid or revoked credentials"
	msgExpiredToken   = "Credentials have expired"
	msgTestKeyBlocked = "Test API keys are not accepted by this server"
	msgNeedAPIKey     = "This endpoint requires an API key"
	msgNeedSession    = "This endpoint requires a developer session"
)

// Authenticator 凭证认证中间件工厂
//
// 每次请求都查询存储，吊销与删除在下一次请求时生效。
type Authenticator struct {
	creds         CredentialResolver
	allowTestKeys bool
	log           *zap.Logger
	metrics       *monitoring.Metrics
	now           func() time.Time
}

// NewAuthenticator 创建认证中间件工厂
func NewAuthenticator(creds CredentialResolver, allowTestKeys bool, log *zap.Logger, metrics *monitoring.Metrics) *Authenticator {
	return &Authenticator{
		creds:         creds,
		allowTestKeys: allowTestKeys,
		log:           log,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Authenticate 要求 API Key 且具备指定权限
func (a *Authenticator) Authenticate(scope domain.Scope) gin.HandlerFunc {
	return a.guard(domain.CredentialAPIKey, scope)
}

// RequireSession 要求开发者会话
func (a *Authenticator) RequireSession() gin.HandlerFunc {
	return a.guard(domain.CredentialSession, "")
}

func (a *Authenticator) guard(class domain.CredentialClass, scope domain.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			a.reject(c, "missing_token", domain.Unauthorized(msgMissingToken))
			return
		}

		format, err := auth.Classify(raw)
		if err != nil {
			a.reject(c, "malformed_token", domain.Unauthorized(msgInvalidToken))
			return
		}
		if format.Class != class {
			msg := msgNeedAPIKey
			if class == domain.CredentialSession {
				msg = msgNeedSession
			}
			a.reject(c, "wrong_credential_class", domain.Unauthorized(msg))
			return
		}
		if class == domain.CredentialAPIKey && format.Environment == domain.EnvironmentDevelopment && !a.allowTestKeys {
			a.reject(c, "test_key_disabled", domain.Unauthorized(msgTestKeyBlocked))
			return
		}

		ctx := c.Request.Context()
		cred, err := a.creds.Resolve(ctx, raw)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				a.reject(c, "unknown_credential", domain.Unauthorized(msgInvalidToken))
				return
			}
			a.metrics.RecordAuthFailure("store_error")
			WriteError(c, err)
			return
		}

		if cred.IsExpired(a.now()) {
			a.reject(c, "expired", domain.Unauthorized(msgExpiredToken))
			return
		}

		principal := cred.Principal()
		if scope != "" && !principal.Allows(scope) {
			a.log.Info("insufficient scope",
				zap.String("credential_id", cred.ID),
				zap.String("required_scope", string(scope)),
				zap.String("request_id", GetRequestID(c)),
			)
			a.reject(c, "insufficient_scope", domain.Forbidden("API key lacks required scope: "+string(scope)))
			return
		}

		c.Request = c.Request.WithContext(auth.WithPrincipal(ctx, principal))
		c.Set(principalLogKey, principal.Key())
		a.creds.Touch(cred)

		c.Next()
	}
}

func (a *Authenticator) reject(c *gin.Context, reason string, err *domain.APIError) {
	a.metrics.RecordAuthFailure(reason)
	WriteError(c, err)
}

// bearerToken 解析 Authorization: Bearer <token>
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
