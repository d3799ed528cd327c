package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/ratelimit"
)

// 限流响应头
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// Admitter 限流判断，由 ratelimit.Limiter 实现
type Admitter interface {
	Admit(ctx context.Context, principalKey string) ratelimit.Decision
}

// RateLimit 按已认证主体限流，必须放在认证中间件之后
//
// 计数存储不可用时放行，只写出 X-RateLimit-Limit。
func RateLimit(limiter Admitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		d := limiter.Admit(c.Request.Context(), principal.Key())
		c.Header(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
		if d.Degraded {
			c.Next()
			return
		}

		c.Header(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
		c.Header(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			seconds := int(d.RetryAfter / time.Second)
			c.Header(HeaderRetryAfter, strconv.Itoa(seconds))
			WriteError(c, domain.RateLimited(fmt.Sprintf("Rate limit exceeded. Retry after %d seconds", seconds)))
			return
		}

		c.Next()
	}
}
