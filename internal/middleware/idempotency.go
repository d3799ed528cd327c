package middleware

import (
	"bytes"
	"fmt"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
	"publier/backend/internal/idempotency"
)

const (
	// HeaderIdempotencyKey 客户端提供的幂等键
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed 标记响应来自幂等缓存
	HeaderIdempotentReplayed = "Idempotent-Replayed"
)

// capturingWriter 在写出响应的同时记录响应体
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency 幂等键响应缓存，必须放在认证中间件之后
//
// 命中时原样回放状态码、Content-Type 和响应体，处理器不会执行。
// 未命中时替换 c.Writer 记录响应，处理链结束后尽力写入缓存。
// 并发的重复请求可能都会执行处理器，缓存只保留先写入的结果。
func Idempotency(guard *idempotency.Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if !guard.ValidKey(key) {
			WriteError(c, domain.InvalidRequest(fmt.Sprintf("Idempotency-Key must be at most %d characters", guard.MaxKeyLength())))
			return
		}

		principal, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		fingerprint := idempotency.Fingerprint(principal.Key(), c.Request.Method, c.Request.URL.RequestURI(), key)

		if rec := guard.Lookup(ctx, fingerprint); rec != nil {
			c.Header(HeaderIdempotentReplayed, "true")
			c.Data(rec.StatusCode, rec.ContentType, rec.Body)
			c.Abort()
			return
		}

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()
		c.Writer = w.ResponseWriter

		guard.Save(ctx, fingerprint, w.Status(), w.Header().Get("Content-Type"), w.body.Bytes())
	}
}
