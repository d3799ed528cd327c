package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/domain"
)

// DefaultBodyLimit 默认请求体大小限制
const DefaultBodyLimit = 1 << 20 // 1MB

// BodySizeLimit 限制请求体大小的中间件
//
// Content-Length 已超限时直接拒绝；未声明长度的请求由 MaxBytesReader 在读取时截断，
// 处理器解码失败后会得到 *http.MaxBytesError。
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultBodyLimit
	}
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			WriteError(c, domain.InvalidRequest(fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytes)))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Header("X-Max-Body-Size", strconv.FormatInt(maxBytes, 10))

		c.Next()
	}
}
