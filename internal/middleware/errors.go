package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"publier/backend/internal/domain"
)

// ErrorBody 统一错误响应体
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Code      domain.ErrorKind `json:"code"`
	Message   string           `json:"message"`
	RequestID string           `json:"request_id"`
}

// WriteError 渲染错误并中止处理链
//
// 非 APIError 统一渲染为 INTERNAL_ERROR，原始错误只进入 c.Errors 供日志记录。
func WriteError(c *gin.Context, err error) {
	apiErr := domain.AsAPIError(err)
	if apiErr.Kind == domain.KindInternal {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(apiErr.Status(), ErrorBody{
		Error: ErrorDetail{
			Code:      apiErr.Kind,
			Message:   apiErr.Message,
			RequestID: GetRequestID(c),
		},
	})
}

// ErrorHandler 渲染处理器留在 c.Errors 中但尚未写出的错误，并记录内部错误
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		for _, e := range c.Errors {
			if domain.AsAPIError(e.Err).Kind != domain.KindInternal {
				continue
			}
			log.Error("request failed",
				zap.String("request_id", GetRequestID(c)),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Error(e.Err),
			)
		}

		if !c.Writer.Written() {
			WriteError(c, c.Errors.Last().Err)
		}
	}
}
