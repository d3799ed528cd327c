package httptransport

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"publier/backend/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidJSON      = "Invalid JSON body"
	MsgRequestBodyEmpty = "Request body is required"
	MsgBodyTooLarge     = "Request body too large"
)

var registerOnce sync.Once

// RegisterValidators 在 gin 的校验引擎上注册自定义规则
//
//   - scope: 已知的 API Key 权限范围
//   - webhook_event: 已知的 Webhook 事件类型
//   - https_url: 合法的 https 地址
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("scope", func(fl validator.FieldLevel) bool {
			_, ok := domain.ParseScope(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("webhook_event", func(fl validator.FieldLevel) bool {
			_, ok := domain.ParseEventType(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("https_url", func(fl validator.FieldLevel) bool {
			return domain.ValidateWebhookURL(fl.Field().String()) == nil
		})
	})
}

// bindJSON 解析请求体，失败时直接写出 INVALID_REQUEST 并返回 false
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		Fail(c, bindError(err))
		return false
	}
	return true
}

// bindError 将解析与校验错误转换为对外的错误信息
func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.InvalidRequest(MsgBodyTooLarge)
	}
	if errors.Is(err, io.EOF) {
		return domain.InvalidRequest(MsgRequestBodyEmpty)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.InvalidRequest(validationMessage(verrs[0]))
	}
	return domain.InvalidRequest(MsgInvalidJSON)
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "scope":
		return fmt.Sprintf("Invalid scope %q. Valid scopes: %s", fe.Value(), joinScopes())
	case "webhook_event":
		return fmt.Sprintf("Invalid event %q. Valid events: %s", fe.Value(), joinEvents())
	case "https_url":
		return fmt.Sprintf("%s must be a valid https URL", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

func joinScopes() string {
	parts := make([]string, 0, len(domain.AllScopes))
	for _, s := range domain.AllScopes {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, ", ")
}

func joinEvents() string {
	parts := make([]string, 0, len(domain.AllEventTypes))
	for _, e := range domain.AllEventTypes {
		parts = append(parts, string(e))
	}
	return strings.Join(parts, ", ")
}
