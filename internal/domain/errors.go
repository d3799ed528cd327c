package domain

import (
	"errors"
	"net/http"
)

// ErrorKind 机器可读的错误码
type ErrorKind string

const (
	KindUnauthorized   ErrorKind = "UNAUTHORIZED"
	KindForbidden      ErrorKind = "FORBIDDEN"
	KindRateLimited    ErrorKind = "RATE_LIMITED"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindConflict       ErrorKind = "CONFLICT"
	KindInvalidRequest ErrorKind = "INVALID_REQUEST"
	KindInternal       ErrorKind = "INTERNAL_ERROR"
)

var kindStatus = map[ErrorKind]int{
	KindUnauthorized:   http.StatusUnauthorized,
	KindForbidden:      http.StatusForbidden,
	KindRateLimited:    http.StatusTooManyRequests,
	KindNotFound:       http.StatusNotFound,
	KindConflict:       http.StatusConflict,
	KindInvalidRequest: http.StatusBadRequest,
	KindInternal:       http.StatusInternalServerError,
}

// APIError 携带 HTTP 状态码和错误码的类型化错误
type APIError struct {
	Kind    ErrorKind
	Message string
}

func (e *APIError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Status 对应的 HTTP 状态码
func (e *APIError) Status() int {
	if status, ok := kindStatus[e.Kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// NewAPIError 创建类型化错误
func NewAPIError(kind ErrorKind, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}

func Unauthorized(message string) *APIError { return NewAPIError(KindUnauthorized, message) }
func Forbidden(message string) *APIError { return NewAPIError(KindForbidden, message) }
func RateLimited(message string) *APIError { return NewAPIError(KindRateLimited, message) }
func NotFound(message string) *APIError { return NewAPIError(KindNotFound, message) }
func Conflict(message string) *APIError { return NewAPIError(KindConflict, message) }
func InvalidRequest(message string) *APIError { return NewAPIError(KindInvalidRequest, message) }

// InternalMessage 内部错误对外统一展示的文案
const InternalMessage = "An unexpected error occurred"

// AsAPIError 将任意错误转换为可渲染的类型化错误
//
// 非 APIError 一律视为内部错误，不暴露原始信息。
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewAPIError(KindInternal, InternalMessage)
}
