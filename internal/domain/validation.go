package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong  = errors.New("password must be at most 128 characters")
	ErrInvalidName      = errors.New("name must be 1-100 characters")
	ErrInvalidContent   = errors.New("content must be 1-10000 characters")
	ErrInsecureURL      = errors.New("webhook url must use https")
	ErrInvalidURL       = errors.New("webhook url is invalid")
)

// 验证常量
const (
	MaxEmailLength    = 254
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxNameLength     = 100
	MaxContentLength  = 10000
	MaxURLLength      = 500
)

// 域名验证（支持子域名）
var domainRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// NormalizeEmail 统一邮箱大小写与空白
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail 验证邮箱地址
func ValidateEmail(email string) error {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return ErrInvalidEmail
	}
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || !domainRegex.MatchString(email[at+1:]) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword 验证密码长度
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidateName 验证应用、密钥等名称
func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n == 0 || n > MaxNameLength {
		return ErrInvalidName
	}
	return nil
}

// ValidatePostContent 验证帖子内容
func ValidatePostContent(content string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	if n == 0 || n > MaxContentLength {
		return ErrInvalidContent
	}
	return nil
}

// ValidateWebhookURL 验证订阅地址，只接受 https
func ValidateWebhookURL(raw string) error {
	if raw == "" || len(raw) > MaxURLLength {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ErrInvalidURL
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return ErrInsecureURL
	}
	if u.User != nil {
		return ErrInvalidURL
	}
	return nil
}

// ParseScopes 将字符串列表转换为权限范围，空列表返回全部权限
func ParseScopes(values []string) ([]Scope, error) {
	if len(values) == 0 {
		out := make([]Scope, len(AllScopes))
		copy(out, AllScopes)
		return out, nil
	}

	seen := make(map[Scope]bool, len(values))
	out := make([]Scope, 0, len(values))
	for _, v := range values {
		scope, ok := ParseScope(v)
		if !ok {
			return nil, fmt.Errorf("unknown scope %q", v)
		}
		if seen[scope] {
			continue
		}
		seen[scope] = true
		out = append(out, scope)
	}
	return out, nil
}

// ParseEventTypes 将字符串列表转换为事件类型，空列表表示订阅全部
func ParseEventTypes(values []string) ([]WebhookEventType, error) {
	seen := make(map[WebhookEventType]bool, len(values))
	out := make([]WebhookEventType, 0, len(values))
	for _, v := range values {
		event, ok := ParseEventType(v)
		if !ok {
			return nil, fmt.Errorf("unknown event type %q", v)
		}
		if seen[event] {
			continue
		}
		seen[event] = true
		out = append(out, event)
	}
	return out, nil
}
