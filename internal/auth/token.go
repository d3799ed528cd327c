package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"publier/backend/internal/domain"
)

// 令牌前缀，按凭证类别与环境区分
const (
	PrefixLiveKey       = "pub_live_"
	PrefixTestKey       = "pub_test_"
	PrefixSession       = "pub_session_"
	PrefixWebhookSecret = "whsec_"
	PrefixVerification  = "pub_verify_"
)

const (
	apiKeyEntropyBytes  = 24
	sessionEntropyBytes = 32
	secretEntropyBytes  = 24
	verifyEntropyBytes  = 32

	// KeyPrefixLength 列表中展示的密钥前缀长度
	KeyPrefixLength = 16
	keyPreviewMask  = "XXXXX"
)

// ErrMalformedToken 令牌格式不属于任何已知凭证类别
var ErrMalformedToken = errors.New("malformed token")

var (
	apiKeyBodyLength  = base64.RawURLEncoding.EncodedLen(apiKeyEntropyBytes)
	sessionBodyLength = base64.RawURLEncoding.EncodedLen(sessionEntropyBytes)
)

// TokenFormat 由前缀推断出的凭证类别与环境
type TokenFormat struct {
	Class       domain.CredentialClass
	Environment domain.Environment
}

// Classify 仅根据格式判断令牌类别，不访问存储
func Classify(raw string) (TokenFormat, error) {
	switch {
	case strings.HasPrefix(raw, PrefixLiveKey):
		if !validBody(raw[len(PrefixLiveKey):], apiKeyBodyLength) {
			return TokenFormat{}, ErrMalformedToken
		}
		return TokenFormat{Class: domain.CredentialAPIKey, Environment: domain.EnvironmentProduction}, nil
	case strings.HasPrefix(raw, PrefixTestKey):
		if !validBody(raw[len(PrefixTestKey):], apiKeyBodyLength) {
			return TokenFormat{}, ErrMalformedToken
		}
		return TokenFormat{Class: domain.CredentialAPIKey, Environment: domain.EnvironmentDevelopment}, nil
	case strings.HasPrefix(raw, PrefixSession):
		if !validBody(raw[len(PrefixSession):], sessionBodyLength) {
			return TokenFormat{}, ErrMalformedToken
		}
		return TokenFormat{Class: domain.CredentialSession}, nil
	}
	return TokenFormat{}, ErrMalformedToken
}

func validBody(body string, length int) bool {
	if len(body) != length {
		return false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// HashToken 计算令牌的 SHA-256 十六进制摘要，签发与查找使用同一函数
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IssuedKey 新签发的 API Key，Raw 只在签发响应中出现一次
type IssuedKey struct {
	Raw    string
	Prefix string
	Hash   string
}

// GenerateAPIKey 按应用环境生成 API Key
func GenerateAPIKey(env domain.Environment) (IssuedKey, error) {
	prefix := PrefixTestKey
	if env == domain.EnvironmentProduction {
		prefix = PrefixLiveKey
	}

	body, err := randomString(apiKeyEntropyBytes)
	if err != nil {
		return IssuedKey{}, err
	}
	raw := prefix + body
	return IssuedKey{Raw: raw, Prefix: raw[:KeyPrefixLength], Hash: HashToken(raw)}, nil
}

// GenerateSessionToken 生成会话令牌，返回原文与摘要
func GenerateSessionToken() (raw, hash string, err error) {
	body, err := randomString(sessionEntropyBytes)
	if err != nil {
		return "", "", err
	}
	raw = PrefixSession + body
	return raw, HashToken(raw), nil
}

// GenerateVerificationToken 生成邮箱验证令牌，返回原文与摘要
func GenerateVerificationToken() (raw, hash string, err error) {
	body, err := randomString(verifyEntropyBytes)
	if err != nil {
		return "", "", err
	}
	raw = PrefixVerification + body
	return raw, HashToken(raw), nil
}

// GenerateWebhookSecret 生成 Webhook 签名密钥
func GenerateWebhookSecret() (string, error) {
	body, err := randomString(secretEntropyBytes)
	if err != nil {
		return "", err
	}
	return PrefixWebhookSecret + body, nil
}

// KeyPreview 不可逆的密钥展示形式
func KeyPreview(prefix string) string {
	return prefix + keyPreviewMask
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
