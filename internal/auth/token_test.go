package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"publier/backend/internal/domain"
)

func TestGenerateAPIKey(t *testing.T) {
	t.Run("生产环境使用 live 前缀", func(t *testing.T) {
		key, err := GenerateAPIKey(domain.EnvironmentProduction)
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(key.Raw, PrefixLiveKey))
		assert.Len(t, key.Raw, len(PrefixLiveKey)+32)
		assert.Equal(t, key.Raw[:KeyPrefixLength], key.Prefix)
		assert.Equal(t, HashToken(key.Raw), key.Hash)
	})

	t.Run("开发环境使用 test 前缀", func(t *testing.T) {
		key, err := GenerateAPIKey(domain.EnvironmentDevelopment)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(key.Raw, PrefixTestKey))
	})

	t.Run("每次生成不同的密钥", func(t *testing.T) {
		a, err := GenerateAPIKey(domain.EnvironmentProduction)
		require.NoError(t, err)
		b, err := GenerateAPIKey(domain.EnvironmentProduction)
		require.NoError(t, err)
		assert.NotEqual(t, a.Raw, b.Raw)
		assert.NotEqual(t, a.Hash, b.Hash)
	})
}

func TestGenerateSessionToken(t *testing.T) {
	raw, hash, err := GenerateSessionToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, PrefixSession))
	assert.Len(t, raw, len(PrefixSession)+43)
	assert.Equal(t, HashToken(raw), hash)
	assert.Len(t, hash, 64)
}

func TestGenerateVerificationToken(t *testing.T) {
	raw, hash, err := GenerateVerificationToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, PrefixVerification))
	assert.Len(t, raw, len(PrefixVerification)+43)
	assert.Equal(t, HashToken(raw), hash)

	// 验证令牌不能当作 Bearer 凭证使用
	_, err = Classify(raw)
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestGenerateWebhookSecret(t *testing.T) {
	secret, err := GenerateWebhookSecret()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(secret, PrefixWebhookSecret))
	assert.Len(t, secret, len(PrefixWebhookSecret)+32)
}

func TestClassify(t *testing.T) {
	live, err := GenerateAPIKey(domain.EnvironmentProduction)
	require.NoError(t, err)
	test, err := GenerateAPIKey(domain.EnvironmentDevelopment)
	require.NoError(t, err)
	session, _, err := GenerateSessionToken()
	require.NoError(t, err)

	tests := []struct {
		name    string
		raw     string
		want    TokenFormat
		wantErr bool
	}{
		{"生产密钥", live.Raw, TokenFormat{Class: domain.CredentialAPIKey, Environment: domain.EnvironmentProduction}, false},
		{"测试密钥", test.Raw, TokenFormat{Class: domain.CredentialAPIKey, Environment: domain.EnvironmentDevelopment}, false},
		{"会话令牌", session, TokenFormat{Class: domain.CredentialSession}, false},
		{"空字符串", "", TokenFormat{}, true},
		{"未知前缀", "sk_live_" + strings.Repeat("a", 32), TokenFormat{}, true},
		{"长度不足", PrefixLiveKey + strings.Repeat("a", 31), TokenFormat{}, true},
		{"长度过长", PrefixLiveKey + strings.Repeat("a", 33), TokenFormat{}, true},
		{"非法字符", PrefixLiveKey + strings.Repeat("a", 31) + "!", TokenFormat{}, true},
		{"标准 base64 字符", PrefixTestKey + strings.Repeat("a", 31) + "+", TokenFormat{}, true},
		{"会话长度错误", PrefixSession + strings.Repeat("a", 32), TokenFormat{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedToken)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, HashToken("pub_test_abc"), HashToken("pub_test_abc"))
	assert.NotEqual(t, HashToken("pub_test_abc"), HashToken("pub_test_abd"))
	// sha256("") 的已知值
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashToken(""))
}

func TestKeyPreview(t *testing.T) {
	assert.Equal(t, "pub_live_AbCdEfGXXXXX", KeyPreview("pub_live_AbCdEfG"))
}
