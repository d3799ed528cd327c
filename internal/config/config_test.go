package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
		assert.Equal(t, "development", cfg.Server.Environment)
		assert.False(t, cfg.IsProduction())
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, DatabaseMemory, cfg.Database.Type)
		assert.True(t, cfg.Database.AutoMigrate)
		assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
		assert.False(t, cfg.Redis.Enabled())
		assert.Equal(t, 168*time.Hour, cfg.Auth.SessionTTL)
		assert.True(t, cfg.Auth.AllowTestKeys)
		assert.Equal(t, 24*time.Hour, cfg.Auth.VerificationTTL)
		assert.Equal(t, "http://localhost:8080", cfg.Auth.PublicURL)
		assert.True(t, cfg.RateLimit.Enabled)
		assert.Equal(t, 100, cfg.RateLimit.Limit)
		assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
		assert.Equal(t, 600*time.Second, cfg.Idempotency.TTL)
		assert.Equal(t, 255, cfg.Idempotency.MaxKeyLength)
		assert.Equal(t, "publier-idempotency", cfg.Idempotency.DynamoDBTable)
		assert.Equal(t, "us-east-1", cfg.AWS.Region)
		assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
		assert.Equal(t, 6, cfg.Webhook.MaxAttempts)
		assert.Equal(t, time.Minute, cfg.Webhook.SweepInterval)
		assert.Equal(t, 50, cfg.Webhook.MaxPerSecond)
		assert.Equal(t, 8, cfg.Worker.Count)
		assert.Equal(t, 1024, cfg.Worker.QueueSize)
		assert.Equal(t, 15*time.Second, cfg.Worker.DrainTimeout)
		assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
		assert.Equal(t, IdempotencyMemory, cfg.IdempotencyBackend())
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		t.Setenv("PUBLIER_SERVER_PORT", "9090")
		t.Setenv("PUBLIER_SERVER_ENVIRONMENT", "Production")
		t.Setenv("PUBLIER_CORS_ALLOWED_ORIGINS", "https://a.dev, https://b.dev")
		t.Setenv("PUBLIER_REDIS_ADDRESS", "localhost:6379")
		t.Setenv("PUBLIER_RATELIMIT_LIMIT", "5")
		t.Setenv("PUBLIER_RATELIMIT_WINDOW", "10s")
		t.Setenv("PUBLIER_AUTH_ALLOW_TEST_KEYS", "false")
		t.Setenv("PUBLIER_WEBHOOK_MAX_ATTEMPTS", "3")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.True(t, cfg.IsProduction())
		assert.Equal(t, []string{"https://a.dev", "https://b.dev"}, cfg.CORS.AllowedOrigins)
		assert.True(t, cfg.Redis.Enabled())
		assert.Equal(t, 5, cfg.RateLimit.Limit)
		assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
		assert.False(t, cfg.Auth.AllowTestKeys)
		assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
		assert.Equal(t, IdempotencyRedis, cfg.IdempotencyBackend())
	})

	t.Run("非法配置", func(t *testing.T) {
		cases := map[string]map[string]string{
			"数据库类型未知":     {"PUBLIER_DATABASE_TYPE": "sqlite"},
			"数据库缺少 DSN":   {"PUBLIER_DATABASE_TYPE": "postgres"},
			"限流容量为零":      {"PUBLIER_RATELIMIT_LIMIT": "0"},
			"幂等后端未知":      {"PUBLIER_IDEMPOTENCY_BACKEND": "memcached"},
			"Redis 后端缺少地址": {"PUBLIER_IDEMPOTENCY_BACKEND": "redis"},
			"DynamoDB 缺少表名": {"PUBLIER_IDEMPOTENCY_BACKEND": "dynamodb", "PUBLIER_IDEMPOTENCY_DYNAMODB_TABLE": ""},
			"运行环境未知":      {"PUBLIER_SERVER_ENVIRONMENT": "staging"},
		}

		for name, env := range cases {
			t.Run(name, func(t *testing.T) {
				for k, v := range env {
					t.Setenv(k, v)
				}
				_, err := Load()
				assert.Error(t, err)
			})
		}
	})
}

func TestParseList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseList(" a , ,b "))
	assert.Empty(t, parseList(""))
}
