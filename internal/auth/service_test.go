package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store, nil, Options{SessionTTL: 24 * time.Hour}, zap.NewNop()), store
}

// mockMailer 模拟邮件发送
type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg EmailMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// lastToken 从最近一封邮件的链接中取出验证令牌
func (m *mockMailer) lastToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.Calls)
	msg := m.Calls[len(m.Calls)-1].Arguments.Get(1).(EmailMessage)
	for _, field := range strings.Fields(msg.Text) {
		if !strings.Contains(field, "/v1/auth/verify-email?") {
			continue
		}
		link, err := url.Parse(field)
		require.NoError(t, err)
		return link.Query().Get("token")
	}
	t.Fatalf("verification link not found in %q", msg.Text)
	return ""
}

func newVerificationService(t *testing.T) (*Service, *memory.Store, *mockMailer) {
	t.Helper()
	store := memory.NewStore()
	mailer := &mockMailer{}
	svc := NewService(store, mailer, Options{
		SessionTTL: 24 * time.Hour,
		PublicURL:  "https://api.publier.test/",
	}, zap.NewNop())
	return svc, store, mailer
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("注册成功", func(t *testing.T) {
		svc, _ := newTestService()
		user, err := svc.Register(ctx, RegisterInput{
			Email:    "  Dev@Example.com ",
			Password: "Password123!",
			Name:     "Dev",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "dev@example.com", user.Email)
		assert.NotEqual(t, "Password123!", user.PasswordHash)
		assert.True(t, CheckPassword("Password123!", user.PasswordHash))
	})

	t.Run("邮箱重复", func(t *testing.T) {
		svc, _ := newTestService()
		_, err := svc.Register(ctx, RegisterInput{Email: "dev@example.com", Password: "Password123!", Name: "Dev"})
		require.NoError(t, err)

		_, err = svc.Register(ctx, RegisterInput{Email: "DEV@example.com", Password: "Password123!", Name: "Other"})
		require.Error(t, err)
		assert.Equal(t, domain.KindConflict, domain.AsAPIError(err).Kind)
	})

	t.Run("输入校验", func(t *testing.T) {
		svc, _ := newTestService()
		cases := []RegisterInput{
			{Email: "not-an-email", Password: "Password123!", Name: "Dev"},
			{Email: "dev@example.com", Password: "short", Name: "Dev"},
			{Email: "dev@example.com", Password: "Password123!", Name: "   "},
		}
		for _, input := range cases {
			_, err := svc.Register(ctx, input)
			require.Error(t, err)
			assert.Equal(t, domain.KindInvalidRequest, domain.AsAPIError(err).Kind)
		}
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	_, err := svc.Register(ctx, RegisterInput{Email: "dev@example.com", Password: "Password123!", Name: "Dev"})
	require.NoError(t, err)

	t.Run("登录成功签发会话", func(t *testing.T) {
		result, err := svc.Login(ctx, LoginInput{Email: "dev@example.com", Password: "Password123!", UserAgent: "test"})
		require.NoError(t, err)

		format, err := Classify(result.Token)
		require.NoError(t, err)
		assert.Equal(t, domain.CredentialSession, format.Class)

		sess, err := store.GetSessionByHash(ctx, HashToken(result.Token))
		require.NoError(t, err)
		assert.Equal(t, result.User.ID, sess.UserID)
		assert.True(t, sess.ExpiresAt.After(time.Now().Add(23*time.Hour)))

		user, err := store.GetUserByID(ctx, result.User.ID)
		require.NoError(t, err)
		assert.NotNil(t, user.LastLoginAt)
	})

	t.Run("密码错误与账号不存在返回相同错误", func(t *testing.T) {
		_, errWrong := svc.Login(ctx, LoginInput{Email: "dev@example.com", Password: "WrongPass123"})
		_, errMissing := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "Password123!"})

		require.Error(t, errWrong)
		require.Error(t, errMissing)
		assert.Equal(t, domain.AsAPIError(errWrong), domain.AsAPIError(errMissing))
		assert.Equal(t, domain.KindUnauthorized, domain.AsAPIError(errWrong).Kind)
	})
}

func TestService_LogoutAndCleanup(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()
	_, err := svc.Register(ctx, RegisterInput{Email: "dev@example.com", Password: "Password123!", Name: "Dev"})
	require.NoError(t, err)

	result, err := svc.Login(ctx, LoginInput{Email: "dev@example.com", Password: "Password123!"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, result.Session.ID))
	_, err = store.GetSessionByHash(ctx, HashToken(result.Token))
	assert.Error(t, err)

	// 重复登出不报错
	require.NoError(t, svc.Logout(ctx, result.Session.ID))

	_, err = svc.Login(ctx, LoginInput{Email: "dev@example.com", Password: "Password123!"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	removed, err := svc.CleanupExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestService_Me(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	user, err := svc.Register(ctx, RegisterInput{Email: "dev@example.com", Password: "Password123!", Name: "Dev"})
	require.NoError(t, err)

	got, err := svc.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = svc.Me(ctx, "missing")
	assert.Equal(t, domain.KindNotFound, domain.AsAPIError(err).Kind)
}

func TestService_EmailVerification(t *testing.T) {
	ctx := context.Background()

	register := func(t *testing.T, svc *Service) *domain.User {
		t.Helper()
		user, err := svc.Register(ctx, RegisterInput{Email: "dev@example.com", Password: "Password123!", Name: "Dev"})
		require.NoError(t, err)
		return user
	}

	t.Run("注册后发送验证邮件", func(t *testing.T) {
		svc, _, mailer := newVerificationService(t)
		mailer.On("Send", mock.Anything, mock.MatchedBy(func(msg EmailMessage) bool {
			return msg.To == "dev@example.com" &&
				strings.Contains(msg.Text, "https://api.publier.test/v1/auth/verify-email?token=pub_verify_") &&
				strings.Contains(msg.Text, "24 hours")
		})).Return(nil).Once()

		user := register(t, svc)
		assert.False(t, user.EmailVerified)
		mailer.AssertExpectations(t)
	})

	t.Run("验证成功后令牌失效", func(t *testing.T) {
		svc, store, mailer := newVerificationService(t)
		mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
		user := register(t, svc)
		token := mailer.lastToken(t)

		userID, err := svc.VerifyEmail(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, userID)

		got, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, got.EmailVerified)
		assert.NotNil(t, got.EmailVerifiedAt)

		_, err = svc.VerifyEmail(ctx, token)
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidRequest, domain.AsAPIError(err).Kind)
	})

	t.Run("缺少或未知令牌", func(t *testing.T) {
		svc, _, _ := newVerificationService(t)

		_, err := svc.VerifyEmail(ctx, "  ")
		require.Error(t, err)
		assert.Contains(t, domain.AsAPIError(err).Message, "required")

		_, err = svc.VerifyEmail(ctx, "pub_verify_unknown")
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidRequest, domain.AsAPIError(err).Kind)
		assert.Contains(t, domain.AsAPIError(err).Message, "Invalid or expired")
	})

	t.Run("过期令牌", func(t *testing.T) {
		svc, store, mailer := newVerificationService(t)
		mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
		user := register(t, svc)
		token := mailer.lastToken(t)

		svc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
		_, err := svc.VerifyEmail(ctx, token)
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidRequest, domain.AsAPIError(err).Kind)

		got, err := store.GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, got.EmailVerified)

		removed, err := svc.CleanupExpiredVerificationTokens(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
	})

	t.Run("重新发送替换旧令牌", func(t *testing.T) {
		svc, _, mailer := newVerificationService(t)
		mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
		user := register(t, svc)
		first := mailer.lastToken(t)

		require.NoError(t, svc.ResendVerification(ctx, user.ID))
		second := mailer.lastToken(t)
		assert.NotEqual(t, first, second)

		_, err := svc.VerifyEmail(ctx, first)
		require.Error(t, err)
		_, err = svc.VerifyEmail(ctx, second)
		require.NoError(t, err)

		err = svc.ResendVerification(ctx, user.ID)
		require.Error(t, err)
		assert.Equal(t, domain.KindInvalidRequest, domain.AsAPIError(err).Kind)
		assert.Contains(t, domain.AsAPIError(err).Message, "already verified")
		mailer.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("发送失败不影响注册", func(t *testing.T) {
		svc, _, mailer := newVerificationService(t)
		mailer.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp unavailable"))

		user := register(t, svc)
		assert.NotEmpty(t, user.ID)

		err := svc.ResendVerification(ctx, user.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "smtp unavailable")
	})
}
