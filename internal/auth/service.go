package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"publier/backend/internal/domain"
	"publier/backend/internal/storage"
)

// 登录失败统一提示，不区分账号不存在与密码错误
const invalidLoginMessage = "Invalid email or password"

// dummyHash 账号不存在时仍执行一次 bcrypt 比较，使响应耗时一致
var dummyHash = sync.OnceValue(func() string {
	hash, _ := HashPassword("publier-dummy-password")
	return hash
})

// 邮箱验证链接默认有效期
const defaultVerificationTTL = 24 * time.Hour

// AccountStore 账号服务需要的存储操作
type AccountStore interface {
	storage.UserRepository
	storage.SessionRepository
	storage.EmailVerificationRepository
}

// Options 账号服务配置
type Options struct {
	SessionTTL      time.Duration
	VerificationTTL time.Duration
	PublicURL       string // 验证链接的对外地址，不含结尾的 /
}

// Service 开发者账号与会话服务
type Service struct {
	store           AccountStore
	mailer          EmailSender
	sessionTTL      time.Duration
	verificationTTL time.Duration
	publicURL       string
	log             *zap.Logger
	now             func() time.Time
}

// NewService 创建账号服务，mailer 为 nil 时邮件只写入日志
func NewService(store AccountStore, mailer EmailSender, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if mailer == nil {
		mailer = NewLogEmailSender(log)
	}
	if opts.VerificationTTL <= 0 {
		opts.VerificationTTL = defaultVerificationTTL
	}
	return &Service{
		store:           store,
		mailer:          mailer,
		sessionTTL:      opts.SessionTTL,
		verificationTTL: opts.VerificationTTL,
		publicURL:       strings.TrimRight(opts.PublicURL, "/"),
		log:             log,
		now:             time.Now,
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput 登录输入
type LoginInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// LoginResult 登录结果，Token 只在此处返回一次
type LoginResult struct {
	Token   string
	Session *domain.Session
	User    *domain.User
}

// Register 用户注册
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	email := domain.NormalizeEmail(input.Email)
	if err := domain.ValidateEmail(email); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}
	name := strings.TrimSpace(input.Name)
	if err := domain.ValidateName(name); err != nil {
		return nil, domain.InvalidRequest(err.Error())
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, domain.Conflict("An account with this email already exists")
		}
		return nil, err
	}

	s.log.Info("developer registered", zap.String("user_id", user.ID))

	// 邮件发送失败不影响注册，用户可以重新请求验证邮件
	if err := s.sendVerification(ctx, user); err != nil {
		s.log.Warn("failed to send verification email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// VerifyEmail 使用验证令牌确认邮箱，返回用户 ID
//
// 令牌验证成功后即被删除，过期、未知与已使用的令牌返回同一错误。
func (s *Service) VerifyEmail(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", domain.InvalidRequest("Verification token is required")
	}

	userID, err := s.store.ConsumeVerificationToken(ctx, HashToken(token), s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", domain.InvalidRequest("Invalid or expired verification token")
		}
		return "", err
	}

	s.log.Info("email verified", zap.String("user_id", userID))
	return userID, nil
}

// ResendVerification 重新发送验证邮件，旧令牌随之失效
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return domain.InvalidRequest("Email is already verified")
	}
	return s.sendVerification(ctx, user)
}

// sendVerification 签发新令牌并发送验证邮件
func (s *Service) sendVerification(ctx context.Context, user *domain.User) error {
	raw, hash, err := GenerateVerificationToken()
	if err != nil {
		return err
	}

	now := s.now().UTC()
	token := &domain.EmailVerificationToken{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: now.Add(s.verificationTTL),
		CreatedAt: now,
	}
	if err := s.store.ReplaceVerificationToken(ctx, token); err != nil {
		return fmt.Errorf("save verification token: %w", err)
	}

	if err := s.mailer.Send(ctx, verificationEmail(user.Email, s.publicURL, raw, s.verificationTTL)); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

// Login 校验密码并签发会话
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.store.GetUserByEmail(ctx, domain.NormalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			CheckPassword(input.Password, dummyHash())
			return nil, domain.Unauthorized(invalidLoginMessage)
		}
		return nil, err
	}
	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, domain.Unauthorized(invalidLoginMessage)
	}

	raw, hash, err := GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &domain.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		TokenHash: hash,
		IPAddress: input.IPAddress,
		UserAgent: truncate(input.UserAgent, 255),
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	if err := s.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return &LoginResult{Token: raw, Session: session, User: user}, nil
}

// Logout 删除当前会话，令牌立即失效
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// Me 获取当前用户
func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.NotFound("User not found")
		}
		return nil, err
	}
	return user, nil
}

// CleanupExpiredSessions 删除过期会话
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().UTC())
}

// CleanupExpiredVerificationTokens 删除过期的邮箱验证令牌
func (s *Service) CleanupExpiredVerificationTokens(ctx context.Context) (int, error) {
	return s.store.DeleteExpiredVerificationTokens(ctx, s.now().UTC())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
