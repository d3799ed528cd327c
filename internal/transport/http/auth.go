package httptransport

import (
	"time"

	"github.com/gin-gonic/gin"

	"publier/backend/internal/auth"
	"publier/backend/internal/domain"
)

// AuthHandler 开发者账号处理器
type AuthHandler struct {
	authService *auth.Service
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type userResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	EmailVerified   bool       `json:"email_verified"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type verifyEmailResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

// Register 注册开发者账号
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, toUserResponse(user))
}

// Login 登录，会话令牌只在此响应中返回一次
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		Fail(c, err)
		return
	}

	Success(c, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.Session.ExpiresAt,
		User:      toUserResponse(result.User),
	})
}

// Logout 删除当前会话，重复调用同样成功
func (h *AuthHandler) Logout(c *gin.Context) {
	session, ok := auth.SessionFrom(c.Request.Context())
	if !ok {
		Fail(c, domain.Unauthorized("Authentication required"))
		return
	}
	if err := h.authService.Logout(c.Request.Context(), session.SessionID); err != nil {
		Fail(c, err)
		return
	}
	Message(c, "Successfully logged out")
}

// Me 获取当前登录的开发者
func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := auth.SessionFrom(c.Request.Context())
	if !ok {
		Fail(c, domain.Unauthorized("Authentication required"))
		return
	}
	user, err := h.authService.Me(c.Request.Context(), session.UserID)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, toUserResponse(user))
}

// VerifyEmail 通过邮件中的链接确认邮箱，无需登录
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	userID, err := h.authService.VerifyEmail(c.Request.Context(), c.Query("token"))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, verifyEmailResponse{Message: "Email verified successfully", UserID: userID})
}

// ResendVerification 为当前用户重新发送验证邮件
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	userID, ok := sessionUserID(c)
	if !ok {
		return
	}
	if err := h.authService.ResendVerification(c.Request.Context(), userID); err != nil {
		Fail(c, err)
		return
	}
	Message(c, "Verification email sent")
}

func toUserResponse(user *domain.User) userResponse {
	return userResponse{
		ID:              user.ID,
		Email:           user.Email,
		Name:            user.Name,
		EmailVerified:   user.EmailVerified,
		EmailVerifiedAt: user.EmailVerifiedAt,
		CreatedAt:       user.CreatedAt,
		UpdatedAt:       user.UpdatedAt,
	}
}

// sessionUserID 读取会话主体的用户 ID，路由已由 RequireSession 保护
func sessionUserID(c *gin.Context) (string, bool) {
	session, ok := auth.SessionFrom(c.Request.Context())
	if !ok {
		Fail(c, domain.Unauthorized("Authentication required"))
		return "", false
	}
	return session.UserID, true
}

// apiKeyAppID 读取 API Key 主体所属的应用 ID
func apiKeyAppID(c *gin.Context) (string, bool) {
	key, ok := auth.APIKeyFrom(c.Request.Context())
	if !ok {
		Fail(c, domain.Unauthorized("Authentication required"))
		return "", false
	}
	return key.AppID, true
}
