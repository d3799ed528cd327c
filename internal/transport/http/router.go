package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"publier/backend/internal/auth"
	"publier/backend/internal/config"
	"publier/backend/internal/domain"
	"publier/backend/internal/health"
	"publier/backend/internal/idempotency"
	"publier/backend/internal/middleware"
	"publier/backend/internal/monitoring"
	"publier/backend/internal/service"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
	Authenticator  *middleware.Authenticator
	RateLimiter    middleware.Admitter // 为 nil 时不限流
	Idempotency    *idempotency.Guard
	Health         *health.Checker
	AuthService    *auth.Service
	AppService     *service.AppService
	APIKeyService  *service.APIKeyService
	WebhookService *service.WebhookService
	PostService    *service.PostService
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	RegisterValidators()

	router := gin.New()
	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)

	router.Use(middleware.RequestID())
	router.Use(middleware.SecurityHeaders())
	router.Use(gincors.New(corsConfig(deps.Config.CORS.AllowedOrigins)))
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.ErrorHandler(deps.Logger))
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.BodySizeLimit(deps.Config.HTTP.MaxBodyBytes))

	router.NoRoute(func(c *gin.Context) {
		Fail(c, domain.NotFound("Route not found"))
	})

	authHandler := NewAuthHandler(deps.AuthService)
	appHandler := NewAppHandler(deps.AppService)
	apiKeyHandler := NewAPIKeyHandler(deps.APIKeyService)
	webhookHandler := NewWebhookHandler(deps.WebhookService)
	postHandler := NewPostHandler(deps.PostService)

	authn := deps.Authenticator
	limit := func(c *gin.Context) { c.Next() }
	if deps.RateLimiter != nil {
		limit = middleware.RateLimit(deps.RateLimiter)
	}
	idem := middleware.Idempotency(deps.Idempotency)
	session := []gin.HandlerFunc{authn.RequireSession(), limit}

	// 健康检查与指标，无需认证
	router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
	router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/health", healthReport(deps.Health))

		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/logout", append(session, authHandler.Logout)...)
			authRoutes.GET("/me", append(session, authHandler.Me)...)
			authRoutes.GET("/verify-email", authHandler.VerifyEmail)
			authRoutes.POST("/resend-verification", append(session, authHandler.ResendVerification)...)
		}

		// ========== App Routes（会话认证） ==========
		appRoutes := v1.Group("/apps", session...)
		{
			appRoutes.POST("", appHandler.CreateApp)
			appRoutes.GET("", appHandler.ListApps)
			appRoutes.GET("/:appId", appHandler.GetApp)
			appRoutes.PATCH("/:appId", appHandler.UpdateApp)
			appRoutes.DELETE("/:appId", appHandler.DeleteApp)

			keyRoutes := appRoutes.Group("/:appId/api-keys")
			{
				keyRoutes.POST("", apiKeyHandler.CreateAPIKey)
				keyRoutes.GET("", apiKeyHandler.ListAPIKeys)
				keyRoutes.POST("/:keyId/revoke", apiKeyHandler.RevokeAPIKey)
				keyRoutes.DELETE("/:keyId", apiKeyHandler.DeleteAPIKey)
			}

			webhookRoutes := appRoutes.Group("/:appId/webhooks")
			{
				webhookRoutes.POST("", webhookHandler.CreateWebhook)
				webhookRoutes.GET("", webhookHandler.ListWebhooks)
				webhookRoutes.GET("/:webhookId", webhookHandler.GetWebhook)
				webhookRoutes.PATCH("/:webhookId", webhookHandler.UpdateWebhook)
				webhookRoutes.DELETE("/:webhookId", webhookHandler.DeleteWebhook)
				webhookRoutes.GET("/:webhookId/deliveries", webhookHandler.ListDeliveries)
				webhookRoutes.POST("/:webhookId/deliveries/:deliveryId/redeliver", webhookHandler.Redeliver)
			}
		}

		// ========== Post Routes（API Key 认证） ==========
		postRoutes := v1.Group("/posts")
		{
			read := authn.Authenticate(domain.ScopePostsRead)
			write := authn.Authenticate(domain.ScopePostsWrite)

			postRoutes.POST("", write, limit, idem, postHandler.CreatePost)
			postRoutes.GET("", read, limit, postHandler.ListPosts)
			postRoutes.GET("/:id", read, limit, postHandler.GetPost)
			postRoutes.PATCH("/:id", write, limit, idem, postHandler.UpdatePost)
			postRoutes.POST("/:id/publish", write, limit, idem, postHandler.PublishPost)
			postRoutes.DELETE("/:id", write, limit, idem, postHandler.DeletePost)
		}

		v1.GET("/analytics/posts", authn.Authenticate(domain.ScopeAnalyticsRead), limit, postHandler.PostAnalytics)
	}

	return router
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderIdempotencyKey, middleware.HeaderRequestID},
		ExposeHeaders: []string{
			"Content-Length",
			middleware.HeaderRateLimitLimit,
			middleware.HeaderRateLimitRemaining,
			middleware.HeaderRateLimitReset,
			middleware.HeaderRetryAfter,
			middleware.HeaderRequestID,
			middleware.HeaderIdempotentReplayed,
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}

// healthReport GET /v1/health，依赖不可用时返回 503
func healthReport(checker *health.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := checker.CheckHealth(c.Request.Context())
		status := http.StatusOK
		if report.Status != health.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, report)
	}
}
