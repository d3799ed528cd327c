package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"publier/backend/internal/auth"
	"publier/backend/internal/config"
	"publier/backend/internal/health"
	"publier/backend/internal/idempotency"
	"publier/backend/internal/logger"
	"publier/backend/internal/middleware"
	"publier/backend/internal/monitoring"
	"publier/backend/internal/pool"
	"publier/backend/internal/ratelimit"
	"publier/backend/internal/service"
	"publier/backend/internal/storage"
	"publier/backend/internal/storage/dynamo"
	"publier/backend/internal/storage/memory"
	"publier/backend/internal/storage/postgres"
	redisstore "publier/backend/internal/storage/redis"
	httptransport "publier/backend/internal/transport/http"
	"publier/backend/internal/webhook"
)

// 进程内缓存的最大键数
const (
	maxCounterKeys     = 100000
	maxIdempotencyKeys = 100000
)

// 过期会话与验证令牌清理间隔
const sessionCleanupInterval = time.Hour

// main 启动 Publier API 服务
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 设置 Gin 模式
	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
		Service:     "publier-api",
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting publier server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	// 初始化监控系统
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	// 初始化存储层
	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close storage", zap.Error(err))
		}
	}()

	// Redis 可选：用于限流计数、幂等缓存与重试扫描锁
	var rdb *redisstore.Client
	if cfg.Redis.Enabled() {
		rdb, err = redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 后台协程池：凭证 last_used_at 回写与 Webhook 投递
	workers := pool.NewWorkerPool(cfg.Worker.Count, cfg.Worker.QueueSize, log, metrics)
	workers.Start(ctx)

	// 限流器
	var limiter middleware.Admitter
	if cfg.RateLimit.Enabled {
		var counters ratelimit.CounterStore
		if rdb != nil {
			counters = rdb
		} else {
			local := memory.NewCounterStore(maxCounterKeys)
			defer local.Close()
			counters = local
		}
		limiter = ratelimit.NewLimiter(counters, cfg.RateLimit.Limit, cfg.RateLimit.Window, log, metrics)
	} else {
		log.Warn("rate limiting disabled")
	}

	// 幂等缓存
	idemStore, closeIdem, err := openIdempotencyStore(ctx, cfg, rdb)
	if err != nil {
		log.Fatal("failed to initialize idempotency store", zap.Error(err))
	}
	defer closeIdem()
	log.Info("idempotency store ready", zap.String("backend", cfg.IdempotencyBackend()))
	guard := idempotency.NewGuard(idemStore, cfg.Idempotency.TTL, cfg.Idempotency.MaxKeyLength, log, metrics)

	// Webhook 投递与重试
	dispatcher := webhook.NewDispatcher(store, workers, nil, webhook.Config{
		Timeout:      cfg.Webhook.Timeout,
		MaxAttempts:  cfg.Webhook.MaxAttempts,
		MaxPerSecond: cfg.Webhook.MaxPerSecond,
	}, log, metrics)
	var locker webhook.Locker
	if rdb != nil {
		locker = redisstore.NewLocker(rdb)
	}
	sweeper := webhook.NewSweeper(dispatcher, locker, cfg.Webhook.SweepInterval, cfg.Webhook.SweepBatch, log)

	// 认证
	creds := auth.NewCredentialStore(store, store, workers, log, metrics)
	authService := auth.NewService(store, auth.NewLogEmailSender(log), auth.Options{
		SessionTTL:      cfg.Auth.SessionTTL,
		VerificationTTL: cfg.Auth.VerificationTTL,
		PublicURL:       cfg.Auth.PublicURL,
	}, log)

	// 健康检查
	var cachePing health.Pinger
	if rdb != nil {
		cachePing = rdb.Ping
	}
	healthChecker := health.NewChecker(store.Health, cachePing, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		Logger:         log,
		Metrics:        metrics,
		Authenticator:  middleware.NewAuthenticator(creds, cfg.Auth.AllowTestKeys, log, metrics),
		RateLimiter:    limiter,
		Idempotency:    guard,
		Health:         healthChecker,
		AuthService:    authService,
		AppService:     service.NewAppService(store, log),
		APIKeyService:  service.NewAPIKeyService(store, store, log),
		WebhookService: service.NewWebhookService(store, dispatcher, log),
		PostService:    service.NewPostService(store, dispatcher, log),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 定时重试失败的 Webhook 投递
	group.Go(func() error {
		log.Info("starting webhook retry sweeper", zap.Duration("interval", cfg.Webhook.SweepInterval))
		return sweeper.Run(groupCtx)
	})

	// 定时清理过期会话与邮箱验证令牌
	group.Go(func() error {
		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				count, err := authService.CleanupExpiredSessions(groupCtx)
				if err != nil {
					log.Error("failed to cleanup expired sessions", zap.Error(err))
				} else if count > 0 {
					log.Info("expired sessions cleaned up", zap.Int("count", count))
				}

				count, err = authService.CleanupExpiredVerificationTokens(groupCtx)
				if err != nil {
					log.Error("failed to cleanup expired verification tokens", zap.Error(err))
				} else if count > 0 {
					log.Info("expired verification tokens cleaned up", zap.Int("count", count))
				}
			}
		}
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		// HTTP 停止后不会再有新任务，等待已排队的投递完成
		drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.Worker.DrainTimeout)
		defer cancelDrain()
		if err := workers.Drain(drainCtx); err != nil {
			log.Warn("background queue not fully drained", zap.Int("pending", workers.Pending()), zap.Error(err))
		}
		workers.Stop()

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}

	log.Info("server exited cleanly")
}

// openStore 按配置选择存储：未配置数据库时使用内存存储
func openStore(cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	if cfg.Database.Type == config.DatabaseMemory {
		log.Info("using memory storage (development mode)")
		return memory.NewStore(), nil
	}
	store, err := postgres.Open(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	log.Info("using database storage", zap.String("type", cfg.Database.Type))
	return store, nil
}

// openIdempotencyStore 按配置选择幂等缓存后端，返回关闭函数
func openIdempotencyStore(ctx context.Context, cfg *config.Config, rdb *redisstore.Client) (idempotency.Store, func(), error) {
	switch cfg.IdempotencyBackend() {
	case config.IdempotencyRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("idempotency backend redis requires redis.address")
		}
		return redisstore.NewIdempotencyStore(rdb), func() {}, nil
	case config.IdempotencyDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.AWS.Region)
		if err != nil {
			return nil, nil, err
		}
		return dynamo.NewIdempotencyStore(client, cfg.Idempotency.DynamoDBTable), func() {}, nil
	default:
		local := memory.NewIdempotencyStore(maxIdempotencyKeys, cfg.Idempotency.TTL)
		return local, local.Close, nil
	}
}
