package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"

	checkOK          = "healthy"
	checkUnavailable = "unhealthy"

	defaultTimeout     = 2 * time.Second
	maxGoroutineCount  = 10000
	checkNameDatabase  = "database"
	checkNameCache     = "cache"
	checkNameGoroutine = "goroutine-threshold"
)

// Pinger 依赖的连通性检查
type Pinger func(ctx context.Context) error

// Report /v1/health 返回的健康报告
type Report struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Checker 健康检查器
//
// 存活检查只看进程本身，就绪检查和健康报告会探测数据库与缓存。
type Checker struct {
	handler  healthcheck.Handler
	database Pinger
	cache    Pinger
	timeout  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewChecker 创建健康检查器，nil 的 Pinger 视为始终可用
func NewChecker(database, cache Pinger, logger *zap.Logger) *Checker {
	c := &Checker{
		handler:  healthcheck.NewHandler(),
		database: orOK(database),
		cache:    orOK(cache),
		timeout:  defaultTimeout,
		logger:   logger,
		now:      time.Now,
	}

	c.handler.AddLivenessCheck(checkNameGoroutine, healthcheck.GoroutineCountCheck(maxGoroutineCount))
	c.handler.AddReadinessCheck(checkNameDatabase, c.check(c.database))
	c.handler.AddReadinessCheck(checkNameCache, c.check(c.cache))
	return c
}

// LiveEndpoint /health/live
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint /health/ready
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}

// CheckHealth 执行一次完整检查，错误细节只写日志
func (c *Checker) CheckHealth(ctx context.Context) *Report {
	report := &Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]string, 2),
		Timestamp: c.now().UTC(),
	}

	for name, ping := range map[string]Pinger{checkNameDatabase: c.database, checkNameCache: c.cache} {
		report.Checks[name] = checkOK
		if err := c.ping(ctx, ping); err != nil {
			c.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			report.Checks[name] = checkUnavailable
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) check(ping Pinger) healthcheck.Check {
	return func() error {
		return c.ping(context.Background(), ping)
	}
}

func (c *Checker) ping(ctx context.Context, ping Pinger) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return ping(ctx)
}

func orOK(p Pinger) Pinger {
	if p == nil {
		return func(context.Context) error { return nil }
	}
	return p
}
