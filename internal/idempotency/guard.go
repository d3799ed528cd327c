package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"

	"publier/backend/internal/domain"
	"publier/backend/internal/monitoring"
)

// saveTimeout 响应写入缓存的超时，与请求上下文解耦
const saveTimeout = 3 * time.Second

// Store 幂等响应存储
//
// Get 未命中返回 (nil, nil)。SaveIfAbsent 在指纹已存在时不覆盖并返回 false。
type Store interface {
	Get(ctx context.Context, fingerprint string) (*domain.IdempotencyRecord, error)
	SaveIfAbsent(ctx context.Context, record *domain.IdempotencyRecord, ttl time.Duration) (bool, error)
}

// Fingerprint 计算幂等指纹
//
// fullPath 包含查询字符串，同一主体对不同资源使用相同键互不影响。
func Fingerprint(principalKey, method, fullPath, key string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{principalKey, method, fullPath, key}, "\n")))
	return hex.EncodeToString(sum[:])
}

// Guard 幂等响应缓存
//
// 只保证先写者胜出，不对并发的重复请求加锁：两个同时未命中的请求都会执行处理器，
// 但缓存中只保留第一个写入的结果。
type Guard struct {
	store        Store
	ttl          time.Duration
	maxKeyLength int
	log          *zap.Logger
	metrics      *monitoring.Metrics
	now          func() time.Time
}

// NewGuard 创建幂等缓存
func NewGuard(store Store, ttl time.Duration, maxKeyLength int, log *zap.Logger, metrics *monitoring.Metrics) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{
		store:        store,
		ttl:          ttl,
		maxKeyLength: maxKeyLength,
		log:          log,
		metrics:      metrics,
		now:          time.Now,
	}
}

// ValidKey 检查客户端提供的幂等键
func (g *Guard) ValidKey(key string) bool {
	return key != "" && len(key) <= g.maxKeyLength
}

// MaxKeyLength 幂等键最大长度
func (g *Guard) MaxKeyLength() int { return g.maxKeyLength }

// Lookup 查找已缓存的响应，存储故障按未命中处理
func (g *Guard) Lookup(ctx context.Context, fingerprint string) *domain.IdempotencyRecord {
	rec, err := g.store.Get(ctx, fingerprint)
	if err != nil {
		g.metrics.RecordIdempotencyLookup("error")
		g.log.Warn("idempotency lookup failed, executing request",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return nil
	}
	if rec == nil {
		g.metrics.RecordIdempotencyLookup("miss")
		return nil
	}
	g.metrics.RecordIdempotencyLookup("hit")
	return rec
}

// Save 尽力保存响应，5xx 不缓存，失败只记录日志和指标
//
// 返回是否由本次调用写入。
func (g *Guard) Save(ctx context.Context, fingerprint string, status int, contentType string, body []byte) bool {
	if status >= 500 {
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	rec := &domain.IdempotencyRecord{
		Fingerprint: fingerprint,
		StatusCode:  status,
		ContentType: contentType,
		Body:        body,
		StoredAt:    g.now().UTC(),
	}
	stored, err := g.store.SaveIfAbsent(ctx, rec, g.ttl)
	if err != nil {
		g.metrics.RecordIdempotencyStoreFailure()
		g.log.Warn("failed to store idempotent response",
			zap.String("fingerprint", fingerprint),
			zap.Error(err),
		)
		return false
	}
	if !stored {
		g.log.Debug("idempotent response already stored by a concurrent request",
			zap.String("fingerprint", fingerprint),
		)
	}
	return stored
}
