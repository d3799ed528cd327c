package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
//
// 所有 Record 方法对 nil 接收者安全，未启用监控的组件可以直接传 nil。
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 网关指标
	AuthFailures        *prometheus.CounterVec
	RateLimitDecisions  *prometheus.CounterVec
	IdempotencyLookups  *prometheus.CounterVec
	IdempotencyFailures prometheus.Counter

	// Webhook 指标
	WebhookDeliveries       *prometheus.CounterVec
	WebhookDeliveryDuration prometheus.Histogram

	// 后台任务指标
	BackgroundTasks *prometheus.CounterVec
	QueueDepth      prometheus.Gauge

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 在指定注册表上创建监控指标
//
// reg 为 nil 时使用 prometheus 默认注册表。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publier_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "publier_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "publier_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "publier_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publier_auth_failures_total",
				Help: "Rejected authentication attempts by reason",
			},
			[]string{"reason"},
		),

		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publier_ratelimit_decisions_total",
				Help: "Rate limiter decisions (allowed, rejected, degraded)",
			},
			[]string{"result"},
		),

		IdempotencyLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publier_idempotency_lookups_total",
				Help: "Idempotency cache lookups (hit, miss, error)",
			},
			[]string{"result"},
		),

		IdempotencyFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "publier_idempotency_store_failures_total",
				Help: "Idempotency responses that could not be stored",
			},
		),

		WebhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publier_webhook_deliveries_total",
				Help: "Webhook delivery attempts by outcome",
			},
			[]string{"status"},
		),

		WebhookDeliveryDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "publier_webhook_delivery_duration_seconds",
				Help:    "Webhook delivery HTTP call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),

		BackgroundTasks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publier_background_tasks_total",
				Help: "Background task outcomes by task name",
			},
			[]string{"task", "result"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "publier_background_queue_depth",
				Help: "Number of queued background tasks",
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "publier_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordAuthFailure 记录认证失败
func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// RecordRateLimit 记录限流决策
func (m *Metrics) RecordRateLimit(result string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(result).Inc()
}

// RecordIdempotencyLookup 记录幂等缓存查找结果
func (m *Metrics) RecordIdempotencyLookup(result string) {
	if m == nil {
		return
	}
	m.IdempotencyLookups.WithLabelValues(result).Inc()
}

// RecordIdempotencyStoreFailure 记录幂等响应写入失败
func (m *Metrics) RecordIdempotencyStoreFailure() {
	if m == nil {
		return
	}
	m.IdempotencyFailures.Inc()
}

// RecordWebhookDelivery 记录一次投递尝试
func (m *Metrics) RecordWebhookDelivery(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(status).Inc()
	m.WebhookDeliveryDuration.Observe(duration.Seconds())
}

// RecordBackgroundTask 记录后台任务结果
func (m *Metrics) RecordBackgroundTask(task, result string) {
	if m == nil {
		return
	}
	m.BackgroundTasks.WithLabelValues(task, result).Inc()
}

// SetQueueDepth 更新后台队列长度
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
