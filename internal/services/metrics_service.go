package services

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 对话结果标签
const (
	OutcomeOK             = "ok"
	OutcomeFallback       = "fallback"
	OutcomeInputTooLong   = "input_too_long"
	OutcomeOffTopic       = "off_topic"
	OutcomeTokenLimit     = "token_limit"
	OutcomeInvalidRequest = "invalid"
)

var (
	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_generation_duration_seconds",
			Help:    "Reply generation latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"generator"},
	)

	generationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_generation_failures_total",
			Help: "Failed reply generations by reason",
		},
		[]string{"reason"},
	)

	tokensChargedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tutor_tokens_charged_total",
			Help: "Tokens charged against user budgets",
		},
	)

	activeConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tutor_active_conversations",
			Help: "Conversations currently held in memory",
		},
	)

	retentionEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_retention_evictions_total",
			Help: "Records removed by the retention sweeper",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tutor_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tutor_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// ObserveHTTPRequest 记录一次HTTP请求，访问日志中间件调用
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// MetricsService 指标服务
type MetricsService struct{}

// NewMetricsService 创建指标服务
func NewMetricsService() *MetricsService {
	return &MetricsService{}
}

// Handler 返回Prometheus指标的HTTP处理器
func (ms *MetricsService) Handler() http.Handler {
	return promhttp.Handler()
}

// ServeHTTP 实现http.Handler接口
func (ms *MetricsService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ms.Handler().ServeHTTP(w, r)
}
