package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusperks_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusperks_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets, // 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
		},
		[]string{"method", "path"},
	)

	// APIRequestSize API 请求体大小（字节）
	APIRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusperks_api_request_size_bytes",
			Help:    "API 请求体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "campusperks_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000},
		},
		[]string{"method", "path"},
	)

	// APIInFlightRequests 处理中的请求数
	APIInFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "campusperks_api_in_flight_requests",
			Help: "当前正在处理的请求数",
		},
	)
)

// 审计指标
var (
	// AuditEventsTotal 审计拦截结果总数
	// outcome: composed, skipped, failed
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusperks_audit_events_total",
			Help: "审计事件拦截结果总数",
		},
		[]string{"action", "outcome"},
	)

	// AuditWriteDuration 审计写入耗时（秒）
	AuditWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campusperks_audit_write_duration_seconds",
			Help:    "审计记录落库耗时分布",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	// AuditComposeFailures 审计组装失败总数
	// stage: validate, marshal, store
	AuditComposeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusperks_audit_compose_failures_total",
			Help: "审计记录组装失败总数（失败被吞掉，仅计数与记日志）",
		},
		[]string{"stage"},
	)
)

// 缓存指标
var (
	// CacheHitsTotal 缓存命中数
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusperks_cache_hits_total",
			Help: "缓存命中总数",
		},
		[]string{"cache_type"},
	)

	// CacheMissesTotal 缓存未命中数
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusperks_cache_misses_total",
			Help: "缓存未命中总数",
		},
		[]string{"cache_type"},
	)
)

// 业务指标
var (
	// RedemptionsTotal 兑换申请总数
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campusperks_redemptions_total",
			Help: "兑换申请总数",
		},
		[]string{"status"}, // status: pending, approved, rejected
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "campusperks_build_info",
			Help: "CampusPerks 构建信息",
		},
		[]string{"version", "go_version"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion string) {
	BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
