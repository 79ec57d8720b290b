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
			Name: "aiwriter_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aiwriter_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIRequestsInFlight 正在处理的请求数
	APIRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aiwriter_api_requests_in_flight",
			Help: "正在处理的 API 请求数",
		},
	)
)

// AI 模型调用指标
var (
	// ModelCallsTotal 模型调用总数，status: success, failure
	ModelCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiwriter_model_calls_total",
			Help: "AI 模型调用总数",
		},
		[]string{"provider", "model", "status"},
	)

	// ModelCallErrors 模型调用失败数（按归一化错误码）
	ModelCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiwriter_model_call_errors_total",
			Help: "AI 模型调用失败数",
		},
		[]string{"provider", "code"},
	)

	// ModelCallDuration 模型调用耗时（秒）
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aiwriter_model_call_duration_seconds",
			Help:    "AI 模型调用耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model"},
	)

	// ModelCallTokens 模型调用 Token 数量
	ModelCallTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiwriter_model_call_tokens_total",
			Help: "AI 模型调用 Token 总数",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// ModelCallCost 模型调用预估成本（美元）
	ModelCallCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiwriter_model_call_cost_usd_total",
			Help: "AI 模型调用预估成本（美元）",
		},
		[]string{"provider", "model"},
	)

	// ProviderHealthy 提供方健康状态（1 健康，0 异常）
	ProviderHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aiwriter_provider_healthy",
			Help: "提供方健康状态",
		},
		[]string{"provider"},
	)
)

// 配额与用量指标
var (
	// QuotaRejectionsTotal 配额拒绝次数
	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiwriter_quota_rejections_total",
			Help: "因配额超限被拒绝的请求数",
		},
		[]string{"quota_type"},
	)

	// QuotaResetsTotal 配额窗口重置次数
	QuotaResetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiwriter_quota_resets_total",
			Help: "配额窗口惰性重置次数",
		},
		[]string{"window"}, // window: daily, monthly
	)

	// QuotaIncrementFailures 配额计数失败次数
	QuotaIncrementFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aiwriter_quota_increment_failures_total",
			Help: "配额计数写入失败次数",
		},
	)

	// UsageRecordsTotal 用量记录处理结果，result: persisted, failed, dropped, enqueued
	UsageRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aiwriter_usage_records_total",
			Help: "用量记录处理结果",
		},
		[]string{"result"},
	)

	// UsageQueueDepth 用量队列积压（进程内队列或任务队列）
	UsageQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aiwriter_usage_queue_depth",
			Help: "待写入的用量记录数量",
		},
	)
)

// RecordModelCall 记录一次成功的模型调用
func RecordModelCall(provider, model string, seconds float64, promptTokens, completionTokens int, cost float64) {
	ModelCallsTotal.WithLabelValues(provider, model, "success").Inc()
	ModelCallDuration.WithLabelValues(provider, model).Observe(seconds)
	ModelCallTokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	ModelCallTokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	if cost > 0 {
		ModelCallCost.WithLabelValues(provider, model).Add(cost)
	}
}

// RecordModelFailure 记录一次失败的模型调用
func RecordModelFailure(provider, model, code string, seconds float64) {
	ModelCallsTotal.WithLabelValues(provider, model, "failure").Inc()
	ModelCallDuration.WithLabelValues(provider, model).Observe(seconds)
	ModelCallErrors.WithLabelValues(provider, code).Inc()
}

// SetProviderHealth 更新提供方健康状态
func SetProviderHealth(provider string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	ProviderHealthy.WithLabelValues(provider).Set(v)
}
