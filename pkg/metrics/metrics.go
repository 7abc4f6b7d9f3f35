package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 指标管理器
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 流程指标
	runsTotal      *prometheus.CounterVec
	stageAttempts  *prometheus.CounterVec
	stageFallbacks *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	softFailures   *prometheus.CounterVec
	voiceSources   *prometheus.CounterVec

	// 队列指标
	deliveriesTotal *prometheus.CounterVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
}

// NewMetrics 创建指标管理器，每个实例使用独立的 registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postcard_runs_total",
				Help: "Pipeline runs by variant and outcome",
			},
			[]string{"variant", "outcome"},
		),
		stageAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postcard_stage_attempts_total",
				Help: "Exec attempts per stage",
			},
			[]string{"stage"},
		),
		stageFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postcard_stage_fallbacks_total",
				Help: "Stages that exhausted retries and degraded",
			},
			[]string{"stage"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "postcard_stage_duration_seconds",
				Help:    "Stage wall time including retries",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"stage"},
		),
		softFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postcard_soft_failures_total",
				Help: "Writes that matched zero rows",
			},
			[]string{"operation"},
		),
		voiceSources: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "postcard_voice_source_total",
				Help: "Voice sourcing decisions",
			},
			[]string{"source"},
		),

		deliveriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_deliveries_total",
				Help: "Queue deliveries by handling result",
			},
			[]string{"result"},
		),

		cacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		cacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRun 记录一次流程运行结果
func (m *Metrics) RecordRun(variant, outcome string) {
	m.runsTotal.WithLabelValues(variant, outcome).Inc()
}

// RecordStage 记录阶段的尝试次数、降级与耗时
func (m *Metrics) RecordStage(stage string, attempts int, fellBack bool, duration time.Duration) {
	m.stageAttempts.WithLabelValues(stage).Add(float64(attempts))
	if fellBack {
		m.stageFallbacks.WithLabelValues(stage).Inc()
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordSoftFailure 记录零行写入
func (m *Metrics) RecordSoftFailure(operation string) {
	m.softFailures.WithLabelValues(operation).Inc()
}

// RecordVoiceSource 记录声音来源（cached/trained/default）
func (m *Metrics) RecordVoiceSource(source string) {
	m.voiceSources.WithLabelValues(source).Inc()
}

// RecordDelivery 记录消息处理结果
func (m *Metrics) RecordDelivery(result string) {
	m.deliveriesTotal.WithLabelValues(result).Inc()
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.cacheHitsTotal.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.cacheMissesTotal.WithLabelValues(cacheType).Inc()
}
