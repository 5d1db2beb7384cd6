// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// 所有方法对 nil 接收者安全，未配置指标时调用方无需判空
type Collector struct {
	// 流水线指标
	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	stateChanges  *prometheus.CounterVec

	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmRetries         *prometheus.CounterVec

	// 修复与校验指标
	extractionTotal    *prometheus.CounterVec
	normalizationSteps *prometheus.CounterVec
	validationIssues   *prometheus.CounterVec

	// 诊断指标
	diagnosticsFlush  *prometheus.CounterVec
	diagnosticsFlushD *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建指标收集器，注册到指定 Registry
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 流水线指标
	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of generation runs by terminal outcome",
		},
		[]string{"schema", "outcome"}, // outcome: succeeded, transport, extraction, validation
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end generation run duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"schema", "outcome"},
	)

	c.stageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline state in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"stage"},
	)

	c.stateChanges = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Total number of pipeline state transitions",
		},
		[]string{"from_state", "to_state"},
	)

	// LLM 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM generation calls",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM generation call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.llmRetries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_retries_total",
			Help:      "Total number of transport retries by error code",
		},
		[]string{"provider", "code"},
	)

	// 修复与校验指标
	c.extractionTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Total number of extraction attempts by winning strategy",
		},
		[]string{"strategy"}, // strategy: direct, balanced, fence, none
	)

	c.normalizationSteps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "normalization_steps_total",
			Help:      "Total number of normalization rule applications",
		},
		[]string{"rule"},
	)

	c.validationIssues = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_issues_total",
			Help:      "Total number of schema violations by code",
		},
		[]string{"code"},
	)

	// 诊断指标
	c.diagnosticsFlush = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_flush_total",
			Help:      "Total number of diagnostic trace flushes by store and status",
		},
		[]string{"store", "status"},
	)

	c.diagnosticsFlushD = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "diagnostics_flush_duration_seconds",
			Help:      "Diagnostic trace flush duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"store"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🔁 流水线指标记录
// =============================================================================

// RecordRun 记录一次运行的终态
func (c *Collector) RecordRun(schema, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(schema, outcome).Inc()
	c.runDuration.WithLabelValues(schema, outcome).Observe(duration.Seconds())
}

// RecordStage 记录单个状态耗时
func (c *Collector) RecordStage(stage string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordStateTransition 记录状态转换
func (c *Collector) RecordStateTransition(from, to string) {
	if c == nil {
		return
	}
	c.stateChanges.WithLabelValues(from, to).Inc()
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordRetry 记录一次传输层重试
func (c *Collector) RecordRetry(provider, code string) {
	if c == nil {
		return
	}
	c.llmRetries.WithLabelValues(provider, code).Inc()
}

// =============================================================================
// 🩹 修复与校验指标记录
// =============================================================================

// RecordExtraction 记录提取结果，失败时 strategy 为 "none"
func (c *Collector) RecordExtraction(strategy string) {
	if c == nil {
		return
	}
	c.extractionTotal.WithLabelValues(strategy).Inc()
}

// RecordNormalizationStep 记录规则应用
func (c *Collector) RecordNormalizationStep(rule string) {
	if c == nil {
		return
	}
	c.normalizationSteps.WithLabelValues(rule).Inc()
}

// RecordValidationIssue 记录校验违规
func (c *Collector) RecordValidationIssue(code string) {
	if c == nil {
		return
	}
	c.validationIssues.WithLabelValues(code).Inc()
}

// =============================================================================
// 🧾 诊断指标记录
// =============================================================================

// ObserveFlush 记录诊断写入，满足 diagnostics.FlushObserver
func (c *Collector) ObserveFlush(store string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.diagnosticsFlush.WithLabelValues(store, flushStatus(err)).Inc()
	c.diagnosticsFlushD.WithLabelValues(store).Observe(duration.Seconds())
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// flushStatus 将写入错误转换为状态标签
func flushStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
