package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// =============================================================================
// 🏥 运维 Handler
// =============================================================================

// CheckFunc 就绪检查函数
type CheckFunc func(ctx context.Context) error

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type namedCheck struct {
	name  string
	check CheckFunc
}

// Handler 暴露 /metrics、/healthz、/readyz
type Handler struct {
	mux          *http.ServeMux
	metrics      http.Handler
	logger       *zap.Logger
	version      string
	checkTimeout time.Duration

	mu       sync.RWMutex
	checks   []namedCheck
	onScrape []func()
}

// NewHandler 创建运维 Handler；gatherer 为 nil 时使用默认注册表
func NewHandler(gatherer prometheus.Gatherer, version string, logger *zap.Logger) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		mux:          http.NewServeMux(),
		metrics:      promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		logger:       logger.With(zap.String("component", "ops_handler")),
		version:      version,
		checkTimeout: 5 * time.Second,
	}
	h.mux.HandleFunc("GET /metrics", h.handleMetrics)
	h.mux.HandleFunc("GET /healthz", h.handleHealthz)
	h.mux.HandleFunc("GET /readyz", h.handleReady)
	return h
}

// RegisterCheck 注册就绪检查
func (h *Handler) RegisterCheck(name string, check CheckFunc) *Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, check: check})
	return h
}

// OnScrape 注册抓取前回调，用于刷新连接池等拉取式指标
func (h *Handler) OnScrape(fn func()) *Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onScrape = append(h.onScrape, fn)
	return h
}

// WithCheckTimeout 设置 /readyz 总超时
func (h *Handler) WithCheckTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.checkTimeout = d
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	hooks := append([]func(){}, h.onScrape...)
	h.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
	h.metrics.ServeHTTP(w, r)
}

// handleHealthz Liveness probe，只说明进程存活
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.checkTimeout)
	defer cancel()

	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.RUnlock()
	sort.SliceStable(checks, func(i, j int) bool { return checks[i].name < checks[j].name })

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	healthy := true
	for _, c := range checks {
		start := time.Now()
		err := c.check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			healthy = false
			h.logger.Warn("readiness check failed",
				zap.String("check", c.name),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}
		status.Checks[c.name] = result
	}

	if !healthy {
		status.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = gojson.NewEncoder(w).Encode(v)
}
