package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/lessonpipe/config"
	"github.com/BaSui01/lessonpipe/diagnostics"
	"github.com/BaSui01/lessonpipe/internal/metrics"
	"github.com/BaSui01/lessonpipe/internal/server"
	"github.com/BaSui01/lessonpipe/internal/telemetry"
	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/llm/providers/gemini"
	"github.com/BaSui01/lessonpipe/llm/providers/openaicompat"
	"github.com/BaSui01/lessonpipe/llm/retry"
	"github.com/BaSui01/lessonpipe/structured"
	"github.com/BaSui01/lessonpipe/types"
)

// =============================================================================
// 🧩 运行时装配
// =============================================================================

// app 持有一次命令执行所需的全部组件
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers
	store     *diagnostics.MultiStore
	recorder  *diagnostics.Recorder
	pipeline  *structured.Pipeline
	ops       *server.Manager
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator(func(c *config.Config) error { return c.Validate() })
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// newApp 按配置装配 telemetry、指标、诊断存储、生成器与流水线
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.otel = otelProviders

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.collector = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, a.registry, logger)

	a.store, err = diagnostics.Open(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.recorder = diagnostics.NewRecorder(a.store,
		diagnostics.WithLogger(logger),
		diagnostics.WithMaxPayloadBytes(cfg.Diagnostics.MaxPayloadBytes),
		diagnostics.WithFlushTimeout(cfg.Diagnostics.FlushTimeout),
		diagnostics.WithFlushObserver(a.collector),
	)

	gen, err := buildGenerator(ctx, cfg, a.collector, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	instruments, err := telemetry.NewRunInstruments(nil)
	if err != nil {
		logger.Warn("failed to create run instruments", zap.Error(err))
	}

	a.pipeline = structured.NewPipeline(gen,
		structured.WithConfig(cfg.Pipeline),
		structured.WithLogger(logger),
		structured.WithRecorder(a.recorder),
		structured.WithMetrics(a.collector),
		structured.WithRunInstruments(instruments),
	)

	if cfg.Metrics.ListenAddr != "" {
		if err := a.startOps(); err != nil {
			a.close()
			return nil, err
		}
	}
	return a, nil
}

// startOps 启动 /metrics、/healthz、/readyz
func (a *app) startOps() error {
	handler := server.NewHandler(a.registry, Version, a.logger).
		RegisterCheck("diagnostics", a.store.Ping).
		OnScrape(a.recordPoolStats)

	cfg := server.DefaultConfig()
	cfg.Addr = a.cfg.Metrics.ListenAddr
	a.ops = server.NewManager(handler, cfg, a.logger)
	return a.ops.Start()
}

// recordPoolStats 把 GORM 连接池统计写入指标
func (a *app) recordPoolStats() {
	for _, s := range a.store.Stores() {
		gs, ok := s.(*diagnostics.GormStore)
		if !ok {
			continue
		}
		stats := gs.PoolStats()
		a.collector.RecordDBConnections(a.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.ops != nil {
		if err := a.ops.Shutdown(ctx); err != nil {
			a.logger.Warn("ops server shutdown failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing diagnostics stores failed", zap.Error(err))
		}
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// =============================================================================
// 🤖 生成器
// =============================================================================

// buildGenerator 创建提供者并依次包装限流与分类重试
// 限流在重试内侧，每次重试同样受速率约束
func buildGenerator(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (llm.Generator, error) {
	lc := cfg.LLM

	var base llm.Generator
	switch strings.ToLower(lc.Provider) {
	case "gemini":
		p, err := gemini.New(ctx, gemini.Config{
			APIKey:  lc.APIKey,
			BaseURL: lc.BaseURL,
			Model:   lc.Model,
			Timeout: lc.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		base = p
	case "openai", "openaicompat":
		base = openaicompat.New(openaicompat.Config{
			ProviderName: "openai",
			APIKey:       lc.APIKey,
			BaseURL:      lc.BaseURL,
			DefaultModel: lc.Model,
			Timeout:      lc.Timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", lc.Provider)
	}

	gen := base
	if lc.RateLimitRPS > 0 {
		gen = llm.NewRateLimitedGenerator(gen, lc.RateLimitRPS, lc.RateLimitBurst, logger)
	}

	policy := retry.PolicyFromConfig(cfg.Retry)
	policy.OnRetry = func(attempt int, err *types.Error, delay time.Duration) {
		collector.RecordRetry(base.Name(), string(err.Code))
	}
	return retry.NewGenerator(gen, policy, logger), nil
}

// defaultParams 配置中的模型参数
func defaultParams(lc config.LLMConfig) llm.Params {
	return llm.Params{
		Model:           lc.Model,
		Temperature:     lc.Temperature,
		MaxOutputTokens: lc.MaxOutputTokens,
	}
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       logOutputs(cfg.OutputPaths),
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	return zapConfig.Build()
}

// logOutputs stdout 承载命令结果，日志改写到 stderr
func logOutputs(paths []string) []string {
	if len(paths) == 0 {
		return []string{"stderr"}
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		if p == "stdout" {
			p = "stderr"
		}
		out[i] = p
	}
	return out
}

// =============================================================================
// 🏁 公共 flag
// =============================================================================

// commandEnv 子命令共享的配置与日志
type commandEnv struct {
	cfg    *config.Config
	logger *zap.Logger
}

// parseWithConfig 解析 flag 并加载配置与日志
func parseWithConfig(fs *flag.FlagSet, args []string) (*commandEnv, error) {
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, newUsageError("%v", err)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	logger, err := initLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return &commandEnv{cfg: cfg, logger: logger}, nil
}
