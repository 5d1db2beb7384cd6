package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 运维端点服务器
// =============================================================================

// Config 运维端口的监听与超时设置，cmd/lessonpipe 只覆盖 Addr
type Config struct {
	Addr string `yaml:"addr" json:"addr"`

	// 抓取请求很小，读超时同时用作 ReadHeaderTimeout
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 进程退出时等待进行中的抓取/探针请求的上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回运维端口默认值（:9090，避开常见业务端口）
func DefaultConfig() Config {
	return Config{
		Addr:            ":9090",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

type serverState int

const (
	stateIdle serverState = iota
	stateServing
	stateStopped
)

// Manager 持有 /metrics、/healthz、/readyz 所在的 http.Server。
// 生命周期单向推进：idle -> serving -> stopped，停止后不可重启。
type Manager struct {
	cfg    Config
	srv    *http.Server
	logger *zap.Logger
	errCh  chan error

	mu    sync.RWMutex
	state serverState
	ln    net.Listener
}

// NewManager 为 handler 创建运维服务器，logger 为 nil 时静默
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg: cfg,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		logger: logger.With(zap.String("component", "ops_server")),
		errCh:  make(chan error, 1),
	}
}

// Start 绑定端口后立即返回，请求在后台 goroutine 中处理。
// 绑定失败同步返回；运行期错误经 Errors 送出。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateServing:
		return errors.New("ops server already started")
	case stateStopped:
		return errors.New("ops server is closed")
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Addr, err)
	}
	m.ln = ln
	m.state = stateServing
	m.logger.Info("ops endpoints listening",
		zap.String("addr", ln.Addr().String()),
		zap.Strings("paths", []string{"/metrics", "/healthz", "/readyz"}))

	go func() {
		err := m.srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("ops server stopped unexpectedly", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// Shutdown 等待进行中的请求结束，最长 ShutdownTimeout。
// 未启动或已停止时直接返回 nil；之后的 Start 会失败。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = stateStopped
	if prev != stateServing {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Warn("ops server shutdown incomplete", zap.Error(err))
		return fmt.Errorf("shutdown ops server: %w", err)
	}
	m.ln = nil
	m.logger.Info("ops endpoints closed")
	return nil
}

// Errors 返回后台 Serve 的错误，容量 1，只保留第一个
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 启动后返回实际绑定地址（":0" 时含随机端口），否则返回配置值
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == stateServing && m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning reports whether the endpoints are currently served.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateServing
}
