package diagnostics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FlushObserver 接收每个后端的写入结果（由指标收集器实现）
type FlushObserver interface {
	ObserveFlush(store string, duration time.Duration, err error)
}

// =============================================================================
// 🧾 Recorder
// =============================================================================

// Recorder 创建运行级诊断会话并负责最终写入
// Recorder 可在多个并发运行间共享；Session 只属于一个运行
type Recorder struct {
	store        Store
	logger       *zap.Logger
	maxPayload   int
	flushTimeout time.Duration
	observer     FlushObserver
	now          func() time.Time
}

// Option 配置 Recorder
type Option func(*Recorder)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxPayloadBytes 设置单条记录的最大字节数（<= 0 表示不截断）
func WithMaxPayloadBytes(n int) Option {
	return func(r *Recorder) { r.maxPayload = n }
}

// WithFlushTimeout 设置写入超时
func WithFlushTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.flushTimeout = d
		}
	}
}

// WithFlushObserver 设置写入观察者
func WithFlushObserver(o FlushObserver) Option {
	return func(r *Recorder) { r.observer = o }
}

// WithClock 替换时间源（测试用）
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder 创建 Recorder，store 为 nil 时丢弃所有 trace
func NewRecorder(store Store, opts ...Option) *Recorder {
	if store == nil {
		store = discardStore{}
	}
	r := &Recorder{
		store:        store,
		logger:       zap.NewNop(),
		maxPayload:   DefaultMaxPayloadBytes,
		flushTimeout: 5 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "diagnostics"))
	return r
}

// Store 返回底层存储
func (r *Recorder) Store() Store { return r.store }

// Start 开启一个运行的诊断会话
func (r *Recorder) Start(runID string) *Session {
	return &Session{
		rec: r,
		trace: Trace{
			RunID:     runID,
			Outcome:   OutcomeIncomplete,
			StartedAt: r.now().UTC(),
		},
	}
}

func (r *Recorder) save(ctx context.Context, trace *Trace) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.flushTimeout)
	defer cancel()

	observe := func(s Store, d time.Duration, err error) {
		if r.observer != nil {
			r.observer.ObserveFlush(s.Name(), d, err)
		}
		if err != nil {
			r.logger.Warn("diagnostic trace flush failed",
				zap.String("run_id", trace.RunID),
				zap.String("store", s.Name()),
				zap.Duration("duration", d),
				zap.Error(err),
			)
		}
	}

	stores := []Store{r.store}
	if m, ok := r.store.(*MultiStore); ok {
		stores = m.Stores()
	}
	if err := fanOut(ctx, stores, trace, observe); err != nil {
		return
	}
	r.logger.Debug("diagnostic trace flushed",
		zap.String("run_id", trace.RunID),
		zap.String("outcome", trace.Outcome),
		zap.Int("entries", len(trace.Entries)),
	)
}

// =============================================================================
// 📝 Session
// =============================================================================

// Session 单次运行的追加式诊断记录
type Session struct {
	rec     *Recorder
	mu      sync.Mutex
	trace   Trace
	flushed bool
}

// RunID 返回运行 ID
func (s *Session) RunID() string { return s.trace.RunID }

// Record 追加一条记录；payload 在调用时被快照，之后的修改不影响 trace
// Flush 之后的调用被忽略
func (s *Session) Record(stage Stage, payload any) {
	text := snapshot(payload)
	size := len(text)
	text, truncated := truncate(text, s.rec.maxPayload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushed {
		return
	}
	s.trace.Entries = append(s.trace.Entries, Entry{
		Stage:     stage,
		Timestamp: s.rec.now().UTC(),
		Payload:   text,
		Truncated: truncated,
		Size:      size,
	})
}

// SetSchema 记录 schema 名称
func (s *Session) SetSchema(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.flushed {
		s.trace.Schema = name
	}
}

// SetOutcome 设置终态
func (s *Session) SetOutcome(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.flushed {
		s.trace.Outcome = outcome
	}
}

// Flushed 报告是否已写入
func (s *Session) Flushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}

// Trace 返回当前 trace 的副本
func (s *Session) Trace() *Trace {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trace.Clone()
}

// Flush 写入 trace，只在第一次调用时生效
// ctx 取消不会中断写入，写入只受 FlushTimeout 约束；写入错误只记录日志
func (s *Session) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.flushed {
		s.mu.Unlock()
		return
	}
	s.flushed = true
	s.trace.FinishedAt = s.rec.now().UTC()
	trace := s.trace.Clone()
	s.mu.Unlock()

	s.rec.save(ctx, trace)
}

// discardStore 丢弃所有 trace
type discardStore struct{}

func (discardStore) Name() string                       { return "discard" }
func (discardStore) Save(context.Context, *Trace) error { return nil }
