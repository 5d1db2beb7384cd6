// MockGenerator 的 llm.Generator 测试模拟实现。
//
// 支持按顺序播放脚本化响应、错误注入与调用记录。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/lessonpipe/llm"
)

// ErrScriptExhausted is returned when every scripted reply has been consumed
// and no fallback response is configured.
var ErrScriptExhausted = errors.New("mock generator: script exhausted")

// --- MockGenerator 结构 ---

// Reply 是单次调用的脚本化结果
type Reply struct {
	Text string
	Err  error
}

// MockGenerator 是 llm.Generator 的模拟实现
type MockGenerator struct {
	mu sync.Mutex

	name  string
	model string

	// 响应配置
	script   []Reply
	fallback *Reply

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls        []MockGeneratorCall
	generateFunc func(ctx context.Context, req *llm.GenerateRequest) (*llm.RawResponse, error)

	// 行为控制
	delay time.Duration
}

// MockGeneratorCall 记录单次调用
type MockGeneratorCall struct {
	Request  llm.GenerateRequest
	Response *llm.RawResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockGenerator 创建新的 MockGenerator
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		name:             "mock",
		model:            "mock-model",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithName 设置 Provider 名称
func (m *MockGenerator) WithName(name string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithModel 设置请求未指定模型时返回的模型名
func (m *MockGenerator) WithModel(model string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = model
	return m
}

// WithResponses 依次返回给定文本
func (m *MockGenerator) WithResponses(texts ...string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		m.script = append(m.script, Reply{Text: t})
	}
	return m
}

// WithReplies 依次返回给定结果（文本或错误）
func (m *MockGenerator) WithReplies(replies ...Reply) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
	return m
}

// WithResponse 设置脚本耗尽后的固定响应
func (m *MockGenerator) WithResponse(text string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &Reply{Text: text}
	return m
}

// WithError 设置脚本耗尽后的固定错误
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &Reply{Err: err}
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockGenerator) WithTokenUsage(prompt, completion int) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithGenerateFunc 设置自定义 Generate 函数，优先于脚本
func (m *MockGenerator) WithGenerateFunc(fn func(ctx context.Context, req *llm.GenerateRequest) (*llm.RawResponse, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generateFunc = fn
	return m
}

// --- Generator 接口实现 ---

// Name 返回 Provider 名称
func (m *MockGenerator) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Generate 返回下一条脚本化结果
func (m *MockGenerator) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.RawResponse, error) {
	m.mu.Lock()
	delay := m.delay
	fn := m.generateFunc
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	m.mu.Lock()
	reply, ok := m.next()
	model := req.Params.Model
	if model == "" {
		model = m.model
	}
	resp := &llm.RawResponse{
		Provider:     m.name,
		Model:        model,
		FinishReason: "stop",
		Usage: llm.Usage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
		Latency:  delay,
		Attempts: 1,
	}
	m.mu.Unlock()

	var err error
	switch {
	case !ok:
		resp, err = nil, ErrScriptExhausted
	case reply.Err != nil:
		resp, err = nil, reply.Err
	default:
		resp.Text = reply.Text
	}
	m.record(req, resp, err)
	return resp, err
}

// next 取出下一条脚本，调用方持有锁
func (m *MockGenerator) next() (Reply, bool) {
	if len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		return r, true
	}
	if m.fallback != nil {
		return *m.fallback, true
	}
	return Reply{}, false
}

func (m *MockGenerator) record(req *llm.GenerateRequest, resp *llm.RawResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	call := MockGeneratorCall{Response: resp, Error: err}
	if req != nil {
		call.Request = *req
	}
	m.calls = append(m.calls, call)
}

// --- 调用检查 ---

// Calls 返回调用记录副本
func (m *MockGenerator) Calls() []MockGeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockGeneratorCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用
func (m *MockGenerator) LastCall() (MockGeneratorCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return MockGeneratorCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset 清空调用记录与脚本
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.script = nil
	m.fallback = nil
}

var _ llm.Generator = (*MockGenerator)(nil)
