package retry

import (
	"context"
	"time"

	"github.com/BaSui01/lessonpipe/llm"
	"github.com/BaSui01/lessonpipe/types"
	"go.uber.org/zap"
)

// Generator 为 llm.Generator 添加分类重试
type Generator struct {
	inner   llm.Generator
	retryer Retryer
	logger  *zap.Logger
}

// NewGenerator 创建重试包装
func NewGenerator(inner llm.Generator, policy *RetryPolicy, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", inner.Name()))
	return &Generator{
		inner:   inner,
		retryer: NewBackoffRetryer(policy, logger),
		logger:  logger,
	}
}

var _ llm.Generator = (*Generator)(nil)

// Name 实现 llm.Generator
func (g *Generator) Name() string { return g.inner.Name() }

// Generate 调用内部 Generator，可重试错误按策略重试
// 返回的错误总是 *types.Error
func (g *Generator) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.RawResponse, error) {
	start := time.Now()
	resp, attempts, err := DoWithResultTyped(g.retryer, ctx, func(ctx context.Context) (*llm.RawResponse, error) {
		return g.inner.Generate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, types.NewError(types.ErrUpstreamError, "empty response").WithProvider(g.inner.Name())
	}
	resp.Attempts = attempts
	if resp.Latency == 0 {
		resp.Latency = time.Since(start)
	}
	return resp, nil
}
