package llm

import (
	"context"

	"github.com/BaSui01/lessonpipe/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitedGenerator 在调用上游前等待令牌
type RateLimitedGenerator struct {
	inner   Generator
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedGenerator 创建限流包装；rps <= 0 时不限流
func NewRateLimitedGenerator(inner Generator, rps float64, burst int, logger *zap.Logger) *RateLimitedGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RateLimitedGenerator{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(zap.String("component", "rate_limiter"), zap.String("provider", inner.Name())),
	}
}

var _ Generator = (*RateLimitedGenerator)(nil)

// Name 实现 Generator
func (g *RateLimitedGenerator) Name() string { return g.inner.Name() }

// Generate 等待令牌后调用内部 Generator
func (g *RateLimitedGenerator) Generate(ctx context.Context, req *GenerateRequest) (*RawResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		g.logger.Debug("rate limit wait aborted", zap.Error(err))
		return nil, types.NewError(types.ErrCanceled, "rate limit wait aborted").
			WithCause(err).
			WithProvider(g.inner.Name())
	}
	return g.inner.Generate(ctx, req)
}
