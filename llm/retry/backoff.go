package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/BaSui01/lessonpipe/config"
	"github.com/BaSui01/lessonpipe/types"
	"go.uber.org/zap"
)

// RetryPolicy 定义重试策略配置
type RetryPolicy struct {
	MaxAttempts  int           // 最大尝试次数（含首次，至少为 1）
	InitialDelay time.Duration // 初始延迟时间
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟时间倍增因子（指数退避）
	Jitter       bool          // 是否添加 ±25% 随机抖动

	// OnRetry 在每次退避等待前调用，attempt 为即将开始的尝试序号（从 2 开始）
	OnRetry func(attempt int, err *types.Error, delay time.Duration)
}

// DefaultRetryPolicy 返回默认的重试策略
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// PolicyFromConfig 从配置构建重试策略
func PolicyFromConfig(cfg config.RetryConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		Multiplier:   cfg.Multiplier,
		Jitter:       cfg.Jitter,
	}
}

// Schedule 返回不含抖动的退避序列（长度 MaxAttempts-1）
func (p *RetryPolicy) Schedule() []time.Duration {
	out := make([]time.Duration, 0, p.MaxAttempts)
	for attempt := 2; attempt <= p.MaxAttempts; attempt++ {
		out = append(out, p.baseDelay(attempt))
	}
	return out
}

// MaxTotalWait 返回所有退避等待时间之和的上界（含抖动）
func (p *RetryPolicy) MaxTotalWait() time.Duration {
	var total time.Duration
	for _, d := range p.Schedule() {
		if p.Jitter {
			d += d / 4
		}
		total += d
	}
	return total
}

// baseDelay 计算第 attempt 次尝试前的基础延迟：initial * multiplier^(attempt-2)
func (p *RetryPolicy) baseDelay(attempt int) time.Duration {
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-2))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	return time.Duration(delay)
}

// Retryer 重试器接口
type Retryer interface {
	// Do 执行函数，失败时根据策略重试；返回的错误总是 *types.Error
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// DoWithResult 执行函数并返回结果与实际尝试次数
	DoWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, int, error)
}

// backoffRetryer 基于指数退避的重试器实现
type backoffRetryer struct {
	policy *RetryPolicy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy *RetryPolicy, logger *zap.Logger) Retryer {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	p := *policy
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1 * time.Second
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}

	return &backoffRetryer{
		policy: &p,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Do 实现 Retryer.Do
func (r *backoffRetryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, _, err := r.DoWithResult(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// DoWithResult 实现 Retryer.DoWithResult
// 指数退避 + 随机抖动 + 错误分类
func (r *backoffRetryer) DoWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, int, error) {
	var lastErr *types.Error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := r.calculateDelay(attempt)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			// 等待延迟，同时监听 context 取消
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				r.logger.Info("retry canceled during backoff",
					zap.Int("attempt", attempt-1),
					zap.Error(ctx.Err()),
				)
				return nil, attempt - 1, canceled(ctx.Err(), lastErr)
			case <-timer.C:
			}
		}

		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, canceled(err, lastErr)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, attempt, nil
		}

		lastErr = Classify(err)
		r.logger.Warn("generation attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.String("error_kind", lastErr.Kind()),
			zap.String("error_code", string(lastErr.Code)),
			zap.Error(err),
		)

		if !lastErr.Retryable {
			return nil, attempt, lastErr
		}
	}

	r.logger.Warn("retry attempts exhausted",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.String("error_code", string(lastErr.Code)),
	)

	return nil, r.policy.MaxAttempts, &types.Error{
		Code:       lastErr.Code,
		Message:    fmt.Sprintf("gave up after %d attempts: %s", r.policy.MaxAttempts, lastErr.Message),
		HTTPStatus: lastErr.HTTPStatus,
		Retryable:  true,
		Provider:   lastErr.Provider,
		Cause:      lastErr,
	}
}

// calculateDelay 计算第 attempt 次尝试前的延迟
func (r *backoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.baseDelay(attempt))

	// 添加随机抖动（±25%）
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}

	return time.Duration(delay)
}

func canceled(cause error, last *types.Error) *types.Error {
	e := types.NewError(types.ErrCanceled, "generation canceled").WithCause(cause)
	if last != nil {
		e.Provider = last.Provider
		e.Message = fmt.Sprintf("generation canceled after error: %s", last.Message)
	}
	return e
}
