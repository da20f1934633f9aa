// Package resilience 把熔断、重试和单次超时组合成一个显式的装饰器。
//
// 组合顺序（由外到内）：
//
//	CircuitBreaker -> Retry -> Timeout -> op
//
// 熔断器 OPEN 时直接拒绝，重试和超时都不会执行；否则最多 MaxAttempts 次尝试，
// 每次尝试受 Timeout 约束；熔断器记录整个“重试+超时”调用的最终结果。
package resilience

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"gocomposite/errors"
	"gocomposite/logging"
	"gocomposite/patterns/circuitbreaker"
	"gocomposite/patterns/retry"
)

// Config 策略配置
type Config struct {
	Timeout time.Duration // 单次尝试超时，0 表示不限制
	Retry   retry.Config
}

// Policy 某个命名操作的弹性策略
type Policy struct {
	name    string
	timeout time.Duration
	retry   retry.Config
	breaker *circuitbreaker.Breaker
	logger  logging.Logger
}

// NewPolicy 创建策略；breaker 通常来自 circuitbreaker.Registry
func NewPolicy(name string, cfg Config, breaker *circuitbreaker.Breaker, logger logging.Logger) *Policy {
	if logger == nil {
		logger = logging.ComponentLogger("resilience")
	}
	p := &Policy{
		name:    name,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		breaker: breaker,
		logger:  logger.WithFields(logging.String("operation", name)),
	}
	if p.retry.RetryIf == nil {
		p.retry.RetryIf = errors.IsTransient
	}
	return p
}

// Name 操作名
func (p *Policy) Name() string { return p.name }

// Breaker 策略使用的熔断器
func (p *Policy) Breaker() *circuitbreaker.Breaker { return p.breaker }

// Call 在策略保护下执行 op
func Call[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	guarded := func() (T, error) {
		return withRetry(ctx, p, op)
	}
	if p.breaker == nil {
		return guarded()
	}
	return circuitbreaker.Execute(p.breaker, guarded)
}

func withRetry[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	cfg := p.retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.logger.Warn(ctx, "attempt failed, will retry",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err),
		)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		v, err := withTimeout(ctx, p.timeout, op)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, cfg)
	if err != nil {
		var zero T
		return zero, errors.Normalize(err)
	}
	return out, nil
}

// withTimeout 单次尝试的超时。尝试自身的 deadline 到期记为 TIMEOUT（可重试），
// 调用方 context 结束则原样返回。
func withTimeout[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := op(attemptCtx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() == nil && stdErrors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, errors.WrapError(err, errors.ErrCodeTimeout,
			fmt.Sprintf("attempt did not complete within %s", timeout))
	}
	return v, err
}
