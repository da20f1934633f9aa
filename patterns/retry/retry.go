package retry

import (
	"context"
	"time"
)

// Operation 可重试的操作函数类型
type Operation func(ctx context.Context) error

// OperationWithInfo 接收当前尝试次数（从 1 开始）的操作
type OperationWithInfo func(ctx context.Context, attempt int) error

// Config 重试配置
type Config struct {
	MaxAttempts   int           // 最大尝试次数（包括首次）
	InitialDelay  time.Duration // 初始退避延迟
	BackoffFactor float64       // 退避倍数；1 为固定间隔
	MaxDelay      time.Duration // 最大延迟，0 表示不限制

	// RetryIf 判断错误是否值得重试；nil 表示全部重试
	RetryIf func(err error) bool

	// OnRetry 在每次退避等待前调用
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig 返回默认配置
//
// 默认值：
//   - MaxAttempts: 3（1次初始 + 2次重试）
//   - InitialDelay: 1s，固定间隔
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 1.0,
		MaxDelay:      1 * time.Second,
	}
}

// Backoff 第 attempt 次失败之后的等待时长
func (c Config) Backoff(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= factor
		if c.MaxDelay > 0 && delay >= float64(c.MaxDelay) {
			return c.MaxDelay
		}
	}
	d := time.Duration(delay)
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Do 执行带重试的操作
//
// 返回：
//   - nil（如果任意一次尝试成功）
//   - RetryIf 拒绝重试的错误，或最后一次执行的错误
//   - ctx.Err()（等待期间上下文结束）
//
// 使用示例：
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return someOperation()
//	}, retry.DefaultConfig())
func Do(ctx context.Context, op Operation, cfg Config) error {
	return DoWithInfo(ctx, func(ctx context.Context, _ int) error {
		return op(ctx)
	}, cfg)
}

// DoWithInfo 执行带重试的操作，每次尝试都会传入当前尝试次数
func DoWithInfo(ctx context.Context, op OperationWithInfo, cfg Config) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, delay, err)
		}
		if delay <= 0 {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return lastErr
}
