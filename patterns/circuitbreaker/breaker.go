// Package circuitbreaker 按操作名维护进程级熔断器。
//
// 状态机由 gobreaker 实现：CLOSED 下统计失败，达到阈值进入 OPEN；
// 冷却结束进入 HALF_OPEN，只放行有限的探测请求，成功则关闭，失败则重新打开。
package circuitbreaker

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"gocomposite/errors"
	"gocomposite/logging"
)

// State 熔断器状态
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// Config 熔断配置
type Config struct {
	FailureThreshold     uint32        // 连续失败次数阈值
	FailureRateThreshold float64       // 失败率阈值（百分比），0 表示不启用
	MinimumRequests      uint32        // 计算失败率所需的最少请求数
	Window               time.Duration // CLOSED 状态下计数的滚动周期，0 表示不清零
	OpenTimeout          time.Duration // OPEN 保持时长，之后进入 HALF_OPEN
	HalfOpenMaxRequests  uint32        // HALF_OPEN 下允许的探测请求数

	// IsFailure 判断错误是否计入失败；nil 时使用 DefaultIsFailure
	IsFailure func(err error) bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		FailureThreshold:     5,
		FailureRateThreshold: 50,
		MinimumRequests:      5,
		Window:               10 * time.Second,
		OpenTimeout:          10 * time.Second,
		HalfOpenMaxRequests:  1,
	}
}

// DefaultIsFailure NotFound / InvalidInput 是语义结果，调用方取消也不是下游故障
func DefaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.IsTerminal(err) || stdErrors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// Counts 当前统计周期内的计数
type Counts = gobreaker.Counts

// Breaker 单个操作的熔断器，可并发使用
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker[any]
}

// New 创建熔断器
func New(name string, cfg Config, logger logging.Logger) *Breaker {
	if logger == nil {
		logger = logging.ComponentLogger("circuitbreaker")
	}
	isFailure := cfg.IsFailure
	if isFailure == nil {
		isFailure = DefaultIsFailure
	}
	halfOpen := cfg.HalfOpenMaxRequests
	if halfOpen == 0 {
		halfOpen = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: halfOpen,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return shouldTrip(cfg, c)
		},
		IsSuccessful: func(err error) bool {
			return !isFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", string(toState(from))),
				logging.String("to", string(toState(to))),
			)
		},
	}

	return &Breaker{name: name, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

func shouldTrip(cfg Config, c gobreaker.Counts) bool {
	if cfg.FailureThreshold > 0 && c.ConsecutiveFailures >= cfg.FailureThreshold {
		return true
	}
	if cfg.FailureRateThreshold <= 0 || c.Requests == 0 || c.Requests < cfg.MinimumRequests {
		return false
	}
	rate := float64(c.TotalFailures) / float64(c.Requests) * 100
	return rate >= cfg.FailureRateThreshold
}

func toState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Name 操作名
func (b *Breaker) Name() string { return b.name }

// State 当前状态（OPEN 冷却到期时会在此刻切换为 HALF_OPEN）
func (b *Breaker) State() State { return toState(b.cb.State()) }

// Counts 当前计数
func (b *Breaker) Counts() Counts { return b.cb.Counts() }

// Execute 在熔断器保护下执行 fn。
// 熔断拒绝（OPEN，或 HALF_OPEN 探测名额已满）返回 CIRCUIT_OPEN，fn 不会被调用；
// 其余情况原样返回 fn 的结果。
func Execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if stdErrors.Is(err, gobreaker.ErrOpenState) || stdErrors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, errors.WrapError(err, errors.ErrCodeCircuitOpen,
				fmt.Sprintf("circuit breaker %s rejected the call", b.name)).
				WithContext("breaker", b.name)
		}
		return zero, err
	}

	v, ok := res.(T)
	if !ok {
		return zero, nil
	}
	return v, nil
}
