// Package server 定义应用的生命周期契约与启动引擎
package server

import (
	"context"
	"time"

	"gocomposite/logging"
)

// State 生命周期状态
type State int32

const (
	StatePending State = iota
	StateInitializing
	StatePrepared
	StateRunning
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateInitializing:
		return "Initializing"
	case StatePrepared:
		return "Prepared"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Hook 生命周期回调
type Hook func(ctx context.Context) error

// Options 引擎配置
type Options struct {
	Name            string
	Version         string
	StartupTimeout  time.Duration
	ShutdownTimeout time.Duration
	Logger          logging.Logger

	OnAfterStart []Hook
	OnAfterStop  []Hook
}

// Option 配置修改函数
type Option func(*Options)

// DefaultOptions 默认配置
func DefaultOptions() *Options {
	return &Options{
		Name:            "product-composite",
		Version:         "dev",
		StartupTimeout:  30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

func WithVersion(version string) Option {
	return func(o *Options) { o.Version = version }
}

func WithStartupTimeout(t time.Duration) Option {
	return func(o *Options) { o.StartupTimeout = t }
}

func WithShutdownTimeout(t time.Duration) Option {
	return func(o *Options) {
		if t > 0 {
			o.ShutdownTimeout = t
		}
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithAfterStart 启动完成后回调；失败只记录日志
func WithAfterStart(fn Hook) Option {
	return func(o *Options) { o.OnAfterStart = append(o.OnAfterStart, fn) }
}

// WithAfterStop 关闭完成后回调，例如刷新日志
func WithAfterStop(fn Hook) Option {
	return func(o *Options) { o.OnAfterStop = append(o.OnAfterStop, fn) }
}
