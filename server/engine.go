package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"gocomposite/logging"
)

// IServer 应用需要实现的生命周期步骤
//
// 引擎按 LoadConfig -> SetupDependencies -> StartBackgroundTasks -> Run -> Shutdown 调用。
type IServer interface {
	Name() string

	// LoadConfig 解析配置文件与环境变量
	LoadConfig() error

	// SetupDependencies 构建连接、服务与路由，受 StartupTimeout 约束
	SetupDependencies(ctx context.Context) error

	// StartBackgroundTasks 启动非阻塞的后台组件（消息传输、发布池）
	StartBackgroundTasks(ctx context.Context) error

	// Run 阻塞运行主服务，返回 nil 表示正常退出
	Run(ctx context.Context) error

	// Shutdown 释放资源，受 ShutdownTimeout 约束
	Shutdown(ctx context.Context) error
}

// Engine 编排应用的启动与优雅关闭
type Engine struct {
	server  IServer
	options *Options
	logger  logging.Logger
	state   atomic.Int32
}

// NewEngine 创建启动引擎
func NewEngine(server IServer, opts ...Option) *Engine {
	options := DefaultOptions()
	if name := server.Name(); name != "" {
		options.Name = name
	}
	for _, o := range opts {
		o(options)
	}
	logger := options.Logger
	if logger == nil {
		logger = logging.ComponentLogger("server")
	}

	e := &Engine{
		server:  server,
		options: options,
		logger:  logger.WithFields(logging.String("service", options.Name)),
	}
	e.setState(StatePending)
	return e
}

// State 当前状态
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Start 运行完整生命周期，直到 ctx 结束、收到 SIGINT/SIGTERM 或 Run 返回
func (e *Engine) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.logger.Info(ctx, "starting application", logging.String("version", e.options.Version))

	e.setState(StateInitializing)
	if err := e.server.LoadConfig(); err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupCtx, setupCancel := context.WithTimeout(runCtx, e.options.StartupTimeout)
	err := e.server.SetupDependencies(setupCtx)
	setupCancel()
	if err != nil {
		e.setState(StateError)
		return fmt.Errorf("failed to setup dependencies: %w", err)
	}
	e.setState(StatePrepared)

	if err := e.server.StartBackgroundTasks(runCtx); err != nil {
		e.setState(StateError)
		e.shutdown()
		return fmt.Errorf("failed to start background tasks: %w", err)
	}

	e.setState(StateRunning)
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.server.Run(runCtx)
	}()

	for _, hook := range e.options.OnAfterStart {
		if err := hook(runCtx); err != nil {
			e.logger.Warn(ctx, "after-start hook failed", logging.Error(err))
		}
	}

	var runErr error
	select {
	case runErr = <-errCh:
		if runErr != nil {
			e.logger.Error(ctx, "server stopped with error", logging.Error(runErr))
		} else {
			e.logger.Info(ctx, "server stopped")
		}
	case <-ctx.Done():
		e.logger.Info(context.Background(), "shutdown requested", logging.String("reason", context.Cause(ctx).Error()))
	}
	cancel()

	if err := e.shutdown(); err != nil {
		e.setState(StateError)
		return err
	}
	if runErr != nil {
		e.setState(StateError)
		return fmt.Errorf("server execution error: %w", runErr)
	}

	e.setState(StateStopped)
	e.logger.Info(context.Background(), "shutdown complete")
	return nil
}

func (e *Engine) shutdown() error {
	e.setState(StateStopping)
	ctx, cancel := context.WithTimeout(context.Background(), e.options.ShutdownTimeout)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Error(ctx, "shutdown error", logging.Error(err))
		return fmt.Errorf("shutdown failed: %w", err)
	}
	for _, hook := range e.options.OnAfterStop {
		if err := hook(ctx); err != nil {
			e.logger.Warn(ctx, "after-stop hook failed", logging.Error(err))
		}
	}
	return nil
}
