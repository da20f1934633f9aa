package server

import (
	"context"
	stdErrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocomposite/logging"
)

// fakeServer 记录生命周期调用顺序；block 为 true 时 Run 阻塞到 ctx 结束
type fakeServer struct {
	mu    sync.Mutex
	steps []string

	loadConfigErr error
	setupErr      error
	backgroundErr error
	runErr        error
	shutdownErr   error
	block         bool

	bgDone chan struct{}
}

func (s *fakeServer) record(step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

func (s *fakeServer) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.steps...)
}

func (s *fakeServer) Name() string { return "fake" }

func (s *fakeServer) LoadConfig() error {
	s.record("LoadConfig")
	return s.loadConfigErr
}

func (s *fakeServer) SetupDependencies(ctx context.Context) error {
	s.record("SetupDependencies")
	return s.setupErr
}

func (s *fakeServer) StartBackgroundTasks(ctx context.Context) error {
	s.record("StartBackgroundTasks")
	if s.bgDone != nil {
		go func() {
			<-ctx.Done()
			close(s.bgDone)
		}()
	}
	return s.backgroundErr
}

func (s *fakeServer) Run(ctx context.Context) error {
	s.record("Run")
	if s.block {
		<-ctx.Done()
	}
	return s.runErr
}

func (s *fakeServer) Shutdown(ctx context.Context) error {
	s.record("Shutdown")
	return s.shutdownErr
}

func newEngine(s IServer, opts ...Option) *Engine {
	opts = append([]Option{WithLogger(logging.NewNoopLogger()), WithShutdownTimeout(100 * time.Millisecond)}, opts...)
	return NewEngine(s, opts...)
}

var fullLifecycle = []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Run", "Shutdown"}

func TestEngineStart_LifecycleSuccess(t *testing.T) {
	s := &fakeServer{}
	var stopped bool
	e := newEngine(s, WithAfterStop(func(ctx context.Context) error {
		stopped = true
		return nil
	}))

	require.NoError(t, e.Start(context.Background()))

	assert.Equal(t, StateStopped, e.State())
	assert.Equal(t, fullLifecycle, s.snapshot())
	assert.True(t, stopped)
}

func TestEngineStart_ContextCancelTriggersShutdown(t *testing.T) {
	s := &fakeServer{block: true, bgDone: make(chan struct{})}
	e := newEngine(s)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	require.Eventually(t, func() bool { return e.State() == StateRunning }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop after cancellation")
	}
	assert.Equal(t, fullLifecycle, s.snapshot())

	select {
	case <-s.bgDone:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("background context was not cancelled")
	}
}

func TestEngineStart_RunErrorPropagates(t *testing.T) {
	runErr := stdErrors.New("run failed")
	s := &fakeServer{runErr: runErr}
	e := newEngine(s)

	err := e.Start(context.Background())

	require.ErrorIs(t, err, runErr)
	assert.Contains(t, err.Error(), "server execution error")
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, fullLifecycle, s.snapshot())
}

func TestEngineStart_LoadConfigErrorStopsEarly(t *testing.T) {
	cfgErr := stdErrors.New("config failed")
	s := &fakeServer{loadConfigErr: cfgErr}
	e := newEngine(s)

	err := e.Start(context.Background())

	require.ErrorIs(t, err, cfgErr)
	assert.Equal(t, StateError, e.State())
	assert.Equal(t, []string{"LoadConfig"}, s.snapshot())
}

func TestEngineStart_BackgroundFailureStillShutsDown(t *testing.T) {
	bgErr := stdErrors.New("broker unreachable")
	s := &fakeServer{backgroundErr: bgErr}
	e := newEngine(s)

	err := e.Start(context.Background())

	require.ErrorIs(t, err, bgErr)
	assert.Equal(t, []string{"LoadConfig", "SetupDependencies", "StartBackgroundTasks", "Shutdown"}, s.snapshot())
}

func TestEngineStart_ShutdownError(t *testing.T) {
	s := &fakeServer{shutdownErr: stdErrors.New("drain timed out")}
	e := newEngine(s)

	err := e.Start(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateError, e.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Running", StateRunning.String())
	assert.Equal(t, "Unknown", State(99).String())
}
