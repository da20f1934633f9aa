package circuitbreaker

import (
	"sync"

	"gocomposite/logging"
)

// Registry 进程级熔断器注册表，每个操作名对应一个实例
type Registry struct {
	mu        sync.Mutex
	defaults  Config
	overrides map[string]Config
	breakers  map[string]*Breaker
	logger    logging.Logger
}

// NewRegistry 创建注册表
func NewRegistry(defaults Config, logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.ComponentLogger("circuitbreaker")
	}
	return &Registry{
		defaults:  defaults,
		overrides: make(map[string]Config),
		breakers:  make(map[string]*Breaker),
		logger:    logger,
	}
}

// Configure 为指定操作设置独立配置，须在首次 Get 之前调用
func (r *Registry) Configure(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = cfg
}

// Get 返回（必要时创建）操作对应的熔断器
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg, ok := r.overrides[name]
	if !ok {
		cfg = r.defaults
	}
	b := New(name, cfg, r.logger)
	r.breakers[name] = b
	return b
}

// States 所有已创建熔断器的状态快照
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
