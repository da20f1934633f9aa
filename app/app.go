// Package app 显式装配组合服务的全部组件，并实现 server.IServer 生命周期
package app

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"

	"gocomposite/composite"
	"gocomposite/config"
	"gocomposite/errors"
	"gocomposite/eventing"
	"gocomposite/httpx"
	"gocomposite/integration"
	"gocomposite/logging"
	"gocomposite/messaging"
	"gocomposite/messaging/middleware"
	"gocomposite/messaging/transport/kafka"
	"gocomposite/messaging/transport/memory"
	"gocomposite/messaging/transport/natsjetstream"
	"gocomposite/messaging/transport/redisstreams"
	"gocomposite/observability"
	"gocomposite/patterns/circuitbreaker"
	"gocomposite/patterns/retry"
	"gocomposite/resilience"
)

// 产品读取在熔断注册表中的操作名
const productOperation = "product"

// Application 组合服务
type Application struct {
	configPath string
	cfg        config.Config
	loaded     bool

	logger logging.Logger
	zap    *logging.ZapLogger

	tracingShutdown observability.ShutdownFunc
	redis           redis.UniversalClient
	transport       messaging.Transport
	publisher       *eventing.Publisher
	breakers        *circuitbreaker.Registry
	handler         http.Handler
	httpServer      *http.Server
}

// New configPath 为空时只使用默认值和环境变量
func New(configPath string) *Application {
	return &Application{configPath: configPath, logger: logging.ComponentLogger("app")}
}

// NewWithConfig 使用已加载的配置（测试与嵌入场景），LoadConfig 不再读取文件
func NewWithConfig(cfg config.Config, logger logging.Logger) *Application {
	if logger == nil {
		logger = logging.ComponentLogger("app")
	}
	return &Application{cfg: cfg, loaded: true, logger: logger}
}

func (a *Application) Name() string {
	if a.cfg.ServiceName != "" {
		return a.cfg.ServiceName
	}
	return "product-composite"
}

// Config 当前配置
func (a *Application) Config() config.Config { return a.cfg }

// Handler 已装配的 HTTP 处理器；SetupDependencies 之后可用
func (a *Application) Handler() http.Handler { return a.handler }

// LoadConfig 加载配置并安装 zap 日志
func (a *Application) LoadConfig() error {
	if a.loaded {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.loaded = true

	zl, err := logging.NewZapLogger(logging.ZapConfig{Level: cfg.Logging.Level, Development: cfg.IsDevelopment()})
	if err != nil {
		return errors.Wrap(context.Background(), err, errors.ErrCodeInternal, "failed to build logger")
	}
	a.zap = zl
	logging.SetLogger(zl)
	a.logger = zl.WithFields(logging.String("component", "app"))
	return nil
}

// SetupDependencies config -> tracing -> transport -> bus -> publisher -> breaker -> client -> reader -> service -> router
func (a *Application) SetupDependencies(ctx context.Context) error {
	cfg := a.cfg

	shutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Version:     cfg.BuildVersion,
	}, logging.ComponentLogger("observability"))
	if err != nil {
		return err
	}
	a.tracingShutdown = shutdown

	if cfg.Messaging.Transport == config.TransportRedisStreams || cfg.AbsentCache.Backend == config.AbsentBackendRedis {
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Messaging.Redis.Addr},
			Password: cfg.Messaging.Redis.Password,
			DB:       cfg.Messaging.Redis.DB,
		})
	}

	transport, err := a.newTransport()
	if err != nil {
		return err
	}
	a.transport = transport

	bus := messaging.NewMessageBus(transport)
	bus.Use(middleware.NewTracingMiddleware())
	a.publisher = eventing.NewPublisher(bus, eventing.PublisherConfig{
		Workers:          cfg.Publisher.Workers,
		QueueSize:        cfg.Publisher.QueueSize,
		AdmissionTimeout: cfg.Publisher.AdmissionTimeout,
	}, logging.ComponentLogger("eventing.publisher"))

	rc := cfg.Resilience
	a.breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold:     rc.BreakerFailureThreshold,
		FailureRateThreshold: rc.BreakerFailureRateThreshold,
		MinimumRequests:      rc.BreakerMinimumRequests,
		Window:               rc.BreakerWindow,
		OpenTimeout:          rc.BreakerOpenTimeout,
		HalfOpenMaxRequests:  rc.BreakerHalfOpenRequests,
	}, logging.ComponentLogger("circuitbreaker"))
	policy := resilience.NewPolicy(productOperation, resilience.Config{
		Timeout: rc.Timeout,
		Retry: retry.Config{
			MaxAttempts:   rc.RetryMaxAttempts,
			InitialDelay:  rc.RetryWait,
			BackoffFactor: rc.RetryBackoffFactor,
			MaxDelay:      rc.RetryMaxWait,
		},
	}, a.breakers.Get(productOperation), logging.ComponentLogger("resilience"))

	client, err := integration.NewClient(integration.ClientConfig{
		ProductURL:        cfg.Downstream.ProductURL,
		RecommendationURL: cfg.Downstream.RecommendationURL,
		ReviewURL:         cfg.Downstream.ReviewURL,
		Logger:            logging.ComponentLogger("integration.client"),
	})
	if err != nil {
		return err
	}

	absent, err := a.newAbsentCache(ctx)
	if err != nil {
		return err
	}

	serviceAddress := cfg.ServiceAddress()
	reader := integration.NewProductReader(client, policy, absent, serviceAddress, logging.ComponentLogger("integration.product"))

	svc := composite.NewService(composite.Dependencies{
		Products:        reader,
		Recommendations: client,
		Reviews:         client,
		Publisher:       a.publisher,
		ServiceAddress:  serviceAddress,
		BuildVersion:    cfg.BuildVersion,
		Logger:          logging.ComponentLogger("composite"),
	})

	a.handler = httpx.NewRouter(httpx.RouterConfig{
		Service:     svc,
		Logger:      logging.ComponentLogger("httpx"),
		ServiceName: cfg.ServiceName,
	})
	a.httpServer = httpx.NewServer(cfg.HTTP, a.handler)

	a.logger.Info(ctx, "dependencies ready",
		logging.String("transport", cfg.Messaging.Transport),
		logging.String("absent_cache", cfg.AbsentCache.Backend),
		logging.String("service_address", serviceAddress),
	)
	return nil
}

func (a *Application) newTransport() (messaging.Transport, error) {
	m := a.cfg.Messaging
	switch m.Transport {
	case config.TransportMemory:
		return memory.NewMemoryTransport(0), nil
	case config.TransportNATSJetStream:
		return natsjetstream.NewTransport(natsjetstream.Config{
			URL:           m.NATS.URL,
			Stream:        m.NATS.Stream,
			SubjectPrefix: m.NATS.SubjectPrefix,
			Logger:        logging.ComponentLogger("transport.nats"),
		}), nil
	case config.TransportRedisStreams:
		t, err := redisstreams.NewTransport(redisstreams.Config{
			Client:       a.redis,
			StreamPrefix: m.Redis.StreamPrefix,
			MaxLen:       m.Redis.MaxLen,
			Logger:       logging.ComponentLogger("transport.redis"),
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportKafka:
		return kafka.NewTransport(kafka.Config{
			Brokers:      m.Kafka.Brokers,
			TopicPrefix:  m.Kafka.TopicPrefix,
			BatchTimeout: m.Kafka.BatchTimeout,
			Logger:       logging.ComponentLogger("transport.kafka"),
		}), nil
	default:
		return nil, errors.NewInvalidInput("unknown messaging transport %q", m.Transport)
	}
}

func (a *Application) newAbsentCache(ctx context.Context) (integration.AbsentCache, error) {
	ac := a.cfg.AbsentCache
	if ac.Backend != config.AbsentBackendRedis {
		return integration.NewMemoryAbsentCache(ac.Seed, ac.TTL, ac.MaxSize), nil
	}
	c := integration.NewRedisAbsentCache(a.redis, ac.KeyPrefix, ac.TTL)
	if err := c.Seed(ctx, ac.Seed); err != nil {
		return nil, err
	}
	return c, nil
}

// StartBackgroundTasks 启动消息传输与发布池
func (a *Application) StartBackgroundTasks(ctx context.Context) error {
	if err := a.transport.Start(ctx); err != nil {
		return errors.WrapWithLog(ctx, err, errors.ErrCodeInternal, "failed to start message transport",
			logging.String("transport", a.cfg.Messaging.Transport))
	}
	if err := a.publisher.Start(ctx); err != nil {
		return err
	}
	return nil
}

// Run 阻塞提供 HTTP 服务
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}
	a.logger.Info(ctx, "http server listening", logging.String("addr", ln.Addr().String()))

	if err := a.httpServer.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 依次关闭 HTTP、排空发布池、关闭传输、刷新追踪
func (a *Application) Shutdown(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.httpServer != nil {
		keep(a.httpServer.Shutdown(ctx))
	}
	if a.publisher != nil {
		keep(a.publisher.Stop(ctx))
		stats := a.publisher.Stats()
		a.logger.Info(ctx, "publisher drained",
			logging.Any("published", stats.Published), logging.Any("failed", stats.Failed))
	}
	if a.transport != nil {
		keep(a.transport.Close())
	}
	if a.redis != nil {
		keep(a.redis.Close())
	}
	if a.breakers != nil {
		a.logger.Info(ctx, "circuit breaker states", logging.Any("states", a.breakers.States()))
	}
	if a.tracingShutdown != nil {
		keep(a.tracingShutdown(ctx))
	}
	if a.zap != nil {
		_ = a.zap.Sync()
	}
	return firstErr
}
