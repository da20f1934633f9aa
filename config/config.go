// Package config 加载运行时配置：默认值 -> YAML 文件 -> 环境变量 -> 校验
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"gocomposite/errors"
	"gocomposite/httpx"
)

// 消息传输类型
const (
	TransportMemory        = "memory"
	TransportNATSJetStream = "natsjetstream"
	TransportRedisStreams  = "redisstreams"
	TransportKafka         = "kafka"
)

// 负结果缓存后端
const (
	AbsentBackendMemory = "memory"
	AbsentBackendRedis  = "redis"
)

// Config 服务配置
type Config struct {
	ServiceName  string `yaml:"service_name"`
	Env          string `yaml:"env"`
	BuildVersion string `yaml:"build_version"`
	// ServicePort 对外公布的端口，用于拼接本实例地址；0 时取 HTTP.Addr 的端口
	ServicePort int `yaml:"service_port"`

	HTTP        httpx.WebConfig   `yaml:"http"`
	Downstream  DownstreamConfig  `yaml:"downstream"`
	Resilience  ResilienceConfig  `yaml:"resilience"`
	AbsentCache AbsentCacheConfig `yaml:"absent_cache"`
	Publisher   PublisherConfig   `yaml:"publisher"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Logging     LoggingConfig     `yaml:"logging"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// DownstreamConfig 下游服务地址
type DownstreamConfig struct {
	ProductURL        string `yaml:"product_url"`
	RecommendationURL string `yaml:"recommendation_url"`
	ReviewURL         string `yaml:"review_url"`
}

// ResilienceConfig 产品读取的弹性参数
type ResilienceConfig struct {
	Timeout time.Duration `yaml:"timeout"`

	RetryMaxAttempts   int           `yaml:"retry_max_attempts"`
	RetryWait          time.Duration `yaml:"retry_wait"`
	RetryBackoffFactor float64       `yaml:"retry_backoff_factor"`
	RetryMaxWait       time.Duration `yaml:"retry_max_wait"`

	BreakerFailureThreshold     uint32        `yaml:"breaker_failure_threshold"`
	BreakerFailureRateThreshold float64       `yaml:"breaker_failure_rate_threshold"`
	BreakerMinimumRequests      uint32        `yaml:"breaker_minimum_requests"`
	BreakerWindow               time.Duration `yaml:"breaker_window"`
	BreakerOpenTimeout          time.Duration `yaml:"breaker_open_timeout"`
	BreakerHalfOpenRequests     uint32        `yaml:"breaker_half_open_requests"`
}

// AbsentCacheConfig 已知不存在ID的缓存
type AbsentCacheConfig struct {
	Backend   string        `yaml:"backend"`
	Seed      []int         `yaml:"seed"`
	TTL       time.Duration `yaml:"ttl"`
	MaxSize   int           `yaml:"max_size"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// PublisherConfig 发布池
type PublisherConfig struct {
	Workers          int           `yaml:"workers"`
	QueueSize        int           `yaml:"queue_size"`
	AdmissionTimeout time.Duration `yaml:"admission_timeout"`
}

// MessagingConfig 消息传输
type MessagingConfig struct {
	Transport string      `yaml:"transport"`
	NATS      NATSConfig  `yaml:"nats"`
	Redis     RedisConfig `yaml:"redis"`
	Kafka     KafkaConfig `yaml:"kafka"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	Stream        string `yaml:"stream"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	StreamPrefix string `yaml:"stream_prefix"`
	MaxLen       int64  `yaml:"max_len"`
}

type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	TopicPrefix  string        `yaml:"topic_prefix"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

// LoggingConfig 日志
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// TracingConfig 追踪
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		ServiceName:  "product-composite",
		Env:          "production",
		BuildVersion: "dev",
		HTTP:         httpx.DefaultWebConfig(),
		Downstream: DownstreamConfig{
			ProductURL:        "http://product:80",
			RecommendationURL: "http://recommendation:80",
			ReviewURL:         "http://review:80",
		},
		Resilience: ResilienceConfig{
			Timeout:                     2 * time.Second,
			RetryMaxAttempts:            3,
			RetryWait:                   time.Second,
			RetryBackoffFactor:          1,
			BreakerFailureThreshold:     5,
			BreakerFailureRateThreshold: 50,
			BreakerMinimumRequests:      5,
			BreakerWindow:               10 * time.Second,
			BreakerOpenTimeout:          10 * time.Second,
			BreakerHalfOpenRequests:     1,
		},
		AbsentCache: AbsentCacheConfig{
			Backend: AbsentBackendMemory,
			Seed:    []int{13},
			TTL:     5 * time.Minute,
			MaxSize: 10000,
		},
		Publisher: PublisherConfig{Workers: 10, QueueSize: 100},
		Messaging: MessagingConfig{
			Transport: TransportMemory,
			NATS:      NATSConfig{URL: "nats://127.0.0.1:4222"},
			Redis:     RedisConfig{Addr: "127.0.0.1:6379"},
			Kafka:     KafkaConfig{Brokers: []string{"127.0.0.1:9092"}},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load path 为空时只使用默认值与环境变量
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "failed to read config file "+path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "failed to parse config file "+path)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeInvalidInput, key+" must be an integer")
		}
		*dst = n
		return nil
	}

	setString("HTTP_ADDR", &cfg.HTTP.Addr)
	setString("PRODUCT_SERVICE_URL", &cfg.Downstream.ProductURL)
	setString("RECOMMENDATION_SERVICE_URL", &cfg.Downstream.RecommendationURL)
	setString("REVIEW_SERVICE_URL", &cfg.Downstream.ReviewURL)
	setString("MESSAGING_TRANSPORT", &cfg.Messaging.Transport)
	setString("NATS_URL", &cfg.Messaging.NATS.URL)
	setString("REDIS_ADDR", &cfg.Messaging.Redis.Addr)
	setString("LOG_LEVEL", &cfg.Logging.Level)
	setString("APP_ENV", &cfg.Env)
	setString("BUILD_VERSION", &cfg.BuildVersion)
	setString("ABSENT_CACHE_BACKEND", &cfg.AbsentCache.Backend)

	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.Messaging.Kafka.Brokers = splitList(v)
	}
	for key, dst := range map[string]*int{
		"SERVICE_PORT":       &cfg.ServicePort,
		"PUBLISH_WORKERS":    &cfg.Publisher.Workers,
		"PUBLISH_QUEUE_SIZE": &cfg.Publisher.QueueSize,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRACING_ENABLED")); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return errors.WrapError(err, errors.ErrCodeInvalidInput, "TRACING_ENABLED must be a boolean")
		}
		cfg.Tracing.Enabled = enabled
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate 检查配置一致性
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.HTTP.Addr != "", "http.addr is required")
	check(c.Downstream.ProductURL != "", "downstream.product_url is required")
	check(c.Downstream.RecommendationURL != "", "downstream.recommendation_url is required")
	check(c.Downstream.ReviewURL != "", "downstream.review_url is required")
	check(c.Publisher.Workers > 0, "publisher.workers must be positive")
	check(c.Publisher.QueueSize > 0, "publisher.queue_size must be positive")
	check(c.Resilience.RetryMaxAttempts > 0, "resilience.retry_max_attempts must be positive")
	check(c.Resilience.Timeout >= 0, "resilience.timeout must not be negative")
	check(c.Resilience.BreakerOpenTimeout > 0, "resilience.breaker_open_timeout must be positive")
	check(c.Resilience.BreakerFailureThreshold > 0 || c.Resilience.BreakerFailureRateThreshold > 0,
		"resilience needs a breaker failure threshold or rate")
	check(c.Resilience.BreakerFailureRateThreshold <= 100, "resilience.breaker_failure_rate_threshold must be <= 100")

	switch c.Messaging.Transport {
	case TransportMemory:
	case TransportNATSJetStream:
		check(c.Messaging.NATS.URL != "", "messaging.nats.url is required")
	case TransportRedisStreams:
		check(c.Messaging.Redis.Addr != "", "messaging.redis.addr is required")
	case TransportKafka:
		check(len(c.Messaging.Kafka.Brokers) > 0, "messaging.kafka.brokers is required")
	default:
		problems = append(problems, fmt.Sprintf("unknown messaging.transport %q", c.Messaging.Transport))
	}

	switch c.AbsentCache.Backend {
	case AbsentBackendMemory:
	case AbsentBackendRedis:
		check(c.Messaging.Redis.Addr != "", "absent_cache backend redis needs messaging.redis.addr")
	default:
		problems = append(problems, fmt.Sprintf("unknown absent_cache.backend %q", c.AbsentCache.Backend))
	}

	if len(problems) > 0 {
		return errors.NewError(errors.ErrCodeInvalidInput, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment 开发环境使用 console 日志
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local":
		return true
	}
	return false
}

// ServiceAddress 本实例地址 "hostname/ip:port"
func (c Config) ServiceAddress() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%s:%s", host, hostIP(host), c.advertisedPort())
}

func (c Config) advertisedPort() string {
	if c.ServicePort > 0 {
		return strconv.Itoa(c.ServicePort)
	}
	if _, port, err := net.SplitHostPort(c.HTTP.Addr); err == nil && port != "" {
		return port
	}
	return "unknown"
}

func hostIP(host string) string {
	addrs, err := net.LookupHost(host)
	if err == nil {
		for _, a := range addrs {
			if ip := net.ParseIP(a); ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return a
			}
		}
		if len(addrs) > 0 {
			return addrs[0]
		}
	}
	return "127.0.0.1"
}
