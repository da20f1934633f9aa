package redisstreams

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"gocomposite/logging"
	"gocomposite/messaging"
)

// Stream 条目中的字段名
const (
	FieldMessageID = "messageId"
	FieldType      = "eventType"
	FieldPayload   = "payload"
	FieldCreatedAt = "createdAt"
)

// client captures the subset of go-redis commands we rely on (for easier testing).
type client interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Config describes how the Redis Streams transport should connect/behave.
type Config struct {
	Client       redis.UniversalClient
	Addr         string
	Username     string
	Password     string
	DB           int
	StreamPrefix string
	MaxLen       int64 // 近似裁剪长度，0 表示不裁剪
	Logger       logging.Logger

	// MaxPublishConcurrency 限制同时进行的 XADD 数，0 表示不限制
	MaxPublishConcurrency int
}

// Transport is a messaging.Transport backed by Redis Streams.
//
// 每个目的地一个 stream：<StreamPrefix><destination>。条目包含 partitionKey、
// 元数据以及 payload JSON，下游消费组自行读取。
type Transport struct {
	cfg       Config
	client    client
	ownClient bool
	logger    logging.Logger

	published atomic.Uint64
	failed    atomic.Uint64

	mu      sync.RWMutex
	running bool

	// 并发控制
	pubSem chan struct{}
}

// NewTransport constructs a Redis Streams transport.
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "events:"
	}

	var cl client
	var own bool
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("redis client not configured")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.redisstreams")
	}

	t := &Transport{
		cfg:       cfg,
		client:    cl,
		ownClient: own,
		logger:    cfg.Logger,
	}
	if t.cfg.MaxPublishConcurrency > 0 {
		t.pubSem = make(chan struct{}, t.cfg.MaxPublishConcurrency)
	}
	return t, nil
}

// Publish writes a single message into the destination stream.
func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	return t.publish(ctx, message)
}

// PublishAll writes messages sequentially. Redis Streams does not support multi append.
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()
	if !running {
		return errors.New("redis streams transport not running")
	}

	values, err := encodeMessage(message)
	if err != nil {
		t.failed.Add(1)
		return err
	}

	if t.pubSem != nil {
		select {
		case t.pubSem <- struct{}{}:
			defer func() { <-t.pubSem }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	args := &redis.XAddArgs{
		Stream: t.streamName(message.GetDestination()),
		Values: values,
	}
	if t.cfg.MaxLen > 0 {
		args.MaxLen = t.cfg.MaxLen
		args.Approx = true
	}
	if err := t.client.XAdd(ctx, args).Err(); err != nil {
		t.failed.Add(1)
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	t.published.Add(1)
	return nil
}

// Start 检查连通性
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("redis streams transport already running")
	}
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	t.running = true
	t.logger.Info(ctx, "redis streams transport started", logging.String("prefix", t.cfg.StreamPrefix))
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.ownClient {
		return t.client.Close()
	}
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return messaging.TransportStats{
		Name:      "redis",
		Running:   t.running,
		Published: t.published.Load(),
		Failed:    t.failed.Load(),
	}
}

func (t *Transport) streamName(destination string) string {
	return t.cfg.StreamPrefix + destination
}

// encodeMessage 元数据平铺为字段（partitionKey 在其中），payload 保持 JSON 字符串
func encodeMessage(msg messaging.IMessage) (map[string]any, error) {
	payload, err := messaging.EncodePayload(msg)
	if err != nil {
		return nil, err
	}
	ts := msg.GetTimestamp()
	if ts.IsZero() {
		ts = time.Now()
	}
	values := make(map[string]any, 8)
	for k, v := range messaging.Headers(msg) {
		values[k] = v
	}
	values[FieldMessageID] = msg.GetID()
	values[FieldType] = msg.GetType()
	values[FieldCreatedAt] = ts.UTC().Format(time.RFC3339Nano)
	values[FieldPayload] = string(payload)
	return values, nil
}
