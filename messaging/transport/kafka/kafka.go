// Package kafka 基于 segmentio/kafka-go 的出站传输。
//
// 目的地映射为 topic（<TopicPrefix><destination>），partitionKey 作为消息 key，
// 配合 Hash balancer 使同一产品的事件落在同一分区，保持分区内顺序。
package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"gocomposite/logging"
	"gocomposite/messaging"
)

// Config Kafka 传输配置
type Config struct {
	Brokers      []string
	TopicPrefix  string
	BatchTimeout time.Duration
	RequiredAcks int // -1 全部副本，1 仅 leader
	Logger       logging.Logger
}

// writer 是 *kafka.Writer 中用到的部分
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Transport implements messaging.Transport on Kafka.
type Transport struct {
	cfg    Config
	logger logging.Logger
	writer writer

	published atomic.Uint64
	failed    atomic.Uint64

	mu      sync.RWMutex
	running bool
}

// NewTransport 创建 Kafka 传输；writer 在 Start 时创建
func NewTransport(cfg Config) *Transport {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafkago.RequireAll)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.kafka")
	}
	return &Transport{cfg: cfg, logger: cfg.Logger}
}

func (t *Transport) newWriter() *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(t.cfg.Brokers...),
		Balancer:               &kafkago.Hash{},
		BatchTimeout:           t.cfg.BatchTimeout,
		RequiredAcks:           kafkago.RequiredAcks(t.cfg.RequiredAcks),
		AllowAutoTopicCreation: true,
	}
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("kafka transport already running")
	}
	if t.writer == nil {
		if len(t.cfg.Brokers) == 0 {
			return errors.New("kafka brokers not configured")
		}
		t.writer = t.newWriter()
	}
	t.running = true
	t.logger.Info(ctx, "kafka transport started", logging.Any("brokers", t.cfg.Brokers))
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.writer == nil {
		return nil
	}
	err := t.writer.Close()
	t.writer = nil
	return err
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	return t.PublishAll(ctx, []messaging.IMessage{message})
}

// PublishAll 一次写入整批；kafka-go 对同一分区保持写入顺序
func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	if len(messages) == 0 {
		return nil
	}
	t.mu.RLock()
	w := t.writer
	running := t.running
	t.mu.RUnlock()
	if !running || w == nil {
		return errors.New("kafka transport not running")
	}

	batch := make([]kafkago.Message, 0, len(messages))
	for _, m := range messages {
		km, err := t.toKafka(m)
		if err != nil {
			t.failed.Add(uint64(len(messages)))
			return err
		}
		batch = append(batch, km)
	}

	if err := w.WriteMessages(ctx, batch...); err != nil {
		t.failed.Add(uint64(len(messages)))
		return fmt.Errorf("kafka write (%d messages): %w", len(batch), err)
	}
	t.published.Add(uint64(len(messages)))
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return messaging.TransportStats{
		Name:      "kafka",
		Running:   t.running,
		Published: t.published.Load(),
		Failed:    t.failed.Load(),
	}
}

func (t *Transport) toKafka(message messaging.IMessage) (kafkago.Message, error) {
	value, err := messaging.EncodePayload(message)
	if err != nil {
		return kafkago.Message{}, err
	}

	headers := messaging.Headers(message)
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kh := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		kh = append(kh, kafkago.Header{Key: k, Value: []byte(headers[k])})
	}

	return kafkago.Message{
		Topic:   t.cfg.TopicPrefix + message.GetDestination(),
		Key:     []byte(message.GetPartitionKey()),
		Value:   value,
		Headers: kh,
		Time:    message.GetTimestamp(),
	}, nil
}
