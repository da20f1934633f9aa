package natsjetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"

	"gocomposite/logging"
	"gocomposite/messaging"
)

// Config configures the JetStream transport.
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	Logger        logging.Logger
	Conn          *nats.Conn

	// 可选：流参数
	Retention         string // limits|interest|workqueue（默认 limits，多个消费组各自读取）
	MaxBytes          int64  // 0 表示不设置
	Replicas          int    // 0 表示默认
	MaxMsgsPerSubject int64  // 每主题最大消息数，默认 -1
}

// msgPublisher 是 nats.JetStreamContext 中发布所需的部分
type msgPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Transport implements messaging.Transport on top of NATS JetStream.
//
// 每个目的地对应主题 <SubjectPrefix><destination>；消息体为 payload JSON，
// partitionKey 与元数据写入消息头，消息ID作为 Nats-Msg-Id 供服务端去重。
type Transport struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	pub      msgPublisher
	ownsConn bool

	published atomic.Uint64
	failed    atomic.Uint64

	mu      sync.RWMutex
	running bool
}

// NewTransport builds a JetStream transport.
func NewTransport(cfg Config) *Transport {
	if cfg.Stream == "" {
		cfg.Stream = "PRODUCT_EVENTS"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "events."
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("transport.nats")
	}
	return &Transport{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

func (t *Transport) Publish(ctx context.Context, message messaging.IMessage) error {
	t.mu.RLock()
	pub := t.pub
	running := t.running
	t.mu.RUnlock()
	if !running || pub == nil {
		return errors.New("nats transport not running")
	}

	msg, err := t.buildMsg(message)
	if err != nil {
		t.failed.Add(1)
		return err
	}
	if _, err := pub.PublishMsg(msg, nats.Context(ctx), nats.MsgId(message.GetID())); err != nil {
		t.failed.Add(1)
		return fmt.Errorf("publish to %s: %w", msg.Subject, err)
	}
	t.published.Add(1)
	return nil
}

func (t *Transport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, msg := range messages {
		if err := t.Publish(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return errors.New("nats transport already running")
	}
	if err := t.ensureConnection(); err != nil {
		return err
	}
	if err := t.ensureStream(); err != nil {
		return err
	}
	t.pub = t.js
	t.running = true
	t.logger.Info(ctx, "nats transport started",
		logging.String("stream", t.cfg.Stream),
		logging.String("subjects", t.cfg.SubjectPrefix+">"))
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
	if t.ownsConn && t.conn != nil {
		if err := t.conn.Drain(); err != nil {
			t.conn.Close()
		}
	}
	t.conn = nil
	t.js = nil
	t.pub = nil
	return nil
}

func (t *Transport) Stats() messaging.TransportStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return messaging.TransportStats{
		Name:      "nats",
		Running:   t.running,
		Published: t.published.Load(),
		Failed:    t.failed.Load(),
	}
}

func (t *Transport) ensureConnection() error {
	if t.conn != nil && t.js != nil {
		return nil
	}
	if t.cfg.Conn != nil {
		t.conn = t.cfg.Conn
	} else {
		if t.cfg.URL == "" {
			t.cfg.URL = nats.DefaultURL
		}
		conn, err := nats.Connect(t.cfg.URL, nats.Name("product-composite"))
		if err != nil {
			return err
		}
		t.conn = conn
		t.ownsConn = true
	}
	js, err := t.conn.JetStream()
	if err != nil {
		return err
	}
	t.js = js
	return nil
}

func (t *Transport) ensureStream() error {
	_, err := t.js.StreamInfo(t.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	_, err = t.js.AddStream(t.streamConfig())
	return err
}

func (t *Transport) streamConfig() *nats.StreamConfig {
	retention := nats.LimitsPolicy
	switch strings.ToLower(t.cfg.Retention) {
	case "workqueue":
		retention = nats.WorkQueuePolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:              t.cfg.Stream,
		Subjects:          []string{t.cfg.SubjectPrefix + ">"},
		Retention:         retention,
		MaxMsgsPerSubject: -1,
	}
	if t.cfg.MaxMsgsPerSubject != 0 {
		sc.MaxMsgsPerSubject = t.cfg.MaxMsgsPerSubject
	}
	if t.cfg.MaxBytes > 0 {
		sc.MaxBytes = t.cfg.MaxBytes
	}
	if t.cfg.Replicas > 0 {
		sc.Replicas = t.cfg.Replicas
	}
	return sc
}

func (t *Transport) subjectName(destination string) string {
	return t.cfg.SubjectPrefix + destination
}

func (t *Transport) buildMsg(message messaging.IMessage) (*nats.Msg, error) {
	data, err := messaging.EncodePayload(message)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(t.subjectName(message.GetDestination()))
	msg.Data = data
	for k, v := range messaging.Headers(message) {
		msg.Header.Set(k, v)
	}
	return msg, nil
}
