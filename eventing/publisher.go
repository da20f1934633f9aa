package eventing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gocomposite/errors"
	"gocomposite/logging"
	"gocomposite/messaging"
)

// PublisherConfig 发布池配置
type PublisherConfig struct {
	Workers   int // 发布 worker 数
	QueueSize int // 任务队列容量

	// AdmissionTimeout 队列满时最长等待时间，0 表示一直等到调用方 context 结束
	AdmissionTimeout time.Duration
}

// DefaultPublisherConfig 10 个 worker，队列 100
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{Workers: 10, QueueSize: 100}
}

// PublisherStats 发布池统计
type PublisherStats struct {
	Running    bool   `json:"running"`
	Workers    int    `json:"workers"`
	QueueSize  int    `json:"queue_size"`
	QueueDepth int    `json:"queue_depth"`
	Accepted   uint64 `json:"accepted"`
	Rejected   uint64 `json:"rejected"`
	Published  uint64 `json:"published"`
	Failed     uint64 `json:"failed"`
}

// Publisher 出站事件的有界发布池
//
// 特性：
//   - 专用 worker，与读路径隔离，broker 变慢不会拖住读请求
//   - 队列满时调用方阻塞（背压），不丢弃
//   - 一个批次由同一个 worker 按提交顺序发布
//   - 调用方等待批次被传输层接受，错误原样返回
type Publisher struct {
	bus   messaging.IMessageBus
	cfg   PublisherConfig
	log   logging.Logger
	tasks chan *publishTask
	quit  chan struct{}
	wg    sync.WaitGroup
	mu    sync.RWMutex
	state int

	// submitters 正在等待入队的调用方；tasks 只在它们全部离开后关闭
	submitters sync.WaitGroup

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	published atomic.Uint64
	failed    atomic.Uint64
}

const (
	stateNew = iota
	stateRunning
	stateStopped
)

type publishTask struct {
	ctx      context.Context
	messages []messaging.IMessage
	done     chan error
}

// NewPublisher 创建发布池；需要调用 Start 后才接受任务
func NewPublisher(bus messaging.IMessageBus, cfg PublisherConfig, logger logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.ComponentLogger("eventing.publisher")
	}
	def := DefaultPublisherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Publisher{
		bus:   bus,
		cfg:   cfg,
		log:   logger,
		tasks: make(chan *publishTask, cfg.QueueSize),
		quit:  make(chan struct{}),
	}
}

// Start 启动 worker
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateRunning:
		return nil
	case stateStopped:
		return errors.NewError(errors.ErrCodeQueue, "publisher already stopped")
	}
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.state = stateRunning
	p.log.Info(ctx, "publisher started",
		logging.Int("workers", p.cfg.Workers),
		logging.Int("queue_size", p.cfg.QueueSize))
	return nil
}

// Stop 停止接收新任务，等待已入队任务发布完毕；ctx 结束时不再等待。
// 阻塞在入队上的调用方立即收到 QUEUE 错误。
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.state != stateRunning {
		p.state = stateStopped
		p.mu.Unlock()
		return nil
	}
	p.state = stateStopped
	close(p.quit)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.submitters.Wait()
		close(p.tasks)
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info(ctx, "publisher stopped")
		return nil
	case <-ctx.Done():
		p.log.Warn(ctx, "publisher stop timed out", logging.Int("pending", len(p.tasks)))
		return ctx.Err()
	}
}

// Publish 发布单个事件
func (p *Publisher) Publish(ctx context.Context, destination string, event Envelope) error {
	return p.PublishBatch(ctx, []Outbound{{Destination: destination, Event: event}})
}

// PublishBatch 按给定顺序发布一批事件
func (p *Publisher) PublishBatch(ctx context.Context, batch []Outbound) error {
	if len(batch) == 0 {
		return nil
	}
	messages := make([]messaging.IMessage, 0, len(batch))
	for _, ob := range batch {
		if ob.Event == nil {
			return errors.NewInvalidInput("event for destination %s is nil", ob.Destination)
		}
		messages = append(messages, toMessage(ob))
	}

	task := &publishTask{ctx: ctx, messages: messages, done: make(chan error, 1)}
	if err := p.submit(ctx, task); err != nil {
		p.rejected.Add(1)
		return err
	}
	p.accepted.Add(1)

	select {
	case err := <-task.done:
		return err
	case <-ctx.Done():
		return errors.WrapError(ctx.Err(), errors.ErrCodeQueue, "caller gave up waiting for publish")
	}
}

func (p *Publisher) submit(ctx context.Context, task *publishTask) error {
	p.mu.RLock()
	if p.state != stateRunning {
		p.mu.RUnlock()
		return errors.NewError(errors.ErrCodeQueue, "publisher is not running")
	}
	p.submitters.Add(1)
	p.mu.RUnlock()
	defer p.submitters.Done()

	// 快路径：队列未满
	select {
	case p.tasks <- task:
		return nil
	default:
	}

	p.log.Warn(ctx, "publish queue full, waiting for admission",
		logging.Int("queue_size", p.cfg.QueueSize))

	var timeout <-chan time.Time
	if p.cfg.AdmissionTimeout > 0 {
		timer := time.NewTimer(p.cfg.AdmissionTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return errors.NewError(errors.ErrCodeQueue, "publisher stopped while waiting for admission")
	case <-ctx.Done():
		return errors.WrapError(ctx.Err(), errors.ErrCodeQueue, "publish queue admission cancelled")
	case <-timeout:
		return errors.NewError(errors.ErrCodeQueue,
			fmt.Sprintf("publish queue full for %s", p.cfg.AdmissionTimeout))
	}
}

func (p *Publisher) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
	p.log.Debug(context.Background(), "publish worker exited", logging.Int("worker_id", id))
}

func (p *Publisher) run(task *publishTask) {
	// 已被接受的任务不随调用方取消而中断，但保留 trace 等上下文值
	ctx := context.WithoutCancel(task.ctx)
	err := p.bus.PublishAll(ctx, task.messages)
	if err != nil {
		p.failed.Add(uint64(len(task.messages)))
		p.log.Warn(ctx, "publish failed",
			logging.Int("messages", len(task.messages)),
			logging.Error(err))
	} else {
		p.published.Add(uint64(len(task.messages)))
		for _, m := range task.messages {
			p.log.Debug(ctx, "event published",
				logging.String("destination", m.GetDestination()),
				logging.String("event_type", m.GetType()),
				logging.String("partition_key", m.GetPartitionKey()))
		}
	}
	task.done <- err
}

// Stats 统计快照
func (p *Publisher) Stats() PublisherStats {
	p.mu.RLock()
	running := p.state == stateRunning
	p.mu.RUnlock()
	return PublisherStats{
		Running:    running,
		Workers:    p.cfg.Workers,
		QueueSize:  p.cfg.QueueSize,
		QueueDepth: len(p.tasks),
		Accepted:   p.accepted.Load(),
		Rejected:   p.rejected.Load(),
		Published:  p.published.Load(),
		Failed:     p.failed.Load(),
	}
}

func toMessage(ob Outbound) messaging.IMessage {
	msg := messaging.NewMessage(
		uuid.NewString(),
		string(ob.Event.EventType()),
		ob.Destination,
		ob.Event.PartitionKey(),
		ob.Event,
	)
	if ts := ob.Event.Timestamp(); !ts.IsZero() {
		msg.Timestamp = ts
	}
	return msg
}
