// Package memory 提供进程内的出站消息传输实现
// 适用于单机运行、开发环境和测试场景
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gocomposite/messaging"
)

// DefaultRetention 每个目的地默认保留的消息数
const DefaultRetention = 1000

// MemoryTransport 内存消息传输实现
//
// 特性:
//   - 按目的地保存已发布消息，保持发布顺序
//   - 每个目的地只保留最近 retention 条
//   - 订阅者在 Publish 中同步调用，处理器报错会作为发布错误返回
//   - 并发安全
type MemoryTransport struct {
	retention int
	logs      map[string][]messaging.IMessage
	handlers  map[string][]messaging.IMessageHandler
	running   bool
	published uint64
	failed    uint64
	mutex     sync.RWMutex
}

// NewMemoryTransport 创建内存传输实例（retention<=0 时使用 DefaultRetention）
func NewMemoryTransport(retention int) *MemoryTransport {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryTransport{
		retention: retention,
		logs:      make(map[string][]messaging.IMessage),
		handlers:  make(map[string][]messaging.IMessageHandler),
	}
}

// Start 启动传输层
func (t *MemoryTransport) Start(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.running {
		return fmt.Errorf("memory transport is already running")
	}
	t.running = true
	return nil
}

// Close 关闭传输层；已保存的消息仍可读取
func (t *MemoryTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if !t.running {
		return fmt.Errorf("memory transport is not running")
	}
	t.running = false
	return nil
}

// Subscribe 订阅某个目的地
func (t *MemoryTransport) Subscribe(destination string, handler messaging.IMessageHandler) error {
	if handler == nil {
		return fmt.Errorf("handler is nil")
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.handlers[destination] = append(t.handlers[destination], handler)
	return nil
}

// Publish 发布消息
func (t *MemoryTransport) Publish(ctx context.Context, message messaging.IMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mutex.Lock()
	if !t.running {
		t.failed++
		t.mutex.Unlock()
		return fmt.Errorf("memory transport is not running")
	}
	dest := message.GetDestination()
	log := append(t.logs[dest], message)
	if len(log) > t.retention {
		log = log[len(log)-t.retention:]
	}
	t.logs[dest] = log
	t.published++
	handlers := append([]messaging.IMessageHandler(nil), t.handlers[dest]...)
	t.mutex.Unlock()

	for _, h := range handlers {
		if err := h.Handle(ctx, message); err != nil {
			t.mutex.Lock()
			t.failed++
			t.mutex.Unlock()
			return fmt.Errorf("handler %s failed for message %s: %w", h.Type(), message.GetID(), err)
		}
	}
	return nil
}

// PublishAll 按顺序发布，遇错即停
func (t *MemoryTransport) PublishAll(ctx context.Context, messages []messaging.IMessage) error {
	for _, message := range messages {
		if err := t.Publish(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

// Messages 返回某个目的地已发布消息的副本（按发布顺序）
func (t *MemoryTransport) Messages(destination string) []messaging.IMessage {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return append([]messaging.IMessage(nil), t.logs[destination]...)
}

// Reset 清空已保存的消息
func (t *MemoryTransport) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.logs = make(map[string][]messaging.IMessage)
}

// Stats 获取统计信息
func (t *MemoryTransport) Stats() messaging.TransportStats {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	destinations := make([]string, 0, len(t.logs))
	for d := range t.logs {
		destinations = append(destinations, d)
	}
	sort.Strings(destinations)

	handlerCount := 0
	for _, hs := range t.handlers {
		handlerCount += len(hs)
	}

	return messaging.TransportStats{
		Name:         "memory",
		Running:      t.running,
		Published:    t.published,
		Failed:       t.failed,
		Destinations: destinations,
		HandlerCount: handlerCount,
	}
}
