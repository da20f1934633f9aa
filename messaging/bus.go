package messaging

import (
	"context"
	"fmt"
	"sync"

	"gocomposite/errors"
)

// HandlerFunc 中间件链的执行单元
type HandlerFunc func(ctx context.Context, message IMessage) error

// IMiddleware 出站中间件
type IMiddleware interface {
	Handle(ctx context.Context, message IMessage, next HandlerFunc) error
	Name() string
}

// IMessageBus 出站消息总线
type IMessageBus interface {
	Publish(ctx context.Context, message IMessage) error
	PublishAll(ctx context.Context, messages []IMessage) error
	Use(middleware IMiddleware)
}

// MessageBus 在 Transport 之前执行中间件链，并拒绝缺少目的地或分区键的消息。
//
// 中间件链在 Use 时组装一次，发布路径只读取快照。
type MessageBus struct {
	transport   Transport
	mutex       sync.RWMutex
	middlewares []IMiddleware
	chain       func(final HandlerFunc) HandlerFunc
}

// NewMessageBus 创建消息总线
func NewMessageBus(transport Transport) *MessageBus {
	bus := &MessageBus{transport: transport}
	bus.chain = func(final HandlerFunc) HandlerFunc { return final }
	return bus
}

// Use 追加中间件；先注册的在外层
func (bus *MessageBus) Use(middleware IMiddleware) {
	bus.mutex.Lock()
	defer bus.mutex.Unlock()

	bus.middlewares = append(bus.middlewares, middleware)
	mws := append([]IMiddleware(nil), bus.middlewares...)
	bus.chain = func(final HandlerFunc) HandlerFunc {
		next := final
		for i := len(mws) - 1; i >= 0; i-- {
			mw, inner := mws[i], next
			next = func(ctx context.Context, msg IMessage) error {
				return mw.Handle(ctx, msg, inner)
			}
		}
		return next
	}
}

// Transport 底层传输
func (bus *MessageBus) Transport() Transport {
	return bus.transport
}

// Publish 校验路由后经中间件交给 Transport
func (bus *MessageBus) Publish(ctx context.Context, message IMessage) error {
	if err := checkRoute(message); err != nil {
		return err
	}
	return bus.wrap(bus.transport.Publish)(ctx, message)
}

// PublishAll 逐条经过中间件后整体按原顺序交给 Transport；任一条被拒绝则整批不发送
func (bus *MessageBus) PublishAll(ctx context.Context, messages []IMessage) error {
	if len(messages) == 0 {
		return nil
	}

	batched := make([]IMessage, 0, len(messages))
	collect := bus.wrap(func(_ context.Context, msg IMessage) error {
		batched = append(batched, msg)
		return nil
	})
	for _, message := range messages {
		if err := checkRoute(message); err != nil {
			return err
		}
		if err := collect(ctx, message); err != nil {
			return fmt.Errorf("failed to publish message %s: %w", message.GetID(), err)
		}
	}

	if err := bus.transport.PublishAll(ctx, batched); err != nil {
		return fmt.Errorf("failed to publish batch (%d messages): %w", len(batched), err)
	}
	return nil
}

func (bus *MessageBus) wrap(final HandlerFunc) HandlerFunc {
	bus.mutex.RLock()
	chain := bus.chain
	bus.mutex.RUnlock()
	return chain(final)
}

func checkRoute(message IMessage) error {
	if message == nil {
		return errors.NewInvalidInput("nil message")
	}
	if message.GetDestination() == "" {
		return errors.NewInvalidInput("message %s has no destination", message.GetID())
	}
	if message.GetPartitionKey() == "" {
		return errors.NewInvalidInput("message %s has no partition key", message.GetID())
	}
	return nil
}
