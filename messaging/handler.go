package messaging

import (
	"context"
)

// IMessageHandler 进程内消息处理器（内存传输的订阅者）
type IMessageHandler interface {
	// Handle 处理消息
	Handle(ctx context.Context, message IMessage) error

	// Type 返回处理器类型（用于日志和调试）
	Type() string
}

// HandlerFuncAdapter 把函数适配为 IMessageHandler
type HandlerFuncAdapter struct {
	Name string
	Fn   HandlerFunc
}

func (h HandlerFuncAdapter) Handle(ctx context.Context, message IMessage) error {
	return h.Fn(ctx, message)
}

func (h HandlerFuncAdapter) Type() string { return h.Name }
