package messaging

import (
	"context"
)

// Transport 出站消息传输接口
type Transport interface {
	Publish(ctx context.Context, message IMessage) error
	// PublishAll 按顺序发布；遇到第一个失败即返回
	PublishAll(ctx context.Context, messages []IMessage) error
	Start(ctx context.Context) error
	Close() error
	Stats() TransportStats
}

// TransportStats 传输层统计信息
type TransportStats struct {
	Name         string   `json:"name"`
	Running      bool     `json:"running"`
	Published    uint64   `json:"published"`
	Failed       uint64   `json:"failed"`
	Destinations []string `json:"destinations,omitempty"`
	HandlerCount int      `json:"handler_count,omitempty"`
}
