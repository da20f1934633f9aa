// Package messaging 提供出站消息的核心抽象：消息、传输层与带中间件的消息总线
package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// HeaderPartitionKey 传输头中的分区键，与事件 key 相同
const HeaderPartitionKey = "partitionKey"

// IMessage 消息接口
type IMessage interface {
	// GetID 获取消息ID
	GetID() string

	// GetType 获取消息类型（事件类型，如 CREATE / DELETE）
	GetType() string

	// GetDestination 逻辑目的地（products / recommendations / reviews）
	GetDestination() string

	// GetPartitionKey 分区键，同一键的消息应落在同一分区
	GetPartitionKey() string

	// GetTimestamp 获取时间戳
	GetTimestamp() time.Time

	// GetPayload 获取消息数据
	GetPayload() any

	// GetMetadata 获取元数据，传输层会把它们写成消息头
	GetMetadata() map[string]any
}

// Message 消息基础实现
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Destination  string         `json:"destination"`
	PartitionKey string         `json:"partitionKey"`
	Timestamp    time.Time      `json:"timestamp"`
	Payload      any            `json:"payload"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (m *Message) GetID() string           { return m.ID }
func (m *Message) GetType() string         { return m.Type }
func (m *Message) GetDestination() string  { return m.Destination }
func (m *Message) GetPartitionKey() string { return m.PartitionKey }
func (m *Message) GetTimestamp() time.Time { return m.Timestamp }
func (m *Message) GetPayload() any         { return m.Payload }

// GetMetadata 获取元数据
func (m *Message) GetMetadata() map[string]any {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	return m.Metadata
}

// SetMetadata 设置元数据
func (m *Message) SetMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// NewMessage 创建新消息
func NewMessage(messageID, messageType, destination, partitionKey string, payload any) *Message {
	return &Message{
		ID:           messageID,
		Type:         messageType,
		Destination:  destination,
		PartitionKey: partitionKey,
		Timestamp:    time.Now(),
		Payload:      payload,
		Metadata:     make(map[string]any),
	}
}

// EncodePayload 消息体只包含 payload 的 JSON；[]byte 原样返回
func EncodePayload(message IMessage) ([]byte, error) {
	switch p := message.GetPayload().(type) {
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode payload of message %s: %w", message.GetID(), err)
		}
		return data, nil
	}
}

// Headers 传输头：partitionKey 加上全部元数据（统一转为字符串）
func Headers(message IMessage) map[string]string {
	md := message.GetMetadata()
	headers := make(map[string]string, len(md)+1)
	for k, v := range md {
		if v == nil {
			continue
		}
		headers[k] = fmt.Sprint(v)
	}
	headers[HeaderPartitionKey] = message.GetPartitionKey()
	return headers
}
