// Package eventing 定义出站领域事件的信封，以及把事件交给消息总线的有界发布池。
package eventing

import (
	"fmt"
	"time"
)

// EventType 事件类型
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventDelete EventType = "DELETE"
)

// 逻辑目的地，每种实体一个
const (
	DestinationProducts        = "products"
	DestinationRecommendations = "recommendations"
	DestinationReviews         = "reviews"
)

// Event 事件信封。构造后不再修改，交给发布池后由其独占。
//
// DELETE 事件的 Data 为 nil，序列化为 null。
type Event[K comparable, D any] struct {
	Type      EventType `json:"eventType"`
	Key       K         `json:"key"`
	Data      *D        `json:"data"`
	CreatedAt time.Time `json:"eventCreatedAt"`
}

// NewCreateEvent 创建 CREATE 事件
func NewCreateEvent[K comparable, D any](key K, data D) Event[K, D] {
	return Event[K, D]{Type: EventCreate, Key: key, Data: &data, CreatedAt: time.Now().UTC()}
}

// NewDeleteEvent 创建 DELETE 事件
func NewDeleteEvent[K comparable, D any](key K) Event[K, D] {
	return Event[K, D]{Type: EventDelete, Key: key, CreatedAt: time.Now().UTC()}
}

// Envelope 发布池需要的事件视图
type Envelope interface {
	EventType() EventType
	PartitionKey() string
	Timestamp() time.Time
}

func (e Event[K, D]) EventType() EventType { return e.Type }

// PartitionKey 与 key 相同
func (e Event[K, D]) PartitionKey() string { return fmt.Sprint(e.Key) }

func (e Event[K, D]) Timestamp() time.Time { return e.CreatedAt }

// Outbound 一条待发布的事件及其目的地
type Outbound struct {
	Destination string
	Event       Envelope
}
