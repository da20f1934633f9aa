package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"gocomposite/logging"
	"gocomposite/messaging"
)

// KeyCorrelationID 元数据中的关联ID，取自入站请求ID
const KeyCorrelationID = "correlation_id"

const tracerName = "gocomposite/messaging"

// TracingMiddleware 为每条出站消息开启 producer span，
// 把 W3C trace context 注入元数据（随后由传输层写成消息头），并补齐 correlation_id。
type TracingMiddleware struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// NewTracingMiddleware 使用全局 TracerProvider / Propagator
func NewTracingMiddleware() *TracingMiddleware {
	return &TracingMiddleware{
		tracer:     otel.Tracer(tracerName),
		propagator: otel.GetTextMapPropagator(),
	}
}

func (m *TracingMiddleware) Name() string { return "Tracing" }

func (m *TracingMiddleware) Handle(ctx context.Context, message messaging.IMessage, next messaging.HandlerFunc) error {
	if message == nil {
		return next(ctx, message)
	}

	ctx, span := m.tracer.Start(ctx, "publish "+message.GetDestination(),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", message.GetDestination()),
			attribute.String("messaging.message.id", message.GetID()),
			attribute.String("messaging.message.type", message.GetType()),
			attribute.String("messaging.partition_key", message.GetPartitionKey()),
		),
	)
	defer span.End()

	md := message.GetMetadata()
	if v, _ := md[KeyCorrelationID].(string); v == "" {
		if id := logging.RequestIDFromContext(ctx); id != "" {
			md[KeyCorrelationID] = id
		} else {
			md[KeyCorrelationID] = message.GetID()
		}
	}
	m.propagator.Inject(ctx, metadataCarrier(md))

	err := next(ctx, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// metadataCarrier 让消息元数据满足 propagation.TextMapCarrier
type metadataCarrier map[string]any

func (c metadataCarrier) Get(key string) string {
	v, _ := c[key].(string)
	return v
}

func (c metadataCarrier) Set(key, value string) {
	c[key] = value
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
