package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"gocomposite/logging"
	"gocomposite/messaging"
)

func TestTracingMiddleware_InjectsContextAndCorrelation(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	mw := NewTracingMiddleware()
	msg := messaging.NewMessage("m-1", "CREATE", "products", "1", map[string]int{"key": 1})
	ctx := logging.WithRequestID(context.Background(), "req-1")

	var seen messaging.IMessage
	err := mw.Handle(ctx, msg, func(ctx context.Context, m messaging.IMessage) error {
		seen = m
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, seen)
	md := seen.GetMetadata()
	assert.Equal(t, "req-1", md[KeyCorrelationID])
	assert.NotEmpty(t, md["traceparent"])

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "publish products", spans[0].Name())
}

func TestTracingMiddleware_KeepsExistingCorrelation(t *testing.T) {
	mw := NewTracingMiddleware()
	msg := messaging.NewMessage("m-2", "DELETE", "reviews", "2", nil)
	msg.SetMetadata(KeyCorrelationID, "upstream")

	err := mw.Handle(context.Background(), msg, func(ctx context.Context, m messaging.IMessage) error { return nil })

	require.NoError(t, err)
	assert.Equal(t, "upstream", msg.GetMetadata()[KeyCorrelationID])
}

func TestTracingMiddleware_FallsBackToMessageID(t *testing.T) {
	mw := NewTracingMiddleware()
	msg := messaging.NewMessage("m-3", "DELETE", "reviews", "3", nil)

	_ = mw.Handle(context.Background(), msg, func(ctx context.Context, m messaging.IMessage) error { return nil })

	assert.Equal(t, "m-3", msg.GetMetadata()[KeyCorrelationID])
}
