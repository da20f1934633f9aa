package logging

import (
	"bytes"
	"context"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func captureStdLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel(""))
	assert.Equal(t, InfoLevel, ParseLevel("verbose"))
}

func TestStdLogger_FormatsFieldsAndRequestID(t *testing.T) {
	buf := captureStdLog(t)

	ctx := WithRequestID(context.Background(), "req-1")
	logger := NewStdLogger("composite").WithFields(String("module", "http"))
	logger.Warn(ctx, "publish failed", Int("productId", 7), Error(errors.New("broker down")))

	out := buf.String()
	assert.Contains(t, out, "[WARN] composite publish failed")
	assert.Contains(t, out, "request_id=req-1")
	assert.Contains(t, out, "module=http")
	assert.Contains(t, out, "productId=7")
	assert.Contains(t, out, "error=broker down")
}

func TestStdLogger_LevelFilter(t *testing.T) {
	buf := captureStdLog(t)

	logger := NewStdLogger("").WithLevel(WarnLevel)
	logger.Debug(context.Background(), "hidden")
	logger.Info(context.Background(), "hidden too")
	logger.Error(context.Background(), "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[ERROR] shown")
}

func TestStdLogger_WithFields_Immutable(t *testing.T) {
	logger := NewStdLogger("test")

	derived := logger.WithFields(String("key", "value")).(*StdLogger)

	assert.Empty(t, logger.fields)
	assert.Len(t, derived.fields, 1)
}

func TestGlobalLogger(t *testing.T) {
	prev := GetLogger()
	t.Cleanup(func() { SetLogger(prev) })

	noop := NewNoopLogger()
	SetLogger(noop)
	assert.Same(t, noop, GetLogger())

	SetLogger(nil)
	_, ok := GetLogger().(*NoopLogger)
	assert.True(t, ok)
}

func TestZapLogger_ContextAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLoggerFrom(zap.New(core)).WithFields(String("component", "publisher"))

	ctx := WithRequestID(context.Background(), "req-9")
	logger.Info(ctx, "event published", String("destination", "products"), Error(errors.New("x")))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "event published", entries[0].Message)
	assert.Equal(t, "publisher", fields["component"])
	assert.Equal(t, "products", fields["destination"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "x", fields["error"])
}

func TestZapLogger_RespectsCoreLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger := NewZapLoggerFrom(zap.New(core))

	logger.Debug(context.Background(), "debug")
	logger.Warn(context.Background(), "warn")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "warn", logs.All()[0].Message)
}

func TestNewZapLogger(t *testing.T) {
	logger, err := NewZapLogger(ZapConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	logger.Debug(context.Background(), "hello")
	_ = logger.Sync()
}
