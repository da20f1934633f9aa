package logging

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapConfig zap 后端配置
type ZapConfig struct {
	Level       string
	Development bool
}

// ZapLogger 基于 zap 的 Logger 实现。
// context 中的请求ID和 trace/span ID 会自动作为字段输出。
type ZapLogger struct {
	base *zap.Logger
}

// NewZapLogger 生产环境输出 JSON，开发环境输出 console 格式
func NewZapLogger(cfg ZapConfig) (*ZapLogger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.TimeKey = "ts"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zc.Level = zap.NewAtomicLevelAt(zapLevel(ParseLevel(cfg.Level)))

	base, err := zc.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &ZapLogger{base: base}, nil
}

// NewZapLoggerFrom 包装已有的 *zap.Logger（测试中配合 observer 使用）
func NewZapLoggerFrom(base *zap.Logger) *ZapLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapLogger{base: base}
}

func zapLevel(l Level) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.base.Debug(msg, l.convert(ctx, fields)...)
}

func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.base.Info(msg, l.convert(ctx, fields)...)
}

func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.base.Warn(msg, l.convert(ctx, fields)...)
}

func (l *ZapLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.base.Error(msg, l.convert(ctx, fields)...)
}

func (l *ZapLogger) WithFields(fields ...Field) Logger {
	return &ZapLogger{base: l.base.With(toZap(fields)...)}
}

// Sync 刷新缓冲；stdout/stderr 上的 sync 错误忽略
func (l *ZapLogger) Sync() error {
	err := l.base.Sync()
	if err != nil && strings.Contains(err.Error(), "/dev/std") {
		return nil
	}
	return err
}

func (l *ZapLogger) convert(ctx context.Context, fields []Field) []zap.Field {
	out := toZap(fields)
	if ctx == nil {
		return out
	}
	if id := RequestIDFromContext(ctx); id != "" {
		out = append(out, zap.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	return out
}

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+3)
	for _, f := range fields {
		if err, ok := f.Value.(error); ok {
			out = append(out, zap.NamedError(f.Key, err))
			continue
		}
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
