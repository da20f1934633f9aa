// Package observability 初始化 OpenTelemetry 追踪
package observability

import (
	"context"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"gocomposite/errors"
	"gocomposite/logging"
)

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Environment string
	Version     string

	// Writer stdout 导出器的输出目标，nil 表示 os.Stdout
	Writer io.Writer
}

// ShutdownFunc 刷新并关闭 TracerProvider
type ShutdownFunc func(context.Context) error

// InitTracing 安装全局 TracerProvider 与 W3C 传播器。
// 未启用时只安装传播器，span 由 otel 默认的 no-op provider 处理。
func InitTracing(ctx context.Context, cfg TracingConfig, logger logging.Logger) (ShutdownFunc, error) {
	if logger == nil {
		logger = logging.ComponentLogger("observability")
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "product-composite"
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", cfg.Version),
		attribute.String("build.version", cfg.Version),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		logger.Warn(ctx, "otel resource init failed (continuing)", logging.Error(err))
	}

	opts := []stdouttrace.Option{}
	if cfg.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInternal, "failed to create trace exporter")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info(ctx, "otel tracing initialized", logging.String("service", serviceName))
	return tp.Shutdown, nil
}
