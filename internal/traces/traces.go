// Package traces — OpenTelemetry трейсинг проверок anti-cheat движка.
package traces

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/xela07ax/spaceai-anticheat"

// Init поднимает TracerProvider с OTLP gRPC экспортером.
// Пустой endpoint — трейсинг выключен, глобальный провайдер остается no-op.
// Возвращает функцию остановки для graceful shutdown.
func Init(ctx context.Context, otlpEndpoint, serviceName string, logger *zap.Logger) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		logger.Info("tracing disabled (tracing.otlp_endpoint is empty)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", zap.String("endpoint", otlpEndpoint))
	return tp.Shutdown, nil
}

// StartSpan открывает span с именем и атрибутами.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// EndCheck закрывает span проверки, фиксируя решение и ошибку хранилища.
func EndCheck(span trace.Span, allowed bool, err error) {
	span.SetAttributes(attribute.Bool("anticheat.allowed", allowed))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func UserID(id string) attribute.KeyValue {
	return attribute.String("anticheat.user_id", id)
}

func ActionType(a string) attribute.KeyValue {
	return attribute.String("anticheat.action_type", a)
}

func ViolationType(v string) attribute.KeyValue {
	return attribute.String("anticheat.violation_type", v)
}
