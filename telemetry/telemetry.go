// Package telemetry sets up tracing export and error reporting for the API process.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/yeremiapane/bar-order-app/utils"
)

const ServiceName = "bar-order-app"

// ShutdownFunc flushes and stops a telemetry component.
type ShutdownFunc func(ctx context.Context) error

func noop(context.Context) error { return nil }

// InitTracer exports spans over OTLP/HTTP when endpoint is set. Without an endpoint the
// global no-op provider stays in place.
func InitTracer(ctx context.Context, endpoint, environment string) (ShutdownFunc, error) {
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("deployment.environment", environment),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	utils.InfoLogger.Printf("Tracing enabled, exporting to %s", endpoint)
	return tp.Shutdown, nil
}

// InitSentry enables error reporting when dsn is set.
func InitSentry(dsn, environment string) (ShutdownFunc, error) {
	if dsn == "" {
		return noop, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	}); err != nil {
		return noop, fmt.Errorf("init sentry: %w", err)
	}

	utils.InfoLogger.Println("Sentry error reporting enabled")
	return func(ctx context.Context) error {
		timeout := 2 * time.Second
		if deadline, ok := ctx.Deadline(); ok {
			timeout = time.Until(deadline)
		}
		if !sentry.Flush(timeout) {
			return fmt.Errorf("sentry flush timed out")
		}
		return nil
	}, nil
}
