// Package telemetry wires the daemon into an OpenTelemetry collector. Spans
// cover the three state transitions so operators can see verification and
// persistence latency per operation; when no endpoint is configured every
// call is a no-op.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/SiddharthManjul/DiffiChain/log"
)

const tracerName = "github.com/SiddharthManjul/DiffiChain"

var provider *sdktrace.TracerProvider

// Init connects the OTLP/HTTP exporter and installs the global tracer
// provider. An empty endpoint leaves the no-op provider in place.
func Init(ctx context.Context, endpoint string, serviceName string) error {
	if endpoint == "" {
		return nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		))
	if err != nil {
		return fmt.Errorf("build resource: %w", err)
	}

	provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	log.Info(log.NodeMonitoring, "Telemetry enabled", "endpoint", endpoint, "service", serviceName)
	return nil
}

// Shutdown flushes buffered spans. Safe to call when Init never ran.
func Shutdown(ctx context.Context) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// StartSpan opens a span on the ledger tracer. The returned end function
// records success or failure from the error the operation finished with.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
