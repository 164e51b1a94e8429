// Package telemetry wires observability for the control plane: an
// OpenTelemetry tracer provider for distributed tracing and a prometheus
// registry for metrics. Both degrade to no-ops when disabled so components
// can instrument unconditionally.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/liftplane/liftplane/core"
)

const tracerName = "liftplane"

// Init configures the global tracer provider from config. It returns a
// shutdown function that flushes spans; the returned function is always
// safe to call. When telemetry is disabled the global no-op provider is
// left in place.
func Init(ctx context.Context, cfg core.TelemetryConfig, logger core.Logger) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	if !cfg.Enabled {
		return noop, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return noop, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	if cfg.Endpoint != "" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithInsecure(),
		)
	} else {
		// No collector configured: spans go to stdout for local runs
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return noop, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	if logger != nil {
		logger.Info("Telemetry initialized", map[string]interface{}{
			"service":  cfg.ServiceName,
			"endpoint": cfg.Endpoint,
		})
	}

	return tp.Shutdown, nil
}

// Tracer returns the control-plane tracer. Before Init (or with telemetry
// disabled) this is the global no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
