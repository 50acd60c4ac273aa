// Package telemetry configures OpenTelemetry tracing for the HTTP server.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/benvon/voicenote-intake/internal/config"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
	"go.uber.org/zap"
)

// ServiceName identifies this service in exported spans.
const ServiceName = "voicenote-intake"

// InitTracer installs a global tracer provider exporting to endpoint over OTLP/HTTP
func InitTracer(ctx context.Context, serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// Shutdown flushes and stops the tracer provider
func Shutdown(ctx context.Context, tp *sdktrace.TracerProvider) error {
	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Setup initializes tracing when the configuration asks for it. It returns nil when
// tracing stays off; a broken exporter is logged and tracing is skipped.
func Setup(ctx context.Context, cfg *config.Config, log *zap.Logger) *sdktrace.TracerProvider {
	if !cfg.OTELEnabled {
		return nil
	}
	if cfg.OTELEndpoint == "" {
		log.Warn("otel_enabled_but_endpoint_not_configured")
		return nil
	}

	tp, err := InitTracer(ctx, ServiceName, cfg.OTELEndpoint)
	if err != nil {
		log.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		return nil
	}
	log.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
	return tp
}

// Middleware returns the mux tracing middleware for this service
func Middleware() func(http.Handler) http.Handler {
	return otelmux.Middleware(ServiceName)
}
