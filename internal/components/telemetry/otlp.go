package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type OtlpConfig struct {
	HttpEndpoint string            `json:"http_endpoint" env:"OTLP_HTTP_ENDPOINT"`
	Headers      map[string]string `json:"headers"`
}

// Tracing owns the tracer provider installed by SetupTracing.
type Tracing struct {
	provider *trace.TracerProvider
}

func (t Tracing) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// SetupTracing installs a global tracer provider exporting spans over OTLP/HTTP.
// If no endpoint is configured the global no-op provider is left untouched.
func SetupTracing(ctx context.Context, serviceName string, cfg OtlpConfig) (Tracing, error) {
	if cfg.HttpEndpoint == "" {
		slog.Debug("tracing disabled, no otlp endpoint configured")
		return Tracing{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return Tracing{}, err
	}

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(cfg.HttpEndpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return Tracing{}, err
	}
	slog.Info(
		"tracer export initialized",
		"type", "http",
		"endpoint", cfg.HttpEndpoint,
		"headers", len(cfg.Headers) > 0,
	)

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	)
	otel.SetTracerProvider(provider)

	return Tracing{provider: provider}, nil
}
