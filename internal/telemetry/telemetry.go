// Package telemetry installs the OpenTelemetry tracer provider that the
// supervisor restart spans are exported through.
package telemetry

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config is read from BEAMGO_OTEL_* environment variables.
type Config struct {
	// OTLP/HTTP endpoint URL, e.g. http://localhost:4318. Empty disables tracing.
	Endpoint string `env:"BEAMGO_OTEL_ENDPOINT"`
	Enabled  bool   `env:"BEAMGO_OTEL_ENABLED" envDefault:"true"`
	// fraction of traces kept, 0 to 1
	SampleRatio float64 `env:"BEAMGO_OTEL_SAMPLE_RATIO" envDefault:"1"`
}

// ShutdownFunc flushes pending spans.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup reads [Config] from the environment and calls [SetupWith].
func Setup(ctx context.Context, service string) (ShutdownFunc, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return noop, fmt.Errorf("parse env: %w", err)
	}
	return SetupWith(ctx, service, cfg)
}

// SetupWith registers a global tracer provider exporting to cfg.Endpoint.
// Tracing is opt-in: with no endpoint, or Enabled false, nothing is
// registered and the returned shutdown does nothing.
//
// The caller should defer the shutdown function.
func SetupWith(ctx context.Context, service string, cfg Config) (ShutdownFunc, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop, nil
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return noop, fmt.Errorf("sample ratio %v is not between 0 and 1", cfg.SampleRatio)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return noop, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		return noop, fmt.Errorf("build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}
