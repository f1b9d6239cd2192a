// Package observability wires OpenTelemetry tracing into the pipeline.
// Spans go to an OTLP HTTP collector over the local network; the collector
// decides where they end up. Tracing is optional: setup failures disable
// it with a warning instead of failing startup, because a missing
// collector must never take ingestion down with it.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// DefaultEndpoint is the conventional local OTLP HTTP endpoint.
const DefaultEndpoint = "localhost:4318"

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector address (host:port).
	Endpoint string
	// Environment tags spans with the deployment environment.
	Environment string
	// ServiceName is the service name shown in the APM backend.
	ServiceName string
}

// Setup registers an OTLP exporter with Genkit's TracerProvider, so model
// calls, flows, and the pipeline's own spans share one trace tree.
//
// Returns a shutdown function that flushes pending spans; it is always
// safe to call, even when setup degraded to a no-op.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	// Genkit's TracerProvider reads the standard OTEL environment
	// variables for resource attributes.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create trace exporter, tracing disabled", "error", err)
		return func(context.Context) error { return nil }, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment)

	return tracing.TracerProvider().Shutdown, nil
}
