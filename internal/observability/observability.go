// Package observability wires OpenTelemetry tracing for the chat core.
// Spans wrap the agent pipeline, collaborative fan-out, and gateway
// dispatch so slow model calls are visible per branch.
package observability

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "leaguemind"

var (
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
)

// Config holds tracing configuration.
type Config struct {
	ServiceName  string
	Enabled      bool
	ExporterType string // "otlp", "stdout", or "none"
	OTLPEndpoint string
	OTLPHeaders  map[string]string
}

// InitFromEnv initializes tracing from the standard OTEL_* environment
// variables. Missing variables disable export without disabling spans.
func InitFromEnv() error {
	return Init(Config{
		ServiceName:  getEnv("OTEL_SERVICE_NAME", defaultServiceName),
		Enabled:      getEnv("OTEL_TRACES_ENABLED", "true") == "true",
		ExporterType: getEnv("OTEL_TRACES_EXPORTER", "none"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTLPHeaders:  parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
	})
}

// Init configures the global tracer provider.
func Init(cfg Config) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	if !cfg.Enabled || cfg.ExporterType == "none" || cfg.ExporterType == "" {
		tracer = otel.GetTracerProvider().Tracer(cfg.ServiceName)
		return nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return fmt.Errorf("create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.ExporterType {
	case "otlp":
		opts := []otlptracehttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
		}
		if len(cfg.OTLPHeaders) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
		}
		exporter, err = otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
		if err != nil {
			return fmt.Errorf("create otlp exporter: %w", err)
		}
		log.Printf("[Observability] tracing enabled (otlp, endpoint %s)", cfg.OTLPEndpoint)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("create stdout exporter: %w", err)
		}
		log.Println("[Observability] tracing enabled (stdout)")
	default:
		return fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = tracerProvider.Tracer(cfg.ServiceName)
	return nil
}

// StartSpan starts a span on the configured tracer. Safe before Init; spans
// are then no-ops on the default provider.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(defaultServiceName)
	}
	return tracer.Start(ctx, name, opts...)
}

// Shutdown flushes pending spans.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	return tracerProvider.Shutdown(ctx)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseHeaders parses "k1=v1,k2=v2" into a map.
func parseHeaders(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok && k != "" {
			headers[k] = v
		}
	}
	return headers
}
