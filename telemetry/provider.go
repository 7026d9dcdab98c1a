// Package telemetry exports OpenTelemetry traces for session lifecycles.
//
// Tracing is off unless an OTLP endpoint is configured. Without a provider
// GetTracer returns a no-op tracer, so callers never need to check.
package telemetry

import (
	"context"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/vinayprograms/nodelink/errors"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "nodelink"

// ProviderConfig configures the OTLP trace pipeline.
type ProviderConfig struct {
	// ServiceName is reported on every span.
	// Default: OTEL_SERVICE_NAME, then "nodelink"
	ServiceName string

	ServiceVersion string

	// DeviceID becomes service.instance.id so traces from one node group
	// together across restarts.
	DeviceID string

	// Endpoint is the collector address, e.g. "localhost:4317". A scheme
	// prefix is stripped. Default: OTEL_EXPORTER_OTLP_ENDPOINT
	Endpoint string

	// Protocol is "grpc" or "http". Default: "grpc"
	Protocol string

	// Insecure disables TLS to the collector.
	Insecure bool

	// ExportTimeout bounds each export. Zero keeps the exporter default.
	ExportTimeout time.Duration
}

// Provider owns the SDK tracer provider installed by InitProvider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	res    *resource.Resource
	tracer *Tracer
}

// InitProvider builds the exporter and tracer provider and installs the
// tracer globally. Call Shutdown to flush and uninstall it.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil, errors.Config("telemetry endpoint not configured")
	}
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	}
	if cfg.DeviceID != "" {
		attrs = append(attrs, semconv.ServiceInstanceID(cfg.DeviceID))
	}
	// Schemaless attributes merge with whatever schema the SDK detectors
	// report. OTEL_RESOURCE_ATTRIBUTES is applied last so it wins.
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "telemetry resource")
	}

	exporter, err := newExporter(ctx, endpoint, cfg)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	tracer := NewTracer(tp.Tracer(serviceName))
	SetGlobalTracer(tracer)
	return &Provider{tp: tp, res: res, tracer: tracer}, nil
}

func newExporter(ctx context.Context, endpoint string, cfg ProviderConfig) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Protocol {
	case "", "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.ExportTimeout))
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if cfg.ExportTimeout > 0 {
			opts = append(opts, otlptracehttp.WithTimeout(cfg.ExportTimeout))
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, errors.Newf(errors.ErrCodeConfig, "telemetry protocol %q is not grpc or http", cfg.Protocol)
	}
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeTransport, "otlp exporter")
	}
	return exporter, nil
}

// Tracer returns the provider's tracer.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Resource returns the resource attached to every exported span.
func (p *Provider) Resource() *resource.Resource {
	return p.res
}

// Shutdown flushes pending spans and stops the provider. The global
// tracer reverts to a no-op.
func (p *Provider) Shutdown(ctx context.Context) error {
	SetGlobalTracer(nil)
	return p.tp.Shutdown(ctx)
}

// ForceFlush exports all spans that have ended.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.tp.ForceFlush(ctx)
}
