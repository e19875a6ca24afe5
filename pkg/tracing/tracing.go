package tracing

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/testsuite/pkg/cmdline"
	"github.com/psantana5/testsuite/pkg/logging"
)

// DefaultEndpoint is the OTLP/HTTP collector used when none is configured.
const DefaultEndpoint = "localhost:4318"

// Config holds the tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	RunID          string
	OTLPEndpoint   string // host:port of an OTLP/HTTP collector
	Enabled        bool

	// SpanProcessor, when set, receives spans instead of the OTLP exporter.
	SpanProcessor sdktrace.SpanProcessor
}

// Provider wraps the OpenTelemetry trace provider
type Provider struct {
	tp      *sdktrace.TracerProvider
	tracer  trace.Tracer
	enabled bool
}

// InitTracer initializes OpenTelemetry tracing
func InitTracer(cfg Config) (*Provider, error) {
	if !cfg.Enabled && cfg.SpanProcessor == nil {
		logging.Default().Debug("Tracing disabled")
		tp := sdktrace.NewTracerProvider()
		return &Provider{
			tp:     tp,
			tracer: tp.Tracer(cfg.ServiceName),
		}, nil
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ProcessPIDKey.Int(os.Getpid()),
			attribute.String("testsuite.run_id", cfg.RunID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	if cfg.SpanProcessor != nil {
		opts = append(opts, sdktrace.WithSpanProcessor(cfg.SpanProcessor))
	} else {
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = DefaultEndpoint
		}
		logging.Default().Info("Initializing OpenTelemetry tracing", map[string]interface{}{
			"service":  cfg.ServiceName,
			"endpoint": endpoint,
		})
		exporter, err := otlptracehttp.New(
			context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Provider{
		tp:      tp,
		tracer:  tp.Tracer(cfg.ServiceName),
		enabled: true,
	}, nil
}

// StartFromCommandLine initializes tracing from the enable-tracing and
// trace-endpoint switches. fallbackEndpoint is used when the switch is
// absent.
func StartFromCommandLine(serviceName, runID, fallbackEndpoint string) (*Provider, error) {
	cfg := Config{
		ServiceName:  serviceName,
		RunID:        runID,
		OTLPEndpoint: fallbackEndpoint,
	}
	if cl := cmdline.ForCurrentProcess(); cl != nil {
		cfg.Enabled = cl.BoolSwitch(cmdline.EnableTracing)
		if ep := cl.SwitchValue(cmdline.TraceEndpoint); ep != "" {
			cfg.OTLPEndpoint = ep
		}
	}
	return InitTracer(cfg)
}

// Enabled reports whether spans are exported anywhere.
func (p *Provider) Enabled() bool {
	return p.enabled
}

// Shutdown flushes pending spans and shuts down the tracer provider
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the tracer instance
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// StartSpan starts a new span
func (p *Provider) StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}
