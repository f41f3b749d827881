// Package telemetry wires OpenTelemetry tracing and metrics for the
// storefront and caches the metric instruments components record into.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/itsneelabh/storefront/core"
)

// Provider owns the tracer and meter providers installed as otel globals.
type Provider struct {
	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
	logger        core.Logger
}

// ProviderOption configures Setup
type ProviderOption func(*providerOptions)

type providerOptions struct {
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
	logger       core.Logger
	version      string
}

// WithSpanExporter replaces the exporter chosen from config
func WithSpanExporter(exp sdktrace.SpanExporter) ProviderOption {
	return func(o *providerOptions) { o.spanExporter = exp }
}

// WithMetricReader replaces the reader chosen from config
func WithMetricReader(r sdkmetric.Reader) ProviderOption {
	return func(o *providerOptions) { o.metricReader = r }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) ProviderOption {
	return func(o *providerOptions) { o.logger = core.ComponentLogger(logger, "telemetry") }
}

// WithVersion sets the service.version resource attribute
func WithVersion(v string) ProviderOption {
	return func(o *providerOptions) { o.version = v }
}

// Setup builds the providers from cfg and installs them globally. A disabled
// config returns a Provider whose Shutdown is a no-op and leaves the otel
// no-op globals in place.
func Setup(ctx context.Context, cfg core.TelemetryConfig, opts ...ProviderOption) (*Provider, error) {
	o := providerOptions{logger: &core.NoOpLogger{}, version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Provider{logger: o.logger}
	if !cfg.Enabled {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(o.version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter := o.spanExporter
	if exporter == nil {
		exporter, err = newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	p.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	reader := o.metricReader
	if reader == nil && strings.EqualFold(cfg.Exporter, "otlp") {
		mexp, err := otlpmetrichttp.New(ctx, metricHTTPOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create metric exporter: %w", err)
		}
		reader = sdkmetric.NewPeriodicReader(mexp)
	}
	if reader != nil {
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(p.meterProvider)
	}

	otel.SetTracerProvider(p.traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.logger.Info("Telemetry enabled", map[string]interface{}{
		"exporter": cfg.Exporter,
		"endpoint": cfg.Endpoint,
		"metrics":  p.meterProvider != nil,
	})
	return p, nil
}

func newSpanExporter(ctx context.Context, cfg core.TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(os.Stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	case "otlp":
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unknown exporter %q: %w", cfg.Exporter, core.ErrInvalidConfiguration)
}

func metricHTTPOptions(cfg core.TelemetryConfig) []otlpmetrichttp.Option {
	var opts []otlpmetrichttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}

// MeterProvider returns the installed meter provider, or a no-op one.
func (p *Provider) MeterProvider() metric.MeterProvider {
	if p == nil || p.meterProvider == nil {
		return noop.NewMeterProvider()
	}
	return p.meterProvider
}

// Shutdown flushes and stops the providers
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.traceProvider != nil {
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
