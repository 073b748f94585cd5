// Package obs wires conduit's OpenTelemetry metrics (exported through a
// Prometheus registry) and a tracer provider, following the teacher's
// pkg/observability split between a metrics recorder and a tracer.
package obs

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Config toggles and names the observability providers.
type Config struct {
	Enabled     bool
	ServiceName string
}

// Provider bundles the meter and tracer conduit's instrumented packages
// pull instruments from, plus the Prometheus registry that exposes them.
type Provider struct {
	Registry *prometheus.Registry
	Meter    metric.Meter
	Tracer   trace.Tracer

	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// New builds a Provider. When cfg.Enabled is false, Meter and Tracer are
// no-op implementations so instrumented call sites never need a nil check.
func New(cfg Config) (*Provider, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "conduit"
	}

	if !cfg.Enabled {
		return &Provider{
			Registry: prometheus.NewRegistry(),
			Meter:    metricnoop.NewMeterProvider().Meter(name),
			Tracer:   tracenoop.NewTracerProvider().Tracer(name),
		}, nil
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("obs: prometheus exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))

	return &Provider{
		Registry:       registry,
		Meter:          meterProvider.Meter(name),
		Tracer:         tracerProvider.Tracer(name),
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

// Shutdown flushes and stops the underlying SDK providers. Safe to call on
// a disabled Provider (a no-op in that case).
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("obs: shutdown meter provider: %w", err)
		}
	}
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("obs: shutdown tracer provider: %w", err)
		}
	}
	return nil
}
