// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	Enabled     bool
	ServiceName string
	Environment string
	SampleRatio float64   // 0 samples every trace
	Writer      io.Writer // stdout when nil
	Pretty      bool
}

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init installs a batching stdout exporter as the global provider. With
// tracing disabled it leaves the no-op provider in place.
func Init(cfg Config) (*sdktrace.TracerProvider, Shutdown, error) {
	if !cfg.Enabled {
		return nil, noop, nil
	}

	opts := []stdouttrace.Option{}
	if cfg.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(cfg.Writer))
	}
	if cfg.Pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, noop, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, ShutdownFunc(tp), nil
}

// Tracer returns a named tracer from tp, or from the global provider when
// tracing is disabled.
func Tracer(tp *sdktrace.TracerProvider, name string) trace.Tracer {
	if tp == nil {
		return otel.Tracer(name)
	}
	return tp.Tracer(name)
}

// ShutdownFunc flushes tp; a nil provider has nothing to flush.
func ShutdownFunc(tp *sdktrace.TracerProvider) Shutdown {
	if tp == nil {
		return noop
	}
	return tp.Shutdown
}

func newResource(cfg Config) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = "comove"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment.name", cfg.Environment))
	}
	return resource.NewSchemaless(attrs...)
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
