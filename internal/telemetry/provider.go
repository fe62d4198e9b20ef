// Package telemetry wires optional OpenTelemetry tracing
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nainya/memsetup"

// Resource attribute keys describing the run
const (
	AttrAction     = attribute.Key("memsetup.action")
	AttrCollection = attribute.Key("memsetup.collection")
)

// Options controls exporter setup for one run
type Options struct {
	Endpoint string
	Enabled  bool

	// Action and Collection are attached to the resource, so every span of
	// the run carries them.
	Action     string
	Collection string

	// Exporter replaces the OTLP exporter. Spans are then exported
	// synchronously and Endpoint/Enabled are ignored.
	Exporter sdktrace.SpanExporter
}

// Setup installs a global tracer provider for one run.
//
// Tracing is opt-in: with no Exporter and an empty endpoint or Enabled=false
// no provider is registered and the returned shutdown is a no-op. The
// shutdown function flushes pending spans and should be deferred by the
// caller, since the process exits right after the action.
func Setup(ctx context.Context, serviceName string, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	var export sdktrace.TracerProviderOption
	switch {
	case opts.Exporter != nil:
		export = sdktrace.WithSyncer(opts.Exporter)
	case opts.Enabled && opts.Endpoint != "":
		exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
		if err != nil {
			return noop, err
		}
		export = sdktrace.WithBatcher(exporter)
	default:
		return noop, nil
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if opts.Action != "" {
		attrs = append(attrs, AttrAction.String(opts.Action))
	}
	if opts.Collection != "" {
		attrs = append(attrs, AttrCollection.String(opts.Collection))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp.Shutdown, nil
}

// Tracer returns the module tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
