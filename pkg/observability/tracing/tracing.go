// Package tracing exports OpenTelemetry spans to stdout when enabled. Spans
// started while tracing is off cost one atomic load.
package tracing

import (
    "context"
    "io"
    "sync/atomic"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    "go.opentelemetry.io/otel/sdk/resource"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
    "go.opentelemetry.io/otel/trace"
)

const tracerName = "go-spantree"

var enabled atomic.Bool

// Options configures the exporter.
type Options struct {
    Enable bool
    // Service is recorded as service.name; the server name is a good choice.
    Service string
    // Writer receives pretty-printed spans; stdout when nil.
    Writer io.Writer
}

// Setup installs a global tracer provider when o.Enable is set. It returns a
// shutdown function which should be deferred.
func Setup(o Options) (func(context.Context) error, error) {
    enabled.Store(o.Enable)
    if !o.Enable { return func(context.Context) error { return nil }, nil }
    opts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
    if o.Writer != nil { opts = append(opts, stdouttrace.WithWriter(o.Writer)) }
    exp, err := stdouttrace.New(opts...)
    if err != nil { return nil, err }
    service := o.Service
    if service == "" { service = tracerName }
    tp := sdktrace.NewTracerProvider(
        sdktrace.WithBatcher(exp),
        sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
    )
    otel.SetTracerProvider(tp)
    return func(ctx context.Context) error {
        enabled.Store(false)
        return tp.Shutdown(ctx)
    }, nil
}

// StartSpan starts a span if tracing is enabled. Attributes are given as
// key/value string pairs; an odd trailing key is ignored.
func StartSpan(ctx context.Context, name string, kv ...string) (context.Context, func()) {
    if !enabled.Load() { return ctx, func() {} }
    attrs := make([]attribute.KeyValue, 0, len(kv)/2)
    for i := 0; i+1 < len(kv); i += 2 {
        attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
    }
    ctx, span := otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
    return ctx, func() { span.End() }
}
