package tracer

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/mil-ad/pmbridge/internal/config"
)

const tracerName = "pmbridge"

func discardShutdown(context.Context) error { return nil }

// Setup installs the global TracerProvider and returns its shutdown. Spans
// are written to stderr; stdout carries the line protocol. ctx bounds the
// resource detection done while building the provider.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	return setup(ctx, cfg, os.Stderr)
}

func setup(ctx context.Context, cfg config.TracerConfig, w io.Writer) (func(context.Context) error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exp, err := spanExporter(cfg, w)
	if err != nil {
		return nil, err
	}
	if exp == nil {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return discardShutdown, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", tracerName)))
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("tracer resource: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// spanExporter returns nil when spans should not be recorded at all.
func spanExporter(cfg config.TracerConfig, w io.Writer) (sdktrace.SpanExporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Exporter {
	case "", "noop":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("stdout span exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("tracer: unknown exporter %q", cfg.Exporter)
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError records err on the span and marks it failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}
