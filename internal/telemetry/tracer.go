// Package telemetry sets up OpenTelemetry tracing for the backend and the CLI.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer name used across the module.
const InstrumentationName = "github.com/payallenka/isl"

type options struct {
	writer io.Writer
	pretty bool
	sync   bool
}

// Option configures InitTracer.
type Option func(*options)

// WithWriter sends spans to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithCompact disables pretty printing.
func WithCompact() Option {
	return func(o *options) {
		o.pretty = false
	}
}

// WithSyncExport exports every span as it ends. Meant for short-lived CLI runs and tests.
func WithSyncExport() Option {
	return func(o *options) {
		o.sync = true
	}
}

// InitTracer initializes OpenTelemetry tracing
func InitTracer(serviceName string, logger *slog.Logger, opts ...Option) (func(context.Context) error, error) {
	o := options{writer: os.Stdout, pretty: true}
	for _, opt := range opts {
		opt(&o)
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(o.writer)}
	if o.pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}

	// Create stdout exporter for development
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	// Create resource with service name
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	export := sdktrace.WithBatcher(exporter)
	if o.sync {
		export = sdktrace.WithSyncer(exporter)
	}

	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", slog.String("service", serviceName))

	// Return shutdown function
	return tp.Shutdown, nil
}

// Tracer returns the module's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}
