package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig controls the tracer provider installed by InitTracing.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	// Exporter is optional; a nil exporter installs a no-exporting provider
	// (spans are created and recorded but never shipped anywhere), which is
	// the right default for CLI/agent invocations that don't run a collector.
	Exporter sdktrace.SpanExporter
}

// InitTracing installs a global tracer provider and returns a shutdown func.
func InitTracing(cfg TracingConfig) (func(context.Context) error, error) {
	res, err := sdkresource.New(context.Background(),
		sdkresource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.Exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func tracer() trace.Tracer {
	return otel.Tracer("konarr-core")
}

// StartSpan opens a span under the konarr-core tracer.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer().Start(ctx, name)
}

// TraceIngest spans one snapshot ingestion run.
func TraceIngest(ctx context.Context, snapshotID int) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "ingest.snapshot")
	span.SetAttributes(attribute.Int("konarr.snapshot_id", snapshotID))
	return ctx, span
}

// TraceMatcher spans one matcher run over a snapshot's dependencies.
func TraceMatcher(ctx context.Context, snapshotID, dependencyCount int) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "matcher.run")
	span.SetAttributes(
		attribute.Int("konarr.snapshot_id", snapshotID),
		attribute.Int("konarr.dependency_count", dependencyCount),
	)
	return ctx, span
}

// TraceTask spans one orchestrator task execution.
func TraceTask(ctx context.Context, name string) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, "task."+name)
	return ctx, span
}

// EndWithError records err (if non-nil) on the span and ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
