// Package telemetry wires OpenTelemetry tracing around workflow runs,
// adapted from the teacher's WorkflowTelemetry
// (internal/workflows/runtime/telemetry.go), which instruments one
// span per step execution. SPEC_FULL.md §11 drops the teacher's gRPC
// exporter (otlptracegrpc) in favor of otlptracehttp only, since the
// engine has no other gRPC surface to amortize the extra dependency
// against.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps the tracer the Executor uses to span workflow runs,
// steps, and prerequisite checks.
type Tracer struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// NewTracer configures an OTLP/HTTP exporter against endpoint. An
// empty endpoint yields a no-op tracer so telemetry is fully optional.
func NewTracer(ctx context.Context, endpoint, serviceName string) (*Tracer, error) {
	if endpoint == "" {
		return &Tracer{tracer: otel.Tracer("maverick"), shutdown: func(context.Context) error { return nil }}, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{
		tracer:   provider.Tracer("maverick"),
		shutdown: provider.Shutdown,
	}, nil
}

func (t *Tracer) Shutdown(ctx context.Context) error { return t.shutdown(ctx) }

// StartRun opens the root span for one workflow execution.
func (t *Tracer) StartRun(ctx context.Context, workflowName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "workflow.run", trace.WithAttributes(
		attribute.String("workflow.name", workflowName),
	))
}

// StartStep opens a child span for one step's execution.
func (t *Tracer) StartStep(ctx context.Context, stepPath, stepType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.path", stepPath),
		attribute.String("step.type", stepType),
	))
}

// StartPrerequisite opens a child span for one prerequisite check.
func (t *Tracer) StartPrerequisite(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "workflow.prerequisite", trace.WithAttributes(
		attribute.String("prerequisite.name", name),
	))
}
