// Package tracing wires OpenTelemetry export for the decision path. Spans
// ride OTLP/gRPC to the collector named in configuration.
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider owns the OTLP exporter lifecycle.
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// NewTracerProvider connects the exporter and installs it as the global
// provider.
func NewTracerProvider(serviceName, serviceVersion, otlpEndpoint string) (*TracerProvider, error) {
	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("warden-core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.tp.Shutdown(ctx)
}

// Middleware opens one server span per HTTP request. Mounted only when
// tracing is enabled so the disabled path carries zero overhead.
func Middleware(serviceName string) gin.HandlerFunc {
	tracer := otel.Tracer(serviceName)
	return func(c *gin.Context) {
		spanName := c.Request.Method + " " + c.FullPath()
		if c.FullPath() == "" {
			spanName = c.Request.Method + " " + c.Request.URL.Path
		}
		ctx, span := tracer.Start(c.Request.Context(), spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.URLPath(c.Request.URL.Path),
			),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		span.SetAttributes(semconv.HTTPResponseStatusCode(c.Writer.Status()))
		if c.Writer.Status() >= 500 {
			span.SetStatus(codes.Error, "server error")
		}
		span.End()
	}
}

// DecisionTracer carries the spans of one authorization check: cache lookup,
// RBAC evaluation, and the optional policy engine round trip.
type DecisionTracer struct {
	tracer trace.Tracer
}

func NewDecisionTracer(serviceName string) *DecisionTracer {
	return &DecisionTracer{tracer: otel.Tracer(serviceName)}
}

// StartCheckSpan opens the root span of a decision request.
func (dt *DecisionTracer) StartCheckSpan(ctx context.Context, tenant, action, resourceType string) (context.Context, trace.Span) {
	return dt.tracer.Start(ctx, "authz_check",
		trace.WithAttributes(
			attribute.String("authz.tenant", tenant),
			attribute.String("authz.action", action),
			attribute.String("authz.resource_type", resourceType),
		),
	)
}

// StartCacheSpan opens a span covering one decision-cache operation.
func (dt *DecisionTracer) StartCacheSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return dt.tracer.Start(ctx, "decision_cache",
		trace.WithAttributes(attribute.String("cache.operation", operation)),
	)
}

// StartEngineSpan opens a span covering the policy engine round trip.
func (dt *DecisionTracer) StartEngineSpan(ctx context.Context, policyPath string) (context.Context, trace.Span) {
	return dt.tracer.Start(ctx, "policy_engine_evaluate",
		trace.WithAttributes(attribute.String("policy.path", policyPath)),
	)
}

// RecordDecision annotates a check span with the outcome.
func (dt *DecisionTracer) RecordDecision(span trace.Span, decision, cacheLayer string, duration time.Duration) {
	span.SetAttributes(
		attribute.String("authz.decision", decision),
		attribute.String("authz.cache_layer", cacheLayer),
		attribute.Int64("authz.duration_ms", duration.Milliseconds()),
	)
	if decision == "error" {
		span.SetStatus(codes.Error, "evaluation error")
	}
}

// RecordError marks a span failed.
func (dt *DecisionTracer) RecordError(span trace.Span, err error) {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
