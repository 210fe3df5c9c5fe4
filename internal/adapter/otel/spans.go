package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "marketforge"

// StartSetupSpan starts the root span of a provisioning saga.
func StartSetupSpan(ctx context.Context, userID, subdomain string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provisioning.setup",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("tenant.subdomain", subdomain),
		),
	)
}

// StartStepSpan starts a span for a single saga step.
func StartStepSpan(ctx context.Context, step, tenantID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "provisioning."+step,
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
}

// StartResolveSpan starts a span for host resolution.
func StartResolveSpan(ctx context.Context, host string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "domain.resolve",
		trace.WithAttributes(attribute.String("http.host", host)),
	)
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
