package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("listinginbox.service")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "MessageService."+name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span. Expected outcomes (validation, not found,
// permission) are recorded as events rather than span errors.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrPermissionDenied) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
