package telemetry

import (
	"context"

	"github.com/dejobratic/orderbus/internal/events"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dejobratic/orderbus"

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// StartEventSpan starts a span already tagged with the identity of event.
func StartEventSpan(ctx context.Context, spanName string, event events.Event, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, spanName, opts...)
	span.SetAttributes(EventAttributes(event)...)
	return ctx, span
}

// EventAttributes identifies an event on spans: id, source and detail-type.
func EventAttributes(event events.Event) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("event.id", event.ID.String()),
		attribute.String("event.source", event.Source),
		attribute.String("event.detail_type", event.DetailType),
	}
}

func AddSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

func RecordSpanError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetSpanSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		RecordSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	span.End()
}

// TraceID returns the hex trace id carried by ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the hex span id carried by ctx, or "".
func SpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}
