package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer of spans started through this package
const TracerName = "medrx-backend"

// Span attribute keys shared by the fulfillment, inventory and alert paths
var (
	SpanAttrRequestID    = attribute.Key("fulfillment.request_id")
	SpanAttrFacilityID   = attribute.Key("facility_id")
	SpanAttrMedicationID = attribute.Key("medication_id")
	SpanAttrBatchID      = attribute.Key("batch_id")
	SpanAttrQuantity     = attribute.Key("quantity")
	SpanAttrAttempt      = attribute.Key("attempt")
	SpanAttrOutcome      = attribute.Key("outcome")
	SpanAttrEventType    = attribute.Key("event.type")
	SpanAttrEventID      = attribute.Key("event.id")
	SpanAttrHTTPRequest  = attribute.Key("http.request_id")
	SpanAttrActorID      = attribute.Key("actor.id")
)

func start(ctx context.Context, name string, kind trace.SpanKind, attrs []attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// StartSpan starts an internal span on the global provider. The caller ends
// it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, name, trace.SpanKindInternal, attrs)
}

// StartServiceSpan starts an internal span named service.operation, such as
// "inventory.restock"
func StartServiceSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, service+"."+operation, trace.SpanKindInternal, attrs)
}

// StartConsumerSpan starts a span for handling a delivered event
func StartConsumerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return start(ctx, name, trace.SpanKindConsumer, attrs)
}

// AddEvent adds a timestamped event to span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records err and marks span failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks span successful
func SetOK(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}
