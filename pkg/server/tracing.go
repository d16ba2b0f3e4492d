package server

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/liveview/pkg/dispatch"
)

// DefaultTracerName is the tracer sessions use when none is configured.
const DefaultTracerName = "liveview"

// Span names.
const (
	spanMount = "liveview.mount"
	spanEvent = "liveview.event"
)

// Span attribute keys.
const (
	attrSessionID = attribute.Key("liveview.session_id")
	attrView      = attribute.Key("liveview.view")
	attrTarget    = attribute.Key("liveview.target")
	attrHandler   = attribute.Key("liveview.handler")
	attrPatches   = attribute.Key("liveview.patches")
	attrReason    = attribute.Key("liveview.reason")
)

func defaultTracer() trace.Tracer {
	return otel.Tracer(DefaultTracerName)
}

func (s *Session) startMountSpan(ctx context.Context) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, spanMount,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attrSessionID.String(s.ID),
			attrView.String(s.viewName),
		),
	)
}

func (s *Session) startEventSpan(ctx context.Context, ev *dispatch.Event) (context.Context, trace.Span) {
	target := ev.Target
	if target == "" {
		target = "root"
	}
	return s.tracer.Start(ctx, spanEvent,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attrSessionID.String(s.ID),
			attrView.String(s.viewName),
			attrTarget.String(target),
			attrHandler.String(ev.Handler),
		),
	)
}

// endSpan records the outcome of a mount or event on span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if reason, ok := dispatch.ReasonOf(err); ok {
			span.SetAttributes(attrReason.String(reason.Code()))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
