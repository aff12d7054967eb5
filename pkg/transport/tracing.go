package transport

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/vango-dev/webdriverbidi/pkg/transport"

// defaultTracer resolves the tracer from the global provider, which is a
// no-op unless the application installs one.
func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// startSpan starts the client span covering one command from send to
// completion.
func (t *Transport) startSpan(ctx context.Context, method string, id uint64) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "bidi "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("bidi.method", method),
			attribute.Int64("bidi.command_id", int64(id)),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var ce *CommandError
		if errors.As(err, &ce) {
			span.SetAttributes(attribute.String("bidi.error_code", string(ce.Code)))
		}
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
