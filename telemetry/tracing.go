package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps an OpenTelemetry tracer with session helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance. Nil restores the no-op
// tracer.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return NewTracer(noop.NewTracerProvider().Tracer(""))
	}
	return globalTracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) *Tracer {
	return &Tracer{tracer: t}
}

// --- Session Spans ---

// SessionSpanOptions describes how a session ended.
type SessionSpanOptions struct {
	// Duration the session was active, zero if it never became active.
	Duration time.Duration

	// Code is the error code that ended the session.
	Code string
}

// StartSessionSpan starts a span covering one connection attempt.
func (t *Tracer) StartSessionSpan(ctx context.Context, endpoint string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "session",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("session.endpoint", endpoint),
			attribute.Int("session.attempt", attempt),
		),
	)
}

// EndSessionSpan ends a session span with its outcome.
func (t *Tracer) EndSessionSpan(span trace.Span, opts SessionSpanOptions, err error) {
	span.SetAttributes(attribute.Int64("session.duration_ms", opts.Duration.Milliseconds()))
	if opts.Code != "" {
		span.SetAttributes(attribute.String("session.error_code", opts.Code))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

// SessionEvent records a named point in the session, such as the
// connection becoming active, on the span carried by ctx.
func SessionEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
