package telemetry

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vinayprograms/nodelink/errors"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	return NewTracer(tp.Tracer("test")), rec
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestSessionSpan_Failure(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	ctx, span := tr.StartSessionSpan(context.Background(), "wss://a:1/", 3)
	SessionEvent(ctx, "active")
	tr.EndSessionSpan(span, SessionSpanOptions{Duration: 1500 * time.Millisecond, Code: "TRANSPORT"}, errors.New(errors.ErrCodeTransport, "reset"))

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.Name() != "session" {
		t.Errorf("name = %q", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status().Code)
	}

	attrs := attrMap(s.Attributes())
	if attrs["session.endpoint"].AsString() != "wss://a:1/" {
		t.Errorf("endpoint attr = %v", attrs["session.endpoint"])
	}
	if attrs["session.attempt"].AsInt64() != 3 {
		t.Errorf("attempt attr = %v", attrs["session.attempt"])
	}
	if attrs["session.duration_ms"].AsInt64() != 1500 {
		t.Errorf("duration attr = %v", attrs["session.duration_ms"])
	}
	if attrs["session.error_code"].AsString() != "TRANSPORT" {
		t.Errorf("code attr = %v", attrs["session.error_code"])
	}

	var names []string
	for _, ev := range s.Events() {
		names = append(names, ev.Name)
	}
	if len(names) < 2 || names[0] != "active" {
		t.Errorf("events = %v, want active then exception", names)
	}
}

func TestSessionSpan_OK(t *testing.T) {
	tr, rec := newRecordingTracer(t)

	_, span := tr.StartSessionSpan(context.Background(), "wss://a:1/", 1)
	tr.EndSessionSpan(span, SessionSpanOptions{}, nil)

	s := rec.Ended()[0]
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
	if _, ok := attrMap(s.Attributes())["session.error_code"]; ok {
		t.Error("error_code should be absent without a code")
	}
}

func TestGetTracer_DefaultNoop(t *testing.T) {
	SetGlobalTracer(nil)
	tr := GetTracer()
	ctx, span := tr.StartSessionSpan(context.Background(), "x", 1)
	SessionEvent(ctx, "noop")
	tr.EndSessionSpan(span, SessionSpanOptions{}, nil)
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer should produce invalid span contexts")
	}
}

func TestGetTracer_Global(t *testing.T) {
	tr, _ := newRecordingTracer(t)
	SetGlobalTracer(tr)
	defer SetGlobalTracer(nil)

	if GetTracer() != tr {
		t.Error("GetTracer should return the installed tracer")
	}
}

func TestInitProvider_Errors(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	if _, err := InitProvider(context.Background(), ProviderConfig{}); !errors.Is(err, errors.ErrCodeConfig) {
		t.Errorf("missing endpoint err = %v, want CONFIG", err)
	}
	if _, err := InitProvider(context.Background(), ProviderConfig{Endpoint: "localhost:4317", Protocol: "carrier-pigeon"}); !errors.Is(err, errors.ErrCodeConfig) {
		t.Errorf("unknown protocol err = %v, want CONFIG", err)
	}
}

func TestInitProvider_HTTP(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "")

	p, err := InitProvider(context.Background(), ProviderConfig{
		Endpoint: "http://127.0.0.1:1",
		Protocol: "http",
		Insecure: true,
		DeviceID: "528b2c07-85fc-3b8b-a07f-d348dfcfb096",
	})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if GetTracer() != p.Tracer() {
		t.Error("provider tracer should be installed globally")
	}

	attrs := attrMap(p.Resource().Attributes())
	if attrs["service.name"].AsString() != DefaultServiceName {
		t.Errorf("service.name = %v", attrs["service.name"])
	}
	if attrs["service.instance.id"].AsString() != "528b2c07-85fc-3b8b-a07f-d348dfcfb096" {
		t.Errorf("service.instance.id = %v", attrs["service.instance.id"])
	}
	if _, ok := attrs["telemetry.sdk.name"]; !ok {
		t.Error("resource should carry the SDK attributes")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	p.Shutdown(ctx)

	if GetTracer() == p.Tracer() {
		t.Error("Shutdown should restore the no-op tracer")
	}
}
