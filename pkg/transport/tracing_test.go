package transport

import (
	"context"
	"sync"
	"testing"

	"github.com/vango-dev/webdriverbidi/pkg/biditest"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type recordingTracer struct {
	noop.Tracer

	mu    sync.Mutex
	spans []*recordingSpan
}

func (r *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &recordingSpan{name: name, kind: cfg.SpanKind(), attrs: cfg.Attributes()}
	r.mu.Lock()
	r.spans = append(r.spans, s)
	r.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

type recordingSpan struct {
	noop.Span

	name  string
	kind  trace.SpanKind
	attrs []attribute.KeyValue

	mu     sync.Mutex
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordingSpan) End(...trace.SpanEndOption) {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) {
	s.mu.Lock()
	s.status = code
	s.mu.Unlock()
}

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.mu.Lock()
	s.attrs = append(s.attrs, kv...)
	s.mu.Unlock()
}

func (s *recordingSpan) attr(key string) (attribute.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_CommandSpans(t *testing.T) {
	tracer := &recordingTracer{}
	tr, _ := newTestTransport(t, func(cmd *protocol.CommandEnvelope) [][]byte {
		if cmd.ID == 2 {
			return [][]byte{biditest.Error(cmd.ID, "no such frame", "gone")}
		}
		return [][]byte{biditest.Success(cmd.ID, statusResult{Ready: true})}
	}, WithTracer(tracer))
	ctx := testContext(t)

	_, _ = Execute[statusResult](ctx, tr, statusCommand{}, nil)
	_, _ = Execute[statusResult](ctx, tr, statusCommand{}, nil)

	tracer.mu.Lock()
	spans := tracer.spans
	tracer.mu.Unlock()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	ok := spans[0]
	if ok.name != "bidi x.getStatus" || ok.kind != trace.SpanKindClient {
		t.Errorf("span = %q kind %v", ok.name, ok.kind)
	}
	if v, found := ok.attr("bidi.command_id"); !found || v.AsInt64() != 1 {
		t.Errorf("bidi.command_id = %v", v)
	}
	if v, found := ok.attr("bidi.method"); !found || v.AsString() != "x.getStatus" {
		t.Errorf("bidi.method = %v", v)
	}
	if !ok.ended || ok.status != codes.Ok {
		t.Errorf("success span ended=%v status=%v", ok.ended, ok.status)
	}

	failed := spans[1]
	if !failed.ended || failed.status != codes.Error || len(failed.errs) != 1 {
		t.Errorf("error span ended=%v status=%v errs=%v", failed.ended, failed.status, failed.errs)
	}
	if v, found := failed.attr("bidi.error_code"); !found || v.AsString() != "no such frame" {
		t.Errorf("bidi.error_code = %v", v)
	}
}
