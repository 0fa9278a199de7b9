package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
	tags []map[string]string
}

func (r *recordingReporter) Report(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}

func (r *recordingReporter) Flush(time.Duration) bool { return true }

func newTestMiddleware(t *testing.T, logs *bytes.Buffer, reporter ErrorReporter) (*Middleware, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	_, mp := newTestMeter(t)
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	return NewMiddleware(NewTracer(tp.Tracer("test")), metrics, NewLoggerWithWriter("debug", logs), reporter), rec
}

func TestMiddleware_SuccessPath(t *testing.T) {
	var logs bytes.Buffer
	reporter := &recordingReporter{}
	mw, rec := newTestMiddleware(t, &logs, reporter)

	wrapped := mw.Wrap(func(ctx context.Context, tool ToolMeta, params map[string]string) (any, error) {
		return params["artist"], nil
	})
	got, err := wrapped(context.Background(), ToolMeta{Name: "get_artist_info"}, map[string]string{"artist": "Cher"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Cher" {
		t.Errorf("result = %v, want Cher", got)
	}

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "tool.get_artist_info" {
		t.Errorf("span name = %q, want tool.get_artist_info", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("span status = %v, want Ok", spans[0].Status().Code)
	}
	if len(reporter.errs) != 0 {
		t.Errorf("reporter called %d times on success", len(reporter.errs))
	}
	if !strings.Contains(logs.String(), "tool execution completed") {
		t.Errorf("missing completion log, got %q", logs.String())
	}
}

func TestMiddleware_ErrorPath(t *testing.T) {
	var logs bytes.Buffer
	reporter := &recordingReporter{}
	mw, rec := newTestMiddleware(t, &logs, reporter)

	boom := errors.New("upstream exploded")
	wrapped := mw.Wrap(func(context.Context, ToolMeta, map[string]string) (any, error) {
		return nil, boom
	})
	_, err := wrapped(context.Background(), ToolMeta{Name: "get_track_info"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Status().Code != codes.Error {
		t.Fatalf("expected one errored span, got %+v", spans)
	}
	if len(reporter.errs) != 1 || reporter.tags[0]["tool"] != "get_track_info" {
		t.Errorf("reporter got %v %v", reporter.errs, reporter.tags)
	}

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, logs.String())
	}
	if entry["level"] != "error" || entry["tool.name"] != "get_track_info" {
		t.Errorf("unexpected log entry %v", entry)
	}
	if entry["error"] != "upstream exploded" {
		t.Errorf("error field = %v", entry["error"])
	}
}
