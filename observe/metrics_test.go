package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumWhere totals int64 sum points whose attributes include kv.
func sumWhere(t *testing.T, rm metricdata.ResourceMetrics, name string, kv attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("%s metric not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected Sum[int64], got %T", m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(kv.Key); ok && v == kv.Value {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_RecordExecution(t *testing.T) {
	reader, mp := newTestMeter(t)
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	meta := ToolMeta{Name: "get_recent_tracks", EntryType: "userRecentTracks"}
	m.RecordExecution(context.Background(), meta, 10*time.Millisecond, nil)
	m.RecordExecution(context.Background(), meta, 20*time.Millisecond, errors.New("boom"))

	rm := collect(t, reader)
	name := attribute.String("tool.name", "get_recent_tracks")
	if got := sumWhere(t, rm, "tool.exec.total", name); got != 2 {
		t.Errorf("tool.exec.total = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "tool.exec.errors", name); got != 1 {
		t.Errorf("tool.exec.errors = %d, want 1", got)
	}
	if findMetric(rm, "tool.exec.duration_ms") == nil {
		t.Error("tool.exec.duration_ms metric not found")
	}
}

func TestInstruments_Record(t *testing.T) {
	reader, mp := newTestMeter(t)
	in, err := NewInstruments(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewInstruments() error = %v", err)
	}
	ctx := context.Background()

	in.CacheLookup(ctx, "trackInfo", LookupHit)
	in.CacheLookup(ctx, "trackInfo", LookupHit)
	in.CacheLookup(ctx, "trackInfo", LookupMiss)
	in.CacheFetch(ctx, "trackInfo", FetchCoalesced)
	in.PendingDelta(ctx, 1)
	in.RateLimitDecision(ctx, DecisionFailOpen)
	in.RetryAttempt(ctx, true)
	in.RetryWait(ctx, 150*time.Millisecond)

	rm := collect(t, reader)
	if got := sumWhere(t, rm, "cache.lookups", attribute.String("cache.result", LookupHit)); got != 2 {
		t.Errorf("cache hits = %d, want 2", got)
	}
	if got := sumWhere(t, rm, "cache.lookups", attribute.String("cache.result", LookupMiss)); got != 1 {
		t.Errorf("cache misses = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "cache.fetches", attribute.String("cache.outcome", FetchCoalesced)); got != 1 {
		t.Errorf("coalesced fetches = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "ratelimit.decisions", attribute.String("ratelimit.decision", DecisionFailOpen)); got != 1 {
		t.Errorf("fail-open decisions = %d, want 1", got)
	}
	if got := sumWhere(t, rm, "retry.attempts", attribute.Bool("retry.failed", true)); got != 1 {
		t.Errorf("failed attempts = %d, want 1", got)
	}
	for _, name := range []string{"cache.pending", "retry.wait_ms"} {
		if findMetric(rm, name) == nil {
			t.Errorf("%s metric not found", name)
		}
	}
}

func TestInstruments_NilIsNoop(t *testing.T) {
	var in *Instruments
	ctx := context.Background()
	in.CacheLookup(ctx, "trackInfo", LookupHit)
	in.CacheFetch(ctx, "trackInfo", FetchOK)
	in.PendingDelta(ctx, -1)
	in.RateLimitDecision(ctx, DecisionAllowed)
	in.RetryAttempt(ctx, false)
	in.RetryWait(ctx, time.Second)
}
