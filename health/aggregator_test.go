package health

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/musicops/observe"
)

func fixed(name string, result Result) Checker {
	return NewCheckerFunc(name, func(context.Context) Result { return result })
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	if agg.config.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", agg.config.Timeout)
	}
}

func TestAggregator_RegisterKeepsOrder(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(fixed("kv", Healthy("ok")))
	agg.Register(fixed("lastfm", Healthy("ok")))
	agg.Register(fixed("kv", Degraded("replaced")))

	if diff := cmp.Diff([]string{"kv", "lastfm"}, agg.CheckerNames()); diff != "" {
		t.Errorf("CheckerNames() mismatch (-want +got):\n%s", diff)
	}
	result, err := agg.Check(context.Background(), "kv")
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", result.Status)
	}
}

func TestAggregator_CheckUnknown(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	if _, err := agg.Check(context.Background(), "missing"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("error = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register(fixed("a", Healthy("ok")))
	agg.Register(fixed("b", Degraded("slow")))
	agg.Register(fixed("c", Unhealthy("down", ErrCheckFailed)))

	results := agg.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	got := map[string]Status{}
	for name, r := range results {
		got[name] = r.Status
		if r.Timestamp.IsZero() {
			t.Errorf("%s: zero Timestamp", name)
		}
	}
	want := map[string]Status{"a": StatusHealthy, "b": StatusDegraded, "c": StatusUnhealthy}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	agg.Register(NewCheckerFunc("stuck", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Healthy("too late")
	}))

	results := agg.CheckAll(context.Background())
	r := results["stuck"]
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, ErrCheckTimeout) {
		t.Errorf("result = %+v, want timeout", r)
	}
}

func TestAggregator_LogsUnhealthy(t *testing.T) {
	var buf bytes.Buffer
	agg := NewAggregator(AggregatorConfig{Logger: observe.NewLoggerWithWriter("debug", &buf)})
	agg.Register(fixed("kv", Unhealthy("kv put failed", ErrCheckFailed)))
	agg.Register(fixed("ok", Healthy("fine")))

	agg.CheckAll(context.Background())

	out := buf.String()
	if !strings.Contains(out, "kv put failed") {
		t.Errorf("log missing unhealthy check: %s", out)
	}
	if strings.Contains(out, "fine") {
		t.Errorf("healthy check was logged: %s", out)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{name: "empty", results: nil, want: StatusHealthy},
		{name: "all healthy", results: map[string]Result{"a": Healthy(""), "b": Healthy("")}, want: StatusHealthy},
		{name: "degraded", results: map[string]Result{"a": Healthy(""), "b": Degraded("")}, want: StatusDegraded},
		{name: "unhealthy wins", results: map[string]Result{"a": Degraded(""), "b": Unhealthy("", nil)}, want: StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverallStatus(tt.results); got != tt.want {
				t.Errorf("OverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_String(t *testing.T) {
	tests := map[Status]string{
		StatusHealthy:   "healthy",
		StatusDegraded:  "degraded",
		StatusUnhealthy: "unhealthy",
		Status(42):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
