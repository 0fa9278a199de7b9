package exporters

import (
	"context"
	"strings"
	"testing"
)

func TestNewTracingExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	tests := []struct {
		name    string
		wantErr string
	}{
		{"stdout", ""},
		{"none", ""},
		{"", ""},
		{"otlp", "endpoint not configured"},
		{"otlphttp", "endpoint not configured"},
		{"zipkin", "unknown exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp, err := NewTracingExporter(context.Background(), tt.name)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("NewTracingExporter(%q) error = %v, want %q", tt.name, err, tt.wantErr)
				}
				return
			}
			if err != nil || exp == nil {
				t.Fatalf("NewTracingExporter(%q) = (%v, %v), want exporter", tt.name, exp, err)
			}
		})
	}
}

func TestNewMetricsReader(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT", "")

	for _, name := range []string{"stdout", "none", ""} {
		reader, err := NewMetricsReader(context.Background(), name)
		if err != nil || reader == nil {
			t.Errorf("NewMetricsReader(%q) = (%v, %v), want reader", name, reader, err)
		}
	}

	if _, err := NewMetricsReader(context.Background(), "otlp"); err == nil {
		t.Error("NewMetricsReader(otlp) without endpoint should fail")
	}
	if _, err := NewMetricsReader(context.Background(), "statsd"); err == nil {
		t.Error("NewMetricsReader(statsd) should fail")
	}
}

func TestExporterNames(t *testing.T) {
	if !IsTracingExporter("otlphttp") || IsTracingExporter("prometheus") {
		t.Error("IsTracingExporter mismatch")
	}
	if !IsMetricsExporter("prometheus") || IsMetricsExporter("jaeger") {
		t.Error("IsMetricsExporter mismatch")
	}
}
