package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records execution metrics for tools.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	RecordExecution(ctx context.Context, meta ToolMeta, duration time.Duration, err error)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates tool execution metrics on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"tool.exec.total",
		metric.WithDescription("Total number of tool executions"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"tool.exec.errors",
		metric.WithDescription("Total number of tool execution errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"tool.exec.duration_ms",
		metric.WithDescription("Tool execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordExecution(ctx context.Context, meta ToolMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(meta.attributes()...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

// Cache lookup results.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"
)

// Cache fetch outcomes.
const (
	FetchOK        = "ok"
	FetchError     = "error"
	FetchCoalesced = "coalesced"
)

// Rate-limit decisions.
const (
	DecisionAllowed  = "allowed"
	DecisionMinute   = "minute"
	DecisionHour     = "hour"
	DecisionFailOpen = "failopen"
)

// Instruments are the metric instruments of the resilience layer. A nil
// *Instruments records nothing, so components can hold one unconditionally.
type Instruments struct {
	cacheLookups  metric.Int64Counter
	cacheFetches  metric.Int64Counter
	cachePending  metric.Int64UpDownCounter
	rateDecisions metric.Int64Counter
	retryAttempts metric.Int64Counter
	retryWait     metric.Float64Histogram
}

// NewInstruments creates the resilience instruments on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		in  Instruments
		err error
	)

	if in.cacheLookups, err = meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache reads by entry type and result"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}

	if in.cacheFetches, err = meter.Int64Counter(
		"cache.fetches",
		metric.WithDescription("Upstream fetches started or joined through the cache"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}

	if in.cachePending, err = meter.Int64UpDownCounter(
		"cache.pending",
		metric.WithDescription("In-flight coalesced fetches"),
		metric.WithUnit("{fetch}"),
	); err != nil {
		return nil, err
	}

	if in.rateDecisions, err = meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Rate-limit admission decisions"),
		metric.WithUnit("{decision}"),
	); err != nil {
		return nil, err
	}

	if in.retryAttempts, err = meter.Int64Counter(
		"retry.attempts",
		metric.WithDescription("Operation attempts made under a retry policy"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}

	if in.retryWait, err = meter.Float64Histogram(
		"retry.wait_ms",
		metric.WithDescription("Delay slept before a retry in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	return &in, nil
}

// CacheLookup records a cache read result for entryType.
func (in *Instruments) CacheLookup(ctx context.Context, entryType, result string) {
	if in == nil {
		return
	}
	in.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.entry_type", entryType),
		attribute.String("cache.result", result),
	))
}

// CacheFetch records a fetch outcome for entryType.
func (in *Instruments) CacheFetch(ctx context.Context, entryType, outcome string) {
	if in == nil {
		return
	}
	in.cacheFetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.entry_type", entryType),
		attribute.String("cache.outcome", outcome),
	))
}

// PendingDelta adjusts the in-flight fetch gauge.
func (in *Instruments) PendingDelta(ctx context.Context, delta int64) {
	if in == nil {
		return
	}
	in.cachePending.Add(ctx, delta)
}

// RateLimitDecision records an admission decision.
func (in *Instruments) RateLimitDecision(ctx context.Context, decision string) {
	if in == nil {
		return
	}
	in.rateDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("ratelimit.decision", decision)))
}

// RetryAttempt records one attempt and whether it failed.
func (in *Instruments) RetryAttempt(ctx context.Context, failed bool) {
	if in == nil {
		return
	}
	in.retryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("retry.failed", failed)))
}

// RetryWait records a backoff delay.
func (in *Instruments) RetryWait(ctx context.Context, d time.Duration) {
	if in == nil {
		return
	}
	in.retryWait.Record(ctx, float64(d.Milliseconds()))
}
