package observe

import (
	"context"
	"time"
)

// ExecuteFunc is the signature of a tool handler.
type ExecuteFunc func(ctx context.Context, tool ToolMeta, params map[string]string) (any, error)

// Middleware wraps tool execution with tracing, metrics and logging.
//
// Contract:
//   - Concurrency: Wrap returns a thread-safe ExecuteFunc.
//   - Errors: errors from the wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	reporter ErrorReporter
}

// NewMiddleware creates a Middleware. A nil reporter disables error reporting.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, reporter ErrorReporter) *Middleware {
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		reporter: reporter,
	}
}

// Wrap wraps fn with tracing, metrics, logging and error reporting.
func (m *Middleware) Wrap(fn ExecuteFunc) ExecuteFunc {
	return func(ctx context.Context, tool ToolMeta, params map[string]string) (any, error) {
		ctx, span := m.tracer.StartSpan(ctx, tool)
		start := time.Now()

		result, err := fn(ctx, tool, params)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordExecution(ctx, tool, duration, err)

		log := m.logger.WithTool(tool)
		fields := []Field{F("duration_ms", float64(duration.Milliseconds()))}
		if err != nil {
			log.Error(ctx, "tool execution failed", append(fields, F("error", err))...)
			if m.reporter != nil {
				m.reporter.Report(ctx, err, map[string]string{"tool": tool.Name})
			}
		} else {
			log.Debug(ctx, "tool execution completed", fields...)
		}

		return result, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer, reporter ErrorReporter) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger(), reporter), nil
}
