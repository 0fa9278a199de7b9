// Package observe provides logging, tracing and metrics for the musicops
// resilience layer.
//
// Every component accepts an observe.Logger and an *observe.Instruments and
// falls back to no-op implementations when none are supplied, so telemetry is
// never required for correctness. NewObserver wires OpenTelemetry providers
// and exporters from a Config; the server hands the resulting logger and
// instruments to the cache, rate limiter and upstream client.
package observe
