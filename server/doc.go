// Package server exposes the music API tools over HTTP.
//
// Every tool call passes through caller identification (auth), the
// per-caller fixed-window rate limiter, telemetry, and the response cache
// before reaching the upstream client:
//
//	GET    /v1/tools/{tool}            run a tool; ?refresh=true bypasses the cache
//	GET    /v1/ratelimit               remaining budget of the caller
//	GET    /admin/cache/stats          entry counts and in-flight fetches (admin)
//	POST   /admin/cache/invalidate     drop entries by type and prefix (admin)
//	DELETE /admin/ratelimit/{identity} clear a caller's counters (admin)
//	GET    /healthz /readyz /health    health probes
//	GET    /metrics                    Prometheus scrape endpoint
package server
