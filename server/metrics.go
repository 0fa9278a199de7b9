package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicops_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"route", "method", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "musicops_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "musicops_rate_limit_rejections_total",
			Help: "Total number of tool calls rejected by the caller rate limit",
		},
		[]string{"code"}, // RATE_LIMIT_MINUTE, RATE_LIMIT_HOUR
	)

	pendingSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "musicops_cache_pending_swept_total",
			Help: "Total number of stuck in-flight fetches dropped by maintenance",
		},
	)
)
