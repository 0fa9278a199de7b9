package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/health"
)

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverPanics, requestID, instrument)

	// Probes and metrics are unauthenticated.
	health.RegisterHandlers(r, s.health)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	identify := auth.Middleware(auth.MiddlewareConfig{
		Resolver:   s.resolver,
		TrustProxy: s.trustProxy,
		OnError:    s.authError,
	})

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(identify)
	v1.Handle("/tools/{tool}", s.rateLimit(http.HandlerFunc(s.handleTool))).Methods(http.MethodGet)
	v1.HandleFunc("/ratelimit", s.handleRateLimitStatus).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(identify, auth.RequireRole(auth.RoleAdmin, s.authError))
	admin.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	admin.HandleFunc("/cache/invalidate", s.handleCacheInvalidate).Methods(http.MethodPost)
	admin.HandleFunc("/ratelimit/{identity}", s.handleRateLimitReset).Methods(http.MethodDelete)

	// Router middleware does not run for unmatched requests.
	r.NotFoundHandler = requestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, newAPIError(http.StatusNotFound, "RESOURCE_NOT_FOUND", "no such endpoint"))
	}))
	return r
}
