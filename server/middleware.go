package server

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/observe"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey int

const requestIDKey contextKey = iota

// RequestIDFromContext returns the id assigned by the request id middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID keeps a well-formed inbound X-Request-ID or assigns a new UUID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// recoverPanics turns a handler panic into a 500 and reports it.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}
			s.logger.Error(r.Context(), "panic recovered",
				observe.F("error", err),
				observe.F("stack", string(debug.Stack())),
				observe.F("method", r.Method),
				observe.F("path", r.URL.Path),
			)
			s.reporter.Report(r.Context(), err, map[string]string{"method": r.Method, "path": r.URL.Path})
			writeError(w, r, newAPIError(http.StatusInternalServerError, CodeInternal, "internal error"))
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		httpRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

// rateLimit enforces the caller's minute and hour budgets. It runs after
// identity resolution; a request without identity is limited by address.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	perMinute, _ := s.limiter.Limits()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := auth.IdentityFromContext(r.Context())
		if id == nil {
			id = auth.AddressIdentity(auth.ClientAddr(r, s.trustProxy))
		}

		d := s.limiter.CheckLimit(r.Context(), id.RateLimitKey())
		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(perMinute))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.ResetTime.IsZero() {
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetTime.Unix(), 10))
		}

		if !d.Allowed {
			rateLimitRejections.WithLabelValues(d.ErrorCode).Inc()
			h.Set("Retry-After", strconv.Itoa(max(1, int(d.RetryAfter(s.now()).Seconds()))))
			writeError(w, r, newAPIError(http.StatusTooManyRequests, d.ErrorCode, d.ErrorMessage))
			return
		}
		next.ServeHTTP(w, r)
	})
}
