package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/cache"
	"github.com/jonwraymond/musicops/lastfm"
	"github.com/jonwraymond/musicops/observe"
	"github.com/jonwraymond/musicops/resilience"
)

// refreshParam forces a cache bypass; it is not forwarded upstream.
const refreshParam = "refresh"

func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := mux.Vars(r)["tool"]
	tool, ok := lastfm.LookupTool(name)
	if !ok {
		writeError(w, r, newAPIError(http.StatusNotFound, CodeToolNotFound, "unknown tool "+strconv.Quote(name)))
		return
	}

	params := make(map[string]string)
	var opts []cache.FetchOption
	for k, vs := range r.URL.Query() {
		if len(vs) == 0 {
			continue
		}
		if k == refreshParam {
			if refresh, _ := strconv.ParseBool(vs[0]); refresh {
				opts = append(opts, cache.WithForceRefresh())
			}
			continue
		}
		if !tool.Accepts(k) {
			continue
		}
		params[k] = vs[0]
	}
	if err := tool.Validate(params); err != nil {
		writeError(w, r, classify(err))
		return
	}

	meta := observe.ToolMeta{Name: tool.Name, EntryType: string(tool.EntryType)}
	if id := auth.IdentityFromContext(ctx); id != nil {
		meta.Identity = id.RateLimitKey()
	}

	run := s.middleware.Wrap(func(ctx context.Context, meta observe.ToolMeta, params map[string]string) (any, error) {
		return s.tools.Execute(ctx, meta.Name, params, tool.Tags, s.execute, opts...)
	})
	result, err := run(ctx, meta, params)
	if err != nil {
		writeError(w, r, classify(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// execute runs one upstream call under the configured timeout.
func (s *Server) execute(ctx context.Context, tool string, params map[string]string) (any, error) {
	return s.timeout.Wrap(func(ctx context.Context) (any, error) {
		return s.executor(ctx, tool, params)
	})(ctx)
}

// RateLimitStatus is the response of GET /v1/ratelimit.
type RateLimitStatus struct {
	Identity  string `json:"identity"`
	PerMinute int    `json:"perMinute"`
	PerHour   int    `json:"perHour"`
	resilience.Usage
}

func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		id = auth.AddressIdentity(auth.ClientAddr(r, s.trustProxy))
	}
	key := id.RateLimitKey()
	perMinute, perHour := s.limiter.Limits()
	writeJSON(w, http.StatusOK, RateLimitStatus{
		Identity:  key,
		PerMinute: perMinute,
		PerHour:   perHour,
		Usage:     s.limiter.Remaining(r.Context(), key),
	})
}

// CacheStats is the response of GET /admin/cache/stats.
type CacheStats struct {
	cache.Stats
	PendingKeys []string `json:"pendingKeys"`
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CacheStats{
		Stats:       s.cache.Stats(r.Context()),
		PendingKeys: s.cache.PendingKeys(),
	})
}

// InvalidateRequest is the body of POST /admin/cache/invalidate.
type InvalidateRequest struct {
	Type   cache.EntryType `json:"type"`
	Prefix string          `json:"prefix"`
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req InvalidateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, r, newAPIError(http.StatusBadRequest, "VALIDATION_INVALID_JSON", "invalid json body"))
		return
	}
	if _, ok := cache.DefaultTTLs()[req.Type]; !ok {
		writeError(w, r, newAPIError(http.StatusBadRequest, CodeInvalidParams, "unknown entry type "+strconv.Quote(string(req.Type))))
		return
	}

	s.cache.Invalidate(r.Context(), req.Type, req.Prefix)
	s.logger.Info(r.Context(), "cache invalidated",
		observe.F("entry_type", string(req.Type)),
		observe.F("prefix", req.Prefix),
		observe.F("request_id", RequestIDFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(mux.Vars(r)["identity"])
	if err := s.limiter.ResetUserLimits(r.Context(), identity); err != nil {
		s.logger.Error(r.Context(), "rate limit reset failed", observe.F("identity", identity), observe.F("error", err))
		writeError(w, r, newAPIError(http.StatusInternalServerError, CodeInternal, "rate limit reset failed"))
		return
	}
	s.logger.Info(r.Context(), "rate limit reset", observe.F("identity", identity))
	w.WriteHeader(http.StatusNoContent)
}
