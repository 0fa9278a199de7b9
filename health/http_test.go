package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func newTestRouter(checkers ...Checker) *mux.Router {
	agg := NewAggregator(AggregatorConfig{})
	for _, c := range checkers {
		agg.Register(c)
	}
	r := mux.NewRouter()
	RegisterHandlers(r, agg)
	return r
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestLivenessHandler(t *testing.T) {
	rec := serve(newTestRouter(fixed("kv", Unhealthy("down", nil))), http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("GET /healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		result   Result
		wantCode int
		wantBody string
	}{
		{name: "healthy", result: Healthy("ok"), wantCode: http.StatusOK, wantBody: "OK"},
		{name: "degraded", result: Degraded("slow"), wantCode: http.StatusOK, wantBody: "DEGRADED"},
		{name: "unhealthy", result: Unhealthy("down", nil), wantCode: http.StatusServiceUnavailable, wantBody: "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestRouter(fixed("kv", tt.result)), http.MethodGet, "/readyz")
			if rec.Code != tt.wantCode || rec.Body.String() != tt.wantBody {
				t.Errorf("GET /readyz = %d %q, want %d %q", rec.Code, rec.Body.String(), tt.wantCode, tt.wantBody)
			}
		})
	}
}

func TestDetailedHandler(t *testing.T) {
	r := newTestRouter(
		fixed("kv", Healthy("kv round trip ok")),
		fixed("lastfm", Unhealthy("unreachable", ErrCheckFailed)),
	)
	rec := serve(r, http.MethodGet, "/health")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body struct {
		Status string `json:"status"`
		Checks map[string]struct {
			Status  string `json:"status"`
			Message string `json:"message"`
			Error   string `json:"error"`
		} `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "unhealthy" {
		t.Errorf("status = %q, want unhealthy", body.Status)
	}
	if c := body.Checks["kv"]; c.Status != "healthy" || c.Message != "kv round trip ok" {
		t.Errorf("kv = %+v", c)
	}
	if c := body.Checks["lastfm"]; c.Status != "unhealthy" || c.Error != ErrCheckFailed.Error() {
		t.Errorf("lastfm = %+v", c)
	}
}

func TestSingleCheckHandler(t *testing.T) {
	r := newTestRouter(fixed("kv", Degraded("slow")))

	rec := serve(r, http.MethodGet, "/health/kv")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health/kv = %d, want 200", rec.Code)
	}
	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if raw["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", raw["status"])
	}

	if rec := serve(r, http.MethodGet, "/health/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /health/nope = %d, want 404", rec.Code)
	}
}
