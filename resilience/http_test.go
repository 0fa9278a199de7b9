package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchWithRetry_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	resp, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL}, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("FetchWithRetry() error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
}

func TestFetchWithRetry_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	sleep := &recordSleep{}
	resp, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL},
		RetryConfig{MaxRetries: 3, Sleep: sleep.Sleep})
	if err != nil {
		t.Fatalf("FetchWithRetry() error = %v", err)
	}
	resp.Body.Close()
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestFetchWithRetry_ClientErrorIsFatal(t *testing.T) {
	for _, code := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(code)
		}))

		_, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL},
			RetryConfig{MaxRetries: 3, Sleep: (&recordSleep{}).Sleep})
		srv.Close()

		var he *HTTPError
		if !errors.As(err, &he) {
			t.Fatalf("%d: error = %v, want *HTTPError", code, err)
		}
		if he.StatusCode != code || he.Attempts != 1 {
			t.Errorf("%d: HTTPError = %+v", code, he)
		}
		if hits.Load() != 1 {
			t.Errorf("%d: hits = %d, want 1", code, hits.Load())
		}
	}
}

func TestFetchWithRetry_ErrorKeepsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":10,"message":"Invalid API key"}`)
	}))
	defer srv.Close()

	_, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL}, RetryConfig{})
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if string(he.Body) != `{"error":10,"message":"Invalid API key"}` {
		t.Errorf("Body = %q", he.Body)
	}
}

func TestFetchWithRetry_ExhaustsOnServiceUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL},
		RetryConfig{MaxRetries: 2, Sleep: (&recordSleep{}).Sleep})

	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if he.StatusCode != http.StatusServiceUnavailable || he.Attempts != 3 {
		t.Errorf("HTTPError = %+v", he)
	}
	if he.Status != "Service Unavailable" {
		t.Errorf("Status = %q", he.Status)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestFetchWithRetry_HonorsRetryAfterSeconds(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	sleep := &recordSleep{}
	resp, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL},
		RetryConfig{MaxRetries: 1, InitialDelay: 10 * time.Millisecond, Sleep: sleep.Sleep})
	if err != nil {
		t.Fatalf("FetchWithRetry() error = %v", err)
	}
	resp.Body.Close()

	if len(sleep.delays) != 1 || sleep.delays[0] < 5*time.Second {
		t.Errorf("delays = %v, want one delay >= 5s", sleep.delays)
	}
}

func TestFetchWithRetry_WaitsForRetryAfter(t *testing.T) {
	if testing.Short() {
		t.Skip("waits on the wall clock")
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	start := time.Now()
	resp, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL},
		RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("FetchWithRetry() error = %v", err)
	}
	resp.Body.Close()

	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("elapsed = %v, want >= 1s", elapsed)
	}
}

func TestFetchWithRetry_RetryAfterOnFinalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{URL: srv.URL},
		RetryConfig{Sleep: (&recordSleep{}).Sleep})
	var he *HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("error = %v, want *HTTPError", err)
	}
	if he.RetryAfter != 3*time.Second || he.Attempts != 1 {
		t.Errorf("HTTPError = %+v", he)
	}
}

func TestFetchWithRetry_ReplaysRequest(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, r.Method+" "+r.Header.Get("X-Test")+" "+string(b))
		n := len(bodies)
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := FetchWithRetry(context.Background(), srv.Client(), HTTPRequest{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"X-Test": []string{"yes"}},
		Body:   []byte("payload"),
	}, RetryConfig{MaxRetries: 1, Sleep: (&recordSleep{}).Sleep})
	if err != nil {
		t.Fatalf("FetchWithRetry() error = %v", err)
	}
	resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	want := "POST yes payload"
	if len(bodies) != 2 || bodies[0] != want || bodies[1] != want {
		t.Errorf("requests = %q", bodies)
	}
}

func TestFetchWithRetry_TransportErrorRedactsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := FetchWithRetry(context.Background(), http.DefaultClient,
		HTTPRequest{URL: url + "/2.0/?api_key=s3cret&method=user.getinfo"},
		RetryConfig{MaxRetries: 1, Sleep: (&recordSleep{}).Sleep})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Errorf("error leaks query: %v", err)
	}
	if !strings.Contains(err.Error(), "2 attempt(s)") {
		t.Errorf("error = %v, want attempt count", err)
	}
}

func TestFetchWithRetry_CanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FetchWithRetry(ctx, srv.Client(), HTTPRequest{URL: srv.URL},
		RetryConfig{MaxRetries: 3, Sleep: (&recordSleep{}).Sleep})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "seconds", value: "5", want: 5 * time.Second, wantOK: true},
		{name: "zero", value: "0", want: 0, wantOK: true},
		{name: "padded", value: " 12 ", want: 12 * time.Second, wantOK: true},
		{name: "http date", value: "Fri, 01 Mar 2024 12:00:30 GMT", want: 30 * time.Second, wantOK: true},
		{name: "past date", value: "Fri, 01 Mar 2024 11:00:00 GMT", want: 0, wantOK: true},
		{name: "huge seconds", value: "9999999999999", want: MaxRetryAfter, wantOK: true},
		{name: "overflowing seconds", value: "99999999999999999", want: MaxRetryAfter, wantOK: true},
		{name: "far date", value: "Fri, 01 Mar 2124 12:00:00 GMT", want: MaxRetryAfter, wantOK: true},
		{name: "empty", value: "", wantOK: false},
		{name: "negative", value: "-3", wantOK: false},
		{name: "garbage", value: "soon", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, %v; want %v, %v", tt.value, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsRetryableStatus(t *testing.T) {
	tests := map[int]bool{
		200: false,
		400: false,
		404: false,
		429: true,
		500: true,
		502: true,
		503: true,
	}
	for code, want := range tests {
		if got := IsRetryableStatus(code); got != want {
			t.Errorf("IsRetryableStatus(%d) = %v, want %v", code, got, want)
		}
	}
}
