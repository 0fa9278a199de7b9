package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxDrain bounds how much of a failed response body is kept in HTTPError.
const maxDrain = 64 << 10

// HTTPRequest describes a request that can be replayed across attempts.
type HTTPRequest struct {
	Method string // default GET
	URL    string
	Header http.Header
	Body   []byte
}

// HTTPError reports a non-success HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string // status text, e.g. "Too Many Requests"
	Attempts   int

	// RetryAfter is the parsed Retry-After header of the last response.
	// WithRetry treats it as a delay floor.
	RetryAfter time.Duration

	// Body holds up to 64KiB of the last response body, which often carries
	// the upstream's own error envelope.
	Body []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("resilience: HTTP %d %s after %d attempt(s)", e.StatusCode, e.Status, e.Attempts)
}

// Retryable reports whether the status is worth retrying: 429 and 5xx.
func (e *HTTPError) Retryable() bool {
	return IsRetryableStatus(e.StatusCode)
}

// IsRetryableStatus reports whether an HTTP status should be retried.
func IsRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// FetchWithRetry performs req with client, retrying 429, 5xx and transport
// errors per cfg. Other 4xx responses fail at once.
//
// A Retry-After header (delta-seconds or HTTP-date) sets a floor under the
// backoff delay. A non-success outcome is returned as *HTTPError; transport
// failures are returned wrapped. The caller owns the returned response body.
func FetchWithRetry(ctx context.Context, client *http.Client, req HTTPRequest, cfg RetryConfig) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	shouldRetry := cfg.ShouldRetry
	cfg.ShouldRetry = func(err error, attempt int) bool {
		var he *HTTPError
		if errors.As(err, &he) {
			if !he.Retryable() {
				return false
			}
		} else if ctx.Err() != nil {
			return false
		}
		return shouldRetry == nil || shouldRetry(err, attempt)
	}

	res := WithRetry(ctx, func(ctx context.Context) (*http.Response, error) {
		return doOnce(ctx, client, method, req)
	}, cfg)
	if res.Success {
		return res.Data, nil
	}

	var he *HTTPError
	if errors.As(res.Err, &he) {
		he.Attempts = res.Attempts
		return nil, he
	}
	return nil, fmt.Errorf("resilience: %s %s failed after %d attempt(s): %w", method, redactURL(req.URL), res.Attempts, res.Err)
}

func doOnce(ctx context.Context, client *http.Client, method string, req HTTPRequest) (*http.Response, error) {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if req.Header != nil {
		httpReq.Header = req.Header.Clone()
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = redactURL(ue.URL)
		}
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrain))
	_ = resp.Body.Close()

	he := &HTTPError{StatusCode: resp.StatusCode, Status: statusText(resp), Body: snippet}
	if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
		he.RetryAfter = d
	}
	return nil, he
}

// MaxRetryAfter bounds the delay a Retry-After header can request.
const MaxRetryAfter = 24 * time.Hour

// ParseRetryAfter parses a Retry-After header value as delta-seconds or an
// HTTP-date relative to now. Dates in the past yield zero; longer delays are
// clamped to MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		if secs > int64(MaxRetryAfter/time.Second) {
			return MaxRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		return min(max(at.Sub(now), 0), MaxRetryAfter), true
	}
	return 0, false
}

func statusText(resp *http.Response) string {
	if text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))); text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

// redactURL drops the query string, which may carry API keys.
func redactURL(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
