package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/musicops/observe"
	"github.com/jonwraymond/musicops/resilience"
)

// DefaultBaseURL is the Last.fm API 2.0 endpoint.
const DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// maxBody caps how much of a successful response is read.
const maxBody = 8 << 20

// Config holds client configuration.
type Config struct {
	APIKey string // required

	// BaseURL overrides the API endpoint (tests).
	BaseURL string

	HTTPClient *http.Client

	// RequestsPerSecond paces outbound calls, retries included. Last.fm asks
	// for no more than 5 per second per key.
	// Default: 5
	RequestsPerSecond float64

	// Retry is the retry budget for one call. ShouldRetry is replaced by the
	// Last.fm classifier.
	// Default: resilience.DefaultRetryConfig()
	Retry *resilience.RetryConfig

	UserAgent string
	Logger    observe.Logger
}

// Client calls read-only Last.fm API methods and returns raw JSON.
type Client struct {
	apiKey    string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	userAgent string
	logger    observe.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %w", ErrInvalidConfig, err)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "musicops/1.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}

	return &Client{
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		http:      cfg.HTTPClient,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, int(cfg.RequestsPerSecond))),
		retry:     retry,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
	}, nil
}

// Call invokes an API method with params and returns the JSON body.
//
// Temporary envelope codes (11, 16, 29), 429 and 5xx responses, and
// transport failures are retried per the client's retry budget, honoring
// Retry-After. An envelope error is returned as *Error; an HTTP failure
// without an envelope as *resilience.HTTPError.
func (c *Client) Call(ctx context.Context, method string, params map[string]string) (json.RawMessage, error) {
	q := make(url.Values, len(params)+3)
	for k, v := range params {
		q.Set(k, v)
	}
	q.Set("method", method)
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")

	req := resilience.HTTPRequest{
		URL: c.baseURL + "?" + q.Encode(),
		Header: http.Header{
			"Accept":     []string{"application/json"},
			"User-Agent": []string{c.userAgent},
		},
	}

	cfg := c.retry
	cfg.ShouldRetry = func(err error, _ int) bool {
		return ctx.Err() == nil && IsRetryable(err)
	}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn(ctx, "lastfm: retrying call",
			observe.F("method", method),
			observe.F("attempt", attempt),
			observe.F("delay_ms", delay.Milliseconds()),
			observe.F("error", err),
		)
	}

	res := resilience.WithRetry(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return c.callOnce(ctx, method, req)
	}, cfg)
	if res.Success {
		c.logger.Debug(ctx, "lastfm: call succeeded", observe.F("method", method), observe.F("attempts", res.Attempts))
		return res.Data, nil
	}

	var he *resilience.HTTPError
	if errors.As(res.Err, &he) {
		he.Attempts = res.Attempts
	}
	var apiErr *Error
	if errors.As(res.Err, &apiErr) {
		return nil, apiErr
	}
	if he != nil {
		return nil, he
	}
	return nil, fmt.Errorf("lastfm: %s: %w", method, res.Err)
}

// callOnce makes exactly one paced HTTP attempt.
func (c *Client) callOnce(ctx context.Context, method string, req resilience.HTTPRequest) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPacing, err)
	}

	resp, err := resilience.FetchWithRetry(ctx, c.http, req, resilience.RetryConfig{})
	if err != nil {
		var he *resilience.HTTPError
		if errors.As(err, &he) {
			if apiErr := parseEnvelope(method, he.Body); apiErr != nil {
				apiErr.HTTPStatus = he.StatusCode
				apiErr.err = he
				return nil, apiErr
			}
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("lastfm: read %s response: %w", method, err)
	}
	if apiErr := parseEnvelope(method, body); apiErr != nil {
		apiErr.HTTPStatus = resp.StatusCode
		return nil, apiErr
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, method)
	}
	return json.RawMessage(body), nil
}
