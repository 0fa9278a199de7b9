package observe

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"
)

// ErrorReporter forwards unexpected errors to an external tracker.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
	Flush(timeout time.Duration) bool
}

// SentryConfig configures Sentry error reporting.
type SentryConfig struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

var piiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|sk)["\s:=]+[a-zA-Z0-9_-]{16,}`),
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

// ScrubPII replaces personal data and credentials in text.
func ScrubPII(text string) string {
	for _, p := range piiPatterns {
		text = p.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}

type sentryReporter struct {
	hub *sentry.Hub
}

// NewErrorReporter returns a Sentry-backed reporter, or a no-op reporter when
// cfg.DSN is empty.
func NewErrorReporter(cfg SentryConfig) (ErrorReporter, error) {
	if cfg.DSN == "" {
		return nopReporter{}, nil
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       rate,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
	if err != nil {
		return nil, fmt.Errorf("observe: failed to initialize sentry: %w", err)
	}
	return &sentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *sentryReporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := r.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if ctx != nil {
			scope.SetContext("request", sentry.Context{"canceled": ctx.Err() != nil})
		}
		hub.CaptureException(err)
	})
}

func (r *sentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}

// scrubEvent strips credentials and personal data before an event leaves the
// process.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = ScrubPII(event.Exception[i].Value)
	}
	event.Message = ScrubPII(event.Message)
	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = ScrubPII(s)
		}
	}
	if event.Request != nil {
		delete(event.Request.Headers, "Authorization")
		delete(event.Request.Headers, "Cookie")
		delete(event.Request.Headers, "X-Api-Key")
		event.Request.QueryString = ""
	}
	return event
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, error, map[string]string) {}

func (nopReporter) Flush(time.Duration) bool { return true }
