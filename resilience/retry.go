package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jonwraymond/musicops/observe"
)

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt. Zero
	// disables retries; use DefaultRetryConfig for the standard budget.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	// Default: 1s
	InitialDelay time.Duration

	// MaxDelay caps the backoff before jitter.
	// Default: 30s
	MaxDelay time.Duration

	// Multiplier is the exponential growth factor.
	// Default: 2.0
	Multiplier float64

	// JitterFraction adds up to this fraction of the delay at random.
	// Default: 0.1. Negative disables jitter.
	JitterFraction float64

	// ShouldRetry decides whether a failed attempt is retried. attempt is
	// the 1-based number of the attempt that failed.
	// Default: retry everything except context cancellation.
	ShouldRetry func(err error, attempt int) bool

	// OnRetry is called before sleeping ahead of each retry.
	OnRetry func(attempt int, err error, delay time.Duration)

	// Sleep waits for d or until ctx ends. Default: a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Instruments *observe.Instruments
}

// DefaultRetryConfig returns 3 retries starting at 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFraction == 0 {
		c.JitterFraction = 0.1
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = retryUnlessCanceled
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return c
}

// RetryAfterError is implemented by errors that carry a server-mandated
// minimum delay before the next attempt.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// retryAfterOf returns the delay floor carried by err, if any.
func retryAfterOf(err error) time.Duration {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.RetryAfter
	}
	return 0
}

// RetryResult is the outcome of WithRetry.
type RetryResult[T any] struct {
	Success  bool
	Data     T
	Err      error
	Attempts int
}

// WithRetry runs op until it succeeds, ShouldRetry declines, or the retry
// budget is spent. It never panics on failure; inspect the result instead.
//
// Errors implementing RetryAfterError, and *HTTPError with a Retry-After
// header, raise the delay to at least their hint.
// If ctx ends while sleeping, the result carries ctx.Err().
func WithRetry[T any](ctx context.Context, op func(context.Context) (T, error), cfg RetryConfig) RetryResult[T] {
	cfg = cfg.withDefaults()

	for attempt := 1; ; attempt++ {
		data, err := op(ctx)
		cfg.Instruments.RetryAttempt(ctx, err != nil)
		if err == nil {
			return RetryResult[T]{Success: true, Data: data, Attempts: attempt}
		}

		if attempt > cfg.MaxRetries || !cfg.ShouldRetry(err, attempt) {
			return RetryResult[T]{Err: err, Attempts: attempt}
		}

		delay := cfg.backoff(attempt)
		if floor := retryAfterOf(err); floor > delay {
			delay = floor
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		cfg.Instruments.RetryWait(ctx, delay)

		if serr := cfg.Sleep(ctx, delay); serr != nil {
			return RetryResult[T]{Err: serr, Attempts: attempt}
		}
	}
}

// backoff returns InitialDelay * Multiplier^(attempt-1), capped at MaxDelay,
// plus jitter.
func (c RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.JitterFraction > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += rand.Float64() * c.JitterFraction * delay
	}
	return time.Duration(delay)
}

func retryUnlessCanceled(err error, _ int) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
