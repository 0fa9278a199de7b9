// Package resilience protects the upstream music API and its callers.
//
// # Patterns
//
//   - Rate Limiter: per-identity admission control with a minute and an hour
//     fixed window whose counters live in a kv.Store. Store failures admit
//     the request (fail open).
//
//   - Retry: bounded retries with jittered exponential backoff. WithRetry
//     returns a RetryResult instead of an error so callers can inspect the
//     attempt count. FetchWithRetry specializes it for HTTP: 429 and 5xx are
//     retried, other 4xx fail at once, and Retry-After sets a delay floor.
//
//   - Timeout: bounds operations that have no deadline of their own.
//
// # Usage
//
//	rl := resilience.NewRateLimiter(resilience.RateLimiterConfig{Store: store})
//	if d := rl.CheckLimit(ctx, identity); !d.Allowed {
//	    return d.ErrorMessage
//	}
//
//	resp, err := resilience.FetchWithRetry(ctx, client, resilience.HTTPRequest{
//	    URL: "https://ws.audioscrobbler.com/2.0/?method=user.getinfo&user=rj",
//	}, resilience.DefaultRetryConfig())
package resilience
