package resilience

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/musicops/kv"
	"github.com/jonwraymond/musicops/observe"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Store holds the window counters (required).
	Store kv.Store

	// RequestsPerMinute is the ceiling of each minute window.
	// Default: 60
	RequestsPerMinute int

	// RequestsPerHour is the ceiling of each hour window.
	// Default: 1000
	RequestsPerHour int

	Logger      observe.Logger
	Instruments *observe.Instruments

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Decision is the outcome of CheckLimit.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`

	// ErrorCode and ErrorMessage are set when Allowed is false.
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// RetryAfter returns how long the caller should wait before retrying,
// rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || d.ResetTime.IsZero() {
		return 0
	}
	wait := d.ResetTime.Sub(now)
	if wait <= 0 {
		return 0
	}
	return (wait + time.Second - 1).Truncate(time.Second)
}

// WindowUsage is the remaining budget of one window.
type WindowUsage struct {
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// Usage is the remaining budget of both windows.
type Usage struct {
	Minute WindowUsage `json:"minute"`
	Hour   WindowUsage `json:"hour"`
}

// window is one fixed counting interval.
type window struct {
	name  string
	size  time.Duration
	limit int
	code  string
}

func (w window) id(now time.Time) int64 {
	return now.UnixMilli() / w.size.Milliseconds()
}

func (w window) key(identity string, id int64) string {
	return "rl:" + identity + ":" + w.name + ":" + strconv.FormatInt(id, 10)
}

func (w window) resetTime(id int64) time.Time {
	return time.UnixMilli((id + 1) * w.size.Milliseconds())
}

// RateLimiter is a per-identity fixed-window limiter backed by a kv.Store.
//
// Each identity gets a minute and an hour counter keyed by window id, so a new
// window is simply a key that does not exist yet. Counters carry a TTL of one
// window length.
//
// The check and the increments are separate KV operations: concurrent
// callers, or several processes, can overshoot a ceiling by a few requests
// at a window boundary.
type RateLimiter struct {
	store       kv.Store
	minute      window
	hour        window
	logger      observe.Logger
	instruments *observe.Instruments
	now         func() time.Time
}

// NewRateLimiter creates a RateLimiter. It panics if config.Store is nil.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Store == nil {
		panic(ErrNilStore)
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.RequestsPerHour <= 0 {
		config.RequestsPerHour = 1000
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RateLimiter{
		store:       config.Store,
		minute:      window{name: "minute", size: time.Minute, limit: config.RequestsPerMinute, code: CodeMinuteLimit},
		hour:        window{name: "hour", size: time.Hour, limit: config.RequestsPerHour, code: CodeHourLimit},
		logger:      config.Logger,
		instruments: config.Instruments,
		now:         config.Now,
	}
}

// Limits returns the per-minute and per-hour ceilings.
func (rl *RateLimiter) Limits() (perMinute, perHour int) {
	return rl.minute.limit, rl.hour.limit
}

// CheckLimit admits or rejects one request for identity. An admitted request
// increments both counters; a rejected one consumes nothing. Any store failure
// admits the request.
func (rl *RateLimiter) CheckLimit(ctx context.Context, identity string) Decision {
	identity = normalizeIdentity(identity)
	now := rl.now()
	minuteID, hourID := rl.minute.id(now), rl.hour.id(now)
	minuteKey, hourKey := rl.minute.key(identity, minuteID), rl.hour.key(identity, hourID)

	minuteCount, err := rl.readCount(ctx, minuteKey)
	if err != nil {
		return rl.failOpen(ctx, identity, now, err)
	}
	hourCount, err := rl.readCount(ctx, hourKey)
	if err != nil {
		return rl.failOpen(ctx, identity, now, err)
	}

	if minuteCount >= rl.minute.limit {
		return rl.deny(ctx, identity, rl.minute, rl.minute.resetTime(minuteID), observe.DecisionMinute)
	}
	if hourCount >= rl.hour.limit {
		return rl.deny(ctx, identity, rl.hour, rl.hour.resetTime(hourID), observe.DecisionHour)
	}

	if err := rl.store.Put(ctx, minuteKey, strconv.Itoa(minuteCount+1), kv.PutOptions{TTL: rl.minute.size}); err != nil {
		return rl.failOpen(ctx, identity, now, err)
	}
	if err := rl.store.Put(ctx, hourKey, strconv.Itoa(hourCount+1), kv.PutOptions{TTL: rl.hour.size}); err != nil {
		return rl.failOpen(ctx, identity, now, err)
	}

	rl.instruments.RateLimitDecision(ctx, observe.DecisionAllowed)
	return Decision{
		Allowed:   true,
		Remaining: min(rl.minute.limit-minuteCount-1, rl.hour.limit-hourCount-1),
		ResetTime: rl.minute.resetTime(minuteID),
	}
}

func (rl *RateLimiter) deny(ctx context.Context, identity string, w window, reset time.Time, decision string) Decision {
	rl.instruments.RateLimitDecision(ctx, decision)
	rl.logger.Info(ctx, "ratelimit: request denied",
		observe.F("identity", identity),
		observe.F("window", w.name),
		observe.F("limit", w.limit),
	)
	return Decision{
		Allowed:   false,
		Remaining: 0,
		ResetTime: reset,
		ErrorCode: w.code,
		ErrorMessage: fmt.Sprintf("Rate limit exceeded: %d requests per %s. Try again after %s.",
			w.limit, w.name, reset.UTC().Format(time.RFC3339)),
	}
}

func (rl *RateLimiter) failOpen(ctx context.Context, identity string, now time.Time, err error) Decision {
	rl.instruments.RateLimitDecision(ctx, observe.DecisionFailOpen)
	rl.logger.Error(ctx, "ratelimit: store failure, allowing request",
		observe.F("identity", identity),
		observe.F("error", err),
	)
	return Decision{
		Allowed:   true,
		Remaining: rl.minute.limit,
		ResetTime: rl.minute.resetTime(rl.minute.id(now)),
	}
}

// Remaining reports the budget left in the current windows without consuming
// any. Unreadable counters count as zero.
func (rl *RateLimiter) Remaining(ctx context.Context, identity string) Usage {
	identity = normalizeIdentity(identity)
	now := rl.now()
	return Usage{
		Minute: rl.usage(ctx, identity, rl.minute, now),
		Hour:   rl.usage(ctx, identity, rl.hour, now),
	}
}

func (rl *RateLimiter) usage(ctx context.Context, identity string, w window, now time.Time) WindowUsage {
	id := w.id(now)
	count, err := rl.readCount(ctx, w.key(identity, id))
	if err != nil {
		rl.logger.Warn(ctx, "ratelimit: failed to read counter", observe.F("identity", identity), observe.F("error", err))
		count = 0
	}
	return WindowUsage{
		Remaining: max(w.limit-count, 0),
		ResetTime: w.resetTime(id),
	}
}

// ResetUserLimits deletes every counter of identity.
func (rl *RateLimiter) ResetUserLimits(ctx context.Context, identity string) error {
	identity = normalizeIdentity(identity)
	prefix := "rl:" + identity + ":"

	res, err := rl.store.List(ctx, kv.ListOptions{Prefix: prefix})
	if err != nil {
		return fmt.Errorf("resilience: list counters for %q: %w", identity, err)
	}
	for _, k := range res.Keys {
		// Skip counters of identities that merely share this prefix.
		if !isWindowSuffix(strings.TrimPrefix(k.Name, prefix)) {
			continue
		}
		if err := rl.store.Delete(ctx, k.Name); err != nil {
			return fmt.Errorf("resilience: delete counter %q: %w", k.Name, err)
		}
	}
	rl.logger.Info(ctx, "ratelimit: limits reset", observe.F("identity", identity))
	return nil
}

// readCount returns the stored counter. Missing and non-numeric values are 0;
// only store failures are reported.
func (rl *RateLimiter) readCount(ctx context.Context, key string) (int, error) {
	raw, ok, err := rl.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, nil
	}
	return n, nil
}

func isWindowSuffix(s string) bool {
	name, id, ok := strings.Cut(s, ":")
	if !ok || (name != "minute" && name != "hour") {
		return false
	}
	_, err := strconv.ParseInt(id, 10, 64)
	return err == nil
}

// maxIdentityLength keeps "rl:{identity}:minute:{id}" within kv.MaxKeyLength
// for any int64 window id.
const maxIdentityLength = kv.MaxKeyLength - len("rl:") - len(":minute:") - 20

// normalizeIdentity maps identity onto the form used in counter keys. Longer
// identities are replaced by their SHA-256 digest so their keys stay valid.
func normalizeIdentity(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "anonymous"
	}
	if len(identity) > maxIdentityLength {
		sum := sha256.Sum256([]byte(identity))
		return "sha256-" + hex.EncodeToString(sum[:])
	}
	return identity
}
