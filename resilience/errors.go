package resilience

import "errors"

// Sentinel errors for resilience operations.
var (
	// ErrTimeout is returned when an operation exceeds its deadline.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrNilStore is returned when a rate limiter has no backing store.
	ErrNilStore = errors.New("resilience: store is nil")
)

// Rate-limit error codes reported in Decision.ErrorCode.
const (
	CodeMinuteLimit = "RATE_LIMIT_MINUTE"
	CodeHourLimit   = "RATE_LIMIT_HOUR"
)
