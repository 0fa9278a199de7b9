package lastfm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonwraymond/musicops/resilience"
)

// Last.fm API error codes.
const (
	ErrCodeInvalidService       = 2
	ErrCodeInvalidMethod        = 3
	ErrCodeAuthenticationFailed = 4
	ErrCodeInvalidFormat        = 5
	ErrCodeInvalidParameters    = 6
	ErrCodeInvalidResourceSpec  = 7
	ErrCodeOperationFailed      = 8
	ErrCodeInvalidSessionKey    = 9
	ErrCodeInvalidAPIKey        = 10
	ErrCodeServiceOffline       = 11
	ErrCodeInvalidSignature     = 13
	ErrCodeTempUnavailable      = 16
	ErrCodeSuspendedAPIKey      = 26
	ErrCodeRateLimitExceeded    = 29
)

var (
	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("lastfm: invalid configuration")

	// ErrUnknownTool is returned for tool names missing from the tool table.
	ErrUnknownTool = errors.New("lastfm: unknown tool")

	// ErrMissingParam is returned when a tool's required parameter is absent.
	ErrMissingParam = errors.New("lastfm: missing required parameter")

	// ErrInvalidResponse is returned when a 2xx body is not JSON.
	ErrInvalidResponse = errors.New("lastfm: invalid response body")

	// ErrPacing is returned when the outbound pacer cannot admit a request
	// before the context ends.
	ErrPacing = errors.New("lastfm: request pacing")
)

// Error is an error envelope returned by the Last.fm API:
// {"error": 6, "message": "User not found"}.
type Error struct {
	Method  string
	Code    int
	Message string

	// HTTPStatus is the response status; Last.fm sends envelopes with 200 as
	// well as with 4xx/5xx.
	HTTPStatus int

	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("lastfm: %s: error %d: %s", e.Method, e.Code, e.Message)
}

// Unwrap exposes the underlying *resilience.HTTPError, if any.
func (e *Error) Unwrap() error {
	return e.err
}

// Temporary reports whether the code signals a transient upstream condition:
// service offline (11), temporarily unavailable (16), or rate limited (29).
func (e *Error) Temporary() bool {
	switch e.Code {
	case ErrCodeServiceOffline, ErrCodeTempUnavailable, ErrCodeRateLimitExceeded:
		return true
	default:
		return false
	}
}

// Retryable reports whether the call is worth repeating.
func (e *Error) Retryable() bool {
	return e.Temporary() || resilience.IsRetryableStatus(e.HTTPStatus)
}

// IsRetryable classifies an error from a single API call. Envelope and HTTP
// errors decide for themselves. Body, pacing and context failures are final.
// Anything else is a transport failure and is retried.
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var he *resilience.HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	if errors.Is(err, ErrInvalidResponse) || errors.Is(err, ErrPacing) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

type envelope struct {
	Error   *int   `json:"error"`
	Message string `json:"message"`
}

// parseEnvelope returns the API error in body, or nil when body is not an
// error envelope.
func parseEnvelope(method string, body []byte) *Error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error == nil {
		return nil
	}
	return &Error{Method: method, Code: *env.Error, Message: env.Message}
}
