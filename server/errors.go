package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/musicops/auth"
	"github.com/jonwraymond/musicops/lastfm"
	"github.com/jonwraymond/musicops/observe"
	"github.com/jonwraymond/musicops/resilience"
)

// Error codes carried in error responses.
const (
	CodeAuthInvalid       = "AUTH_INVALID"
	CodeAuthForbidden     = "AUTH_FORBIDDEN"
	CodeToolNotFound      = "TOOL_NOT_FOUND"
	CodeInvalidParams     = "VALIDATION_INVALID_PARAMS"
	CodeUpstreamNotFound  = "UPSTREAM_NOT_FOUND"
	CodeUpstreamError     = "UPSTREAM_ERROR"
	CodeUpstreamTimeout   = "UPSTREAM_TIMEOUT"
	CodeUpstreamThrottled = "UPSTREAM_RATE_LIMITED"
	CodeRequestCanceled   = "REQUEST_CANCELED"
	CodeInternal          = "SYSTEM_INTERNAL"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	status    int
}

// ErrorResponse wraps APIError on the wire.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{Code: code, Message: message, status: status}
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Status returns the HTTP status code.
func (e *APIError) Status() int {
	return e.status
}

func writeError(w http.ResponseWriter, r *http.Request, e *APIError) {
	e.RequestID = RequestIDFromContext(r.Context())
	writeJSON(w, e.status, ErrorResponse{Error: e})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// classify maps a tool execution error to the response sent to the caller.
// Upstream details stay in the logs; only the message of parameter errors
// is echoed back.
func classify(err error) *APIError {
	var apiErr *lastfm.Error
	var he *resilience.HTTPError
	switch {
	case errors.Is(err, lastfm.ErrUnknownTool):
		return newAPIError(http.StatusNotFound, CodeToolNotFound, "unknown tool")
	case errors.Is(err, lastfm.ErrMissingParam):
		return newAPIError(http.StatusBadRequest, CodeInvalidParams, err.Error())
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusGatewayTimeout, CodeUpstreamTimeout, "upstream request timed out")
	case errors.Is(err, context.Canceled):
		return newAPIError(http.StatusServiceUnavailable, CodeRequestCanceled, "request canceled")
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == lastfm.ErrCodeInvalidParameters && apiErr.HTTPStatus < 500:
			// Last.fm reports unknown users, artists and tracks as code 6.
			return newAPIError(http.StatusNotFound, CodeUpstreamNotFound, apiErr.Message)
		case apiErr.Code == lastfm.ErrCodeRateLimitExceeded:
			return newAPIError(http.StatusServiceUnavailable, CodeUpstreamThrottled, "upstream rate limit exceeded")
		default:
			return newAPIError(http.StatusBadGateway, CodeUpstreamError, "upstream request failed")
		}
	case errors.As(err, &he):
		if he.StatusCode == http.StatusNotFound {
			return newAPIError(http.StatusNotFound, CodeUpstreamNotFound, "upstream resource not found")
		}
		return newAPIError(http.StatusBadGateway, CodeUpstreamError, "upstream request failed")
	case errors.Is(err, lastfm.ErrInvalidResponse), errors.Is(err, lastfm.ErrPacing):
		return newAPIError(http.StatusBadGateway, CodeUpstreamError, "upstream request failed")
	default:
		return newAPIError(http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

func (s *Server) authError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, newAPIError(http.StatusForbidden, CodeAuthForbidden, "insufficient role"))
	case auth.IsCredentialError(err):
		w.Header().Set("WWW-Authenticate", `Bearer realm="musicops"`)
		writeError(w, r, newAPIError(http.StatusUnauthorized, CodeAuthInvalid, err.Error()))
	default:
		s.logger.Error(r.Context(), "identity resolution failed", observe.F("error", err))
		writeError(w, r, newAPIError(http.StatusInternalServerError, CodeInternal, "internal error"))
	}
}
