package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"
)

// MiddlewareConfig configures the HTTP identity middleware.
type MiddlewareConfig struct {
	Resolver *Resolver

	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Enable only behind a proxy that overwrites these headers.
	TrustProxy bool

	// OnError writes the response for a rejected credential. Default: a
	// plain 401.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware resolves the caller and attaches the Identity to the request
// context.
func Middleware(config MiddlewareConfig) func(http.Handler) http.Handler {
	if config.Resolver == nil {
		config.Resolver = NewResolver()
	}
	if config.OnError == nil {
		config.OnError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := config.Resolver.Resolve(r.Context(), &AuthRequest{
				Header:     r.Header,
				ClientAddr: ClientAddr(r, config.TrustProxy),
			})
			if err != nil {
				config.OnError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireRole rejects requests whose identity lacks role with 403.
func RequireRole(role string, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	if onError == nil {
		onError = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusForbidden)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFromContext(r.Context())
			if id == nil || !id.HasRole(role) {
				onError(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsCredentialError reports whether err is a rejected credential rather than
// an internal failure.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}

// ClientAddr returns the caller's IP without port.
func ClientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
