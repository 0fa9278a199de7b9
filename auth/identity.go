package auth

import (
	"slices"
	"time"
)

// AuthMethod indicates how a caller was identified.
type AuthMethod string

const (
	AuthMethodJWT     AuthMethod = "jwt"
	AuthMethodAPIKey  AuthMethod = "api_key"
	AuthMethodAddress AuthMethod = "address"
)

// RoleAdmin grants access to the cache and rate-limit admin endpoints.
const RoleAdmin = "admin"

// Identity is a resolved caller.
type Identity struct {
	// Principal is the user name for JWT and API key callers, or the client
	// address for unauthenticated ones.
	Principal string

	Roles  []string
	Method AuthMethod

	// Claims contains the raw claims from the token.
	Claims map[string]any

	ExpiresAt time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// IsExpired checks if the identity has expired.
func (id *Identity) IsExpired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}

// RateLimitKey is the identity string handed to the rate limiter:
// "user:<name>" for authenticated callers, "ip:<addr>" otherwise.
func (id *Identity) RateLimitKey() string {
	if id.Method == AuthMethodAddress {
		return "ip:" + id.Principal
	}
	return "user:" + id.Principal
}

// AddressIdentity identifies an unauthenticated caller by client address.
func AddressIdentity(addr string) *Identity {
	if addr == "" {
		addr = "unknown"
	}
	return &Identity{Principal: addr, Method: AuthMethodAddress}
}
