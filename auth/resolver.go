package auth

import (
	"context"
	"fmt"
)

// Resolver picks the caller identity for a request.
//
// Authenticators are tried in order; the first that supports the request
// decides. A presented but rejected credential is an error, never a silent
// downgrade to an address identity. Requests without credentials resolve to
// AddressIdentity(ClientAddr).
type Resolver struct {
	authenticators []Authenticator
}

// NewResolver creates a resolver over auths. Nil entries are skipped.
func NewResolver(auths ...Authenticator) *Resolver {
	r := &Resolver{}
	for _, a := range auths {
		if a != nil {
			r.authenticators = append(r.authenticators, a)
		}
	}
	return r
}

// Resolve returns the identity for req.
func (r *Resolver) Resolve(ctx context.Context, req *AuthRequest) (*Identity, error) {
	for _, a := range r.authenticators {
		if !a.Supports(req) {
			continue
		}

		result, err := a.Authenticate(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("auth: %s: %w", a.Name(), err)
		}
		if !result.Authenticated {
			if result.Error == nil {
				return nil, ErrInvalidCredentials
			}
			return nil, result.Error
		}
		return result.Identity, nil
	}
	return AddressIdentity(req.ClientAddr), nil
}
