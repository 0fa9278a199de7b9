// Package auth resolves who is calling so the rate limiter can count them.
//
// Callers present an HS256 session token ("Authorization: Bearer ...") or a
// static key ("X-API-Key"). Requests with neither are identified by client
// address. The resolved Identity rides on the request context; its
// RateLimitKey is "user:<name>" or "ip:<addr>".
package auth
