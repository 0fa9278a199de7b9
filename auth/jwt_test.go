package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
)

var testSecret = []byte("test-secret-0123456789")

func newTestJWT(t *testing.T, now time.Time) *JWTAuthenticator {
	t.Helper()
	a, err := NewJWTAuthenticator(JWTConfig{
		Secret: testSecret,
		Issuer: "musicops",
		Now:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func bearer(token string) *AuthRequest {
	return &AuthRequest{Header: http.Header{"Authorization": []string{"Bearer " + token}}}
}

func TestNewJWTAuthenticator_RequiresSecret(t *testing.T) {
	if _, err := NewJWTAuthenticator(JWTConfig{}); !errors.Is(err, ErrNoSecret) {
		t.Errorf("error = %v, want ErrNoSecret", err)
	}
}

func TestJWTAuthenticator_RoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newTestJWT(t, now)

	token, err := a.IssueToken("rj", []string{RoleAdmin}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	req := bearer(token)
	if !a.Supports(req) {
		t.Fatal("Supports() = false")
	}
	result, err := a.Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if !result.Authenticated {
		t.Fatalf("Authenticate() failed: %v", result.Error)
	}

	id := result.Identity
	if id.Principal != "rj" || id.Method != AuthMethodJWT {
		t.Errorf("identity = %+v", id)
	}
	if diff := cmp.Diff([]string{RoleAdmin}, id.Roles); diff != "" {
		t.Errorf("Roles mismatch (-want +got):\n%s", diff)
	}
	if !id.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", id.ExpiresAt)
	}
	if id.RateLimitKey() != "user:rj" {
		t.Errorf("RateLimitKey() = %q", id.RateLimitKey())
	}
}

func TestJWTAuthenticator_Rejections(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newTestJWT(t, now)

	expired, _ := newTestJWT(t, now.Add(-2*time.Hour)).IssueToken("rj", nil, time.Hour)

	otherKey, _ := NewJWTAuthenticator(JWTConfig{Secret: []byte("other"), Issuer: "musicops"})
	wrongKey, _ := otherKey.IssueToken("rj", nil, time.Hour)

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rj", "iss": "elsewhere", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(testSecret)

	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "rj", "iss": "musicops",
	}).SignedString(testSecret)

	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "musicops", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(testSecret)

	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"sub": "rj", "iss": "musicops", "exp": now.Add(time.Hour).Unix(),
	}).SignedString(testSecret)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "expired", token: expired, want: ErrTokenExpired},
		{name: "garbage", token: "not.a.jwt", want: ErrTokenMalformed},
		{name: "wrong key", token: wrongKey, want: ErrInvalidCredentials},
		{name: "wrong issuer", token: wrongIssuer, want: ErrInvalidCredentials},
		{name: "missing exp", token: noExp, want: ErrInvalidCredentials},
		{name: "missing sub", token: noSub, want: ErrInvalidCredentials},
		{name: "other algorithm", token: hs512, want: ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := a.Authenticate(context.Background(), bearer(tt.token))
			if err != nil {
				t.Fatalf("Authenticate() error = %v", err)
			}
			if result.Authenticated {
				t.Fatal("Authenticate() succeeded")
			}
			if !errors.Is(result.Error, tt.want) {
				t.Errorf("Error = %v, want %v", result.Error, tt.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc", want: "abc", ok: true},
		{header: "bearer abc", want: "abc", ok: true},
		{header: "Bearer   abc  ", want: "abc", ok: true},
		{header: "Bearer ", ok: false},
		{header: "Basic abc", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		got, ok := bearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
