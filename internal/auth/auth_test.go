package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestTokenService(t *testing.T, now *time.Time) *TokenService {
	t.Helper()
	svc, err := NewTokenService(TokenConfig{
		Secret:   testSecret,
		Issuer:   "sparehub",
		Audience: "sparehub-clients",
		TTL:      time.Hour,
	}, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func testUser() User {
	return User{ID: "user-42", Email: "a@x.com", RoleID: "role-1"}
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)

	token, expiresAt, err := svc.Issue(testUser(), RoleUser, []string{PermViewSpareParts, PermViewSpareParts})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !expiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}
	claims, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.Subject != "user-42" || claims.Email != "a@x.com" || claims.Role != RoleUser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Permissions) != 1 || claims.Permissions[0] != PermViewSpareParts {
		t.Fatalf("unexpected permissions: %v", claims.Permissions)
	}
	if claims.ID == "" {
		t.Fatal("expected jti")
	}
	if claims.Issuer != "sparehub" || len(claims.Audience) != 1 || claims.Audience[0] != "sparehub-clients" {
		t.Fatalf("unexpected iss/aud: %s %v", claims.Issuer, claims.Audience)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)
	token, expiresAt, err := svc.Issue(testUser(), RoleUser, nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = expiresAt.Add(-time.Second)
	if _, err := svc.Validate(token); err != nil {
		t.Fatalf("token should be valid just before expiry: %v", err)
	}
	now = expiresAt
	if _, err := svc.Validate(token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated at expiry, got %v", err)
	}
}

func TestTokenTamperEveryByte(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)
	token, _, err := svc.Issue(testUser(), RoleAdmin, BuiltinRoles[RoleAdmin])
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for i := 0; i < len(token); i++ {
		replacement := byte('A')
		if token[i] == 'A' {
			replacement = 'B'
		}
		tampered := token[:i] + string(replacement) + token[i+1:]
		if _, err := svc.Validate(tampered); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("tampered byte %d accepted", i)
		}
	}
}

func TestTokenRejectsForeignTokens(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)
	base := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sparehub",
			Subject:   "user-42",
			Audience:  jwt.ClaimStrings{"sparehub-clients"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	sign := func(method jwt.SigningMethod, key any, mutate func(*Claims)) string {
		c := base
		if mutate != nil {
			mutate(&c)
		}
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	cases := map[string]string{
		"wrong secret":  sign(jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), nil),
		"wrong alg":     sign(jwt.SigningMethodHS512, testSecret, nil),
		"alg none":      sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, nil),
		"wrong issuer":  sign(jwt.SigningMethodHS256, testSecret, func(c *Claims) { c.Issuer = "other" }),
		"wrong aud":     sign(jwt.SigningMethodHS256, testSecret, func(c *Claims) { c.Audience = jwt.ClaimStrings{"other"} }),
		"no subject":    sign(jwt.SigningMethodHS256, testSecret, func(c *Claims) { c.Subject = "" }),
		"no expiry":     sign(jwt.SigningMethodHS256, testSecret, func(c *Claims) { c.ExpiresAt = nil }),
		"no issued-at":  sign(jwt.SigningMethodHS256, testSecret, func(c *Claims) { c.IssuedAt = nil }),
		"future iat":    sign(jwt.SigningMethodHS256, testSecret, func(c *Claims) { c.IssuedAt = jwt.NewNumericDate(now.Add(10 * time.Second)) }),
		"garbage":       "not-a-token",
		"empty":         "  ",
		"two segments":  "a.b",
		"trailing junk": sign(jwt.SigningMethodHS256, testSecret, nil) + "x",
	}
	for name, token := range cases {
		if _, err := svc.Validate(token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}

	skewed := sign(jwt.SigningMethodHS256, testSecret, func(c *Claims) { c.IssuedAt = jwt.NewNumericDate(now.Add(4 * time.Second)) })
	if _, err := svc.Validate(skewed); err != nil {
		t.Fatalf("issued-at within skew should be accepted: %v", err)
	}
}

func TestNewTokenServiceMisconfigured(t *testing.T) {
	cases := []TokenConfig{
		{Secret: []byte("short"), Issuer: "i", Audience: "a", TTL: time.Hour},
		{Secret: testSecret, Audience: "a", TTL: time.Hour},
		{Secret: testSecret, Issuer: "i", TTL: time.Hour},
		{Secret: testSecret, Issuer: "i", Audience: "a", TTL: 30 * time.Second},
		{Secret: testSecret, Issuer: "i", Audience: "a", TTL: 48 * time.Hour},
	}
	for i, cfg := range cases {
		if _, err := NewTokenService(cfg); !errors.Is(err, ErrMisconfigured) {
			t.Fatalf("case %d: expected ErrMisconfigured, got %v", i, err)
		}
	}
}

func TestTokenDoesNotLeakSecretIntoErrors(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, &now)
	_, err := svc.Validate("a.b.c")
	if err == nil || strings.Contains(err.Error(), string(testSecret)) {
		t.Fatalf("unexpected error %v", err)
	}
}
