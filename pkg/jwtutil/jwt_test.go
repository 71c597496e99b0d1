package jwtutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

func signToken(t *testing.T, key string, claims AccessClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestParseAccessToken_Verified(t *testing.T) {
	raw := signToken(t, "portal-secret", AccessClaims{
		Email: "a@x.com",
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ParseAccessToken(raw, "portal-secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID() != "user-1" {
		t.Errorf("expected subject user-1, got %q", claims.UserID())
	}
	if claims.Email != "a@x.com" {
		t.Errorf("expected email a@x.com, got %q", claims.Email)
	}
}

func TestParseAccessToken_WrongKey(t *testing.T) {
	raw := signToken(t, "portal-secret", AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	if _, err := ParseAccessToken(raw, "other-secret"); err == nil {
		t.Fatal("expected verification error with wrong key")
	}
}

func TestParseAccessToken_UnverifiedStillChecksExpiry(t *testing.T) {
	raw := signToken(t, "whatever", AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})

	if _, err := ParseAccessToken(raw, ""); err == nil {
		t.Fatal("expected expiry error for expired token")
	}
}

func TestParseAccessToken_UnverifiedParsesClaims(t *testing.T) {
	raw := signToken(t, "whatever", AccessClaims{
		Email: "b@y.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := ParseAccessToken(raw, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID() != "user-2" || claims.Email != "b@y.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}
