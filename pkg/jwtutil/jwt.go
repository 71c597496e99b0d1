package jwtutil

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// AccessClaims represents the claims carried by a backend-issued access token.
// The hosted backend signs these with HS256; the portal only ever verifies.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the identity id (the token subject).
func (c *AccessClaims) UserID() string {
	return c.Subject
}

// ParseAccessToken validates and parses an access token issued by the hosted
// backend. When signingKey is empty the signature is not checked (the anon
// deployment does not share its JWT secret); expiry is still enforced.
func ParseAccessToken(tokenString string, signingKey string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	if signingKey == "" {
		parser := jwt.NewParser(jwt.WithoutClaimsValidation())
		_, _, err := parser.ParseUnverified(tokenString, claims)
		if err != nil {
			return nil, err
		}
		if err := claims.RegisteredClaims.Valid(); err != nil {
			return nil, err
		}
		return claims, nil
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			// Validate the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(signingKey), nil
		},
	)

	if err != nil {
		return nil, err
	}

	if parsed, ok := token.Claims.(*AccessClaims); ok && token.Valid {
		return parsed, nil
	}

	return nil, errors.New("invalid token")
}
