// Package token reads the expiry of an access token without verifying its
// signature. Verification is the API's job; the client only needs to know
// when to ask for a new token.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrNoExpiry = errors.New("token has no expiry")

var parser = jwt.NewParser()

// Expiry returns the exp claim of a JWT.
func Expiry(raw string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}

	_, _, err := parser.ParseUnverified(raw, claims)
	if err != nil {
		return time.Time{}, fmt.Errorf("decoding token: %w", err)
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}

	return claims.ExpiresAt.Time, nil
}

// NearingExpiry reports whether the token expires within threshold of now.
// A token that cannot be decoded counts as expired.
func NearingExpiry(raw string, now time.Time, threshold time.Duration) bool {
	exp, err := Expiry(raw)
	if err != nil {
		return true
	}

	return !exp.After(now.Add(threshold))
}

// Expired reports whether the token is past its expiry, or undecodable.
func Expired(raw string, now time.Time) bool {
	return NearingExpiry(raw, now, 0)
}
