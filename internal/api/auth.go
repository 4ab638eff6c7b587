package api

import (
	"time"

	"github.com/golang-jwt/jwt"
)

// checkToken inspects the access token without verifying its signature; the
// backend does that. A JWT whose exp has passed fails before a round trip.
// Tokens that are not JWTs are left for the backend to judge.
func checkToken(tokenString string, now time.Time) error {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return nil
	}

	if _, ok := claims["exp"]; !ok {
		return nil
	}

	if !claims.VerifyExpiresAt(now.Unix(), true) {
		return ErrTokenExpired
	}

	return nil
}
