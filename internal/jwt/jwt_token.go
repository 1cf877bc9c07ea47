package jwt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

// ParseToken checks an admin access token. When secret is non-empty the HMAC
// signature is verified; otherwise only the claims are decoded, since the
// backend stays the authority on signatures.
func ParseToken(tokenString string, secret []byte, now time.Time) (Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return Claims{}, ErrNoCredential
	}

	mapClaims := jwt.MapClaims{}
	if len(secret) > 0 {
		token, err := jwt.ParseWithClaims(tokenString, mapClaims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return secret, nil
		})
		if err != nil && !isOnlyExpired(err) {
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
		if token == nil {
			return Claims{}, ErrInvalidCredential
		}
	} else {
		if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, mapClaims); err != nil {
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
		}
	}

	claims := Claims{
		AdminID: stringClaim(mapClaims, "id"),
		Email:   stringClaim(mapClaims, "email"),
	}
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}
	if claims.ExpiresAt != 0 && now.Unix() > claims.ExpiresAt {
		return Claims{}, fmt.Errorf("%w: token expired", ErrInvalidCredential)
	}
	return claims, nil
}

// Validated wraps a TokenSource so every token it yields is checked first.
func Validated(src TokenSource, secret []byte) TokenSource {
	return TokenSourceFunc(func(ctx context.Context) (string, error) {
		token, err := src.Token(ctx)
		if err != nil {
			return "", err
		}
		if _, err := ParseToken(token, secret, time.Now()); err != nil {
			return "", err
		}
		return strings.TrimSpace(strings.TrimPrefix(token, "Bearer ")), nil
	})
}

// Expiry is re-checked against the caller's clock.
func isOnlyExpired(err error) bool {
	ve, ok := err.(*jwt.ValidationError)
	return ok && ve.Errors == jwt.ValidationErrorExpired
}

func stringClaim(c jwt.MapClaims, key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}
