package jwt

import (
	"context"
	"errors"
)

var (
	// ErrNoCredential means no admin token is available at all.
	ErrNoCredential = errors.New("jwt: no admin credential available")
	// ErrInvalidCredential covers malformed, expired or badly signed tokens.
	ErrInvalidCredential = errors.New("jwt: invalid admin credential")
)

// TokenSource yields the admin's current access token. Implementations must
// not cache beyond a single call, so rotations are seen on the next connect.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// Claims is the subset of the admin token the console cares about.
type Claims struct {
	AdminID   string
	Email     string
	ExpiresAt int64
}
