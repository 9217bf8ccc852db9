// internal/auth/credential.go
package auth

import (
	"context"
	"errors"
)

// ErrNoSession is returned when there is no signed-in user to issue a token for.
var ErrNoSession = errors.New("no signed-in session")

// CredentialProvider obtains a bearer token for the current session. Token
// may block and is called once per upload; implementations must not assume
// the token is cached by the caller.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// CredentialFunc adapts a plain function to CredentialProvider.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken serves a fixed, pre-issued token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if t == "" {
		return "", ErrNoSession
	}
	return string(t), nil
}
