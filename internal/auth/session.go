// internal/auth/session.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultTokenTTL = time.Hour
	tokenIssuer     = "plate-log"
)

// Session tracks the signed-in user of this process and signs short-lived
// HS256 tokens on their behalf. The same secret verifies tokens on the
// analyzer side.
type Session struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	userID string
}

func NewSession(secretKey string, ttl time.Duration) (*Session, error) {
	if secretKey == "" {
		return nil, errors.New("session secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Session{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

func (s *Session) SignIn(userID string) error {
	if userID == "" {
		return errors.New("user id cannot be empty")
	}
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	return nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	s.userID = ""
	s.mu.Unlock()
}

// CurrentUser returns the signed-in user id, or "" when signed out.
func (s *Session) CurrentUser() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Token issues a fresh token for the current user.
func (s *Session) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	userID := s.CurrentUser()
	if userID == "" {
		return "", ErrNoSession
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token issued by Token and returns its user id.
func (s *Session) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
