package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	_, err := NewSession("", time.Minute)
	assert.Error(t, err)

	s, err := NewSession("secret", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, s.ttl)
}

func TestSession_TokenRoundTrip(t *testing.T) {
	s, err := NewSession("test-secret", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.SignIn("user-42"))

	token, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, len(strings.Split(token, ".")))

	userID, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)
}

func TestSession_NoSignedInUser(t *testing.T) {
	s, err := NewSession("test-secret", time.Minute)
	require.NoError(t, err)

	_, err = s.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	require.NoError(t, s.SignIn("user-1"))
	assert.Equal(t, "user-1", s.CurrentUser())

	s.SignOut()
	assert.Empty(t, s.CurrentUser())
	_, err = s.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	assert.Error(t, s.SignIn(""))
}

func TestSession_CancelledContext(t *testing.T) {
	s, err := NewSession("test-secret", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.SignIn("user-1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSession_VerifyRejectsForeignTokens(t *testing.T) {
	issuer, err := NewSession("secret-a", time.Minute)
	require.NoError(t, err)
	require.NoError(t, issuer.SignIn("user-1"))
	token, err := issuer.Token(context.Background())
	require.NoError(t, err)

	verifier, err := NewSession("secret-b", time.Minute)
	require.NoError(t, err)
	_, err = verifier.Verify(token)
	assert.Error(t, err)

	_, err = verifier.Verify("not-a-token")
	assert.Error(t, err)
}

func TestSession_VerifyRejectsExpiredTokens(t *testing.T) {
	s, err := NewSession("test-secret", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.SignIn("user-1"))

	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issuedAt }
	token, err := s.Token(context.Background())
	require.NoError(t, err)

	_, err = s.Verify(token)
	require.NoError(t, err)

	s.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = s.Verify(token)
	assert.Error(t, err)
}

func TestStaticToken(t *testing.T) {
	token, err := StaticToken("fixed").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", token)

	_, err = StaticToken("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestCredentialFunc(t *testing.T) {
	var calls int
	provider := CredentialFunc(func(ctx context.Context) (string, error) {
		calls++
		return "fresh", nil
	})

	for i := 0; i < 2; i++ {
		token, err := provider.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fresh", token)
	}
	assert.Equal(t, 2, calls)
}
