package auth

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/svcdesk/helpdesk-bot/internal/errors"
)

type fakeVerifier struct {
	err   error
	calls int
}

func (f *fakeVerifier) Verify(_ context.Context, _ string) error {
	f.calls++
	return f.err
}

func TestLogin_Success(t *testing.T) {
	v := &fakeVerifier{}
	s := NewService(v, zerolog.Nop())

	require.NoError(t, s.Login(context.Background(), 1, "user@example.com"))
	assert.True(t, s.ValidateSession(1))
	assert.Equal(t, 1, v.calls)

	sess, ok := s.UserSession(1)
	require.True(t, ok)
	assert.Equal(t, "user@example.com", sess.Email)
	assert.False(t, sess.QuickLogin)
}

func TestLogin_VerifierRejects(t *testing.T) {
	v := &fakeVerifier{err: herrors.ErrAuthFailure}
	s := NewService(v, zerolog.Nop())

	err := s.Login(context.Background(), 1, "user@example.com")
	assert.ErrorIs(t, err, herrors.ErrAuthFailure)
	assert.False(t, s.ValidateSession(1))
}

func TestLogin_InvalidInput(t *testing.T) {
	v := &fakeVerifier{}
	s := NewService(v, zerolog.Nop())
	ctx := context.Background()

	assert.ErrorIs(t, s.Login(ctx, 0, "user@example.com"), herrors.ErrInvalidInput)
	assert.ErrorIs(t, s.Login(ctx, 1, ""), herrors.ErrInvalidInput)
	assert.ErrorIs(t, s.Login(ctx, 1, "not-an-email"), herrors.ErrInvalidInput)
	assert.Equal(t, 0, v.calls, "verifier should not be consulted on bad input")
}

func TestQuickLogin(t *testing.T) {
	v := &fakeVerifier{}
	s := NewService(v, zerolog.Nop())

	require.NoError(t, s.QuickLogin(1, "user@example.com"))
	assert.True(t, s.ValidateSession(1))
	assert.Equal(t, 0, v.calls, "quick login skips the backend")

	sess, _ := s.UserSession(1)
	assert.True(t, sess.QuickLogin)
}

func TestRevokeSession_Idempotent(t *testing.T) {
	s := NewService(&fakeVerifier{}, zerolog.Nop())

	require.NoError(t, s.QuickLogin(1, "user@example.com"))
	require.NoError(t, s.RevokeSession(1))
	assert.False(t, s.ValidateSession(1))

	// Revoking again is safe
	assert.NoError(t, s.RevokeSession(1))
}

func TestDomainVerifier(t *testing.T) {
	ctx := context.Background()

	open := DomainVerifier{}
	assert.NoError(t, open.Verify(ctx, "anyone@anywhere.example"))
	assert.ErrorIs(t, open.Verify(ctx, "missing-domain@"), herrors.ErrInvalidInput)

	v := DomainVerifier{Domains: []string{"example.com"}}
	assert.NoError(t, v.Verify(ctx, "user@example.com"))
	assert.NoError(t, v.Verify(ctx, "user@EXAMPLE.COM"))
	assert.ErrorIs(t, v.Verify(ctx, "user@other.com"), herrors.ErrAuthFailure)
}

func TestSessionCount(t *testing.T) {
	s := NewService(&fakeVerifier{}, zerolog.Nop())

	assert.Equal(t, 0, s.SessionCount())
	s.QuickLogin(1, "a@example.com")
	s.QuickLogin(2, "b@example.com")
	assert.Equal(t, 2, s.SessionCount())
	s.RevokeSession(1)
	assert.Equal(t, 1, s.SessionCount())
}
