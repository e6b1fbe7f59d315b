// Package auth manages authenticated bot sessions. It holds the in-memory
// registry mapping a Telegram user to the backend account they signed in as.
// Credential verification itself belongs to the ticketing backend connector,
// consumed here as an interface.
package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	herrors "github.com/svcdesk/helpdesk-bot/internal/errors"
)

// CredentialVerifier checks an account identifier against the ticketing
// backend. A verification failure is permanent; connectivity trouble should
// come back as a retryable error.
type CredentialVerifier interface {
	Verify(ctx context.Context, email string) error
}

// DomainVerifier accepts any well-formed address whose domain is on the
// allowlist. An empty allowlist accepts every domain; deployments fronting a
// real ticketing backend swap in its connector instead.
type DomainVerifier struct {
	Domains []string
}

func (v DomainVerifier) Verify(_ context.Context, email string) error {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return herrors.ErrInvalidInput
	}
	if len(v.Domains) == 0 {
		return nil
	}
	domain := strings.ToLower(email[at+1:])
	for _, allowed := range v.Domains {
		if domain == strings.ToLower(allowed) {
			return nil
		}
	}
	return herrors.ErrAuthFailure
}

// Session is one authenticated user.
type Session struct {
	Email      string
	LoginAt    time.Time
	QuickLogin bool
}

// Service is the authentication service consumed by the dispatch layer and
// the session monitor. Safe for concurrent use.
type Service struct {
	mu       sync.RWMutex
	sessions map[int64]Session
	verifier CredentialVerifier
	logger   zerolog.Logger
}

// NewService creates an auth service backed by the given verifier.
func NewService(verifier CredentialVerifier, logger zerolog.Logger) *Service {
	return &Service{
		sessions: make(map[int64]Session),
		verifier: verifier,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Login verifies the email against the backend and, on success, establishes
// a session for the user.
func (s *Service) Login(ctx context.Context, userID int64, email string) error {
	email = strings.TrimSpace(email)
	if userID <= 0 || email == "" || !strings.Contains(email, "@") {
		return herrors.ErrInvalidInput
	}

	if err := s.verifier.Verify(ctx, email); err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("login rejected")
		return err
	}

	s.mu.Lock()
	s.sessions[userID] = Session{Email: email, LoginAt: time.Now()}
	s.mu.Unlock()

	s.logger.Info().Int64("user_id", userID).Str("email", email).Msg("user logged in")
	return nil
}

// QuickLogin establishes a session from a remembered mapping without a
// backend round-trip; the mapping was verified when it was created.
func (s *Service) QuickLogin(userID int64, email string) error {
	if userID <= 0 || email == "" {
		return herrors.ErrInvalidInput
	}

	s.mu.Lock()
	s.sessions[userID] = Session{Email: email, LoginAt: time.Now(), QuickLogin: true}
	s.mu.Unlock()

	s.logger.Info().Int64("user_id", userID).Str("email", email).Msg("quick login")
	return nil
}

// ValidateSession reports whether the user currently holds a session.
func (s *Service) ValidateSession(userID int64) bool {
	s.mu.RLock()
	_, ok := s.sessions[userID]
	s.mu.RUnlock()
	return ok
}

// UserSession returns the session for a user, if any.
func (s *Service) UserSession(userID int64) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[userID]
	s.mu.RUnlock()
	return sess, ok
}

// RevokeSession ends the user's session. Revoking an absent session is a
// no-op, so timeout-driven and explicit logout can race safely.
func (s *Service) RevokeSession(userID int64) error {
	s.mu.Lock()
	_, existed := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if existed {
		s.logger.Info().Int64("user_id", userID).Msg("session revoked")
	}
	return nil
}

// SessionCount returns the number of active sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
