package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/svcdesk/helpdesk-bot/internal/metrics"
)

// AuthService revokes sessions on forced logout. Implemented by the auth
// package; only authenticated users ever reach the tracker, so the monitor
// never needs to validate.
type AuthService interface {
	RevokeSession(userID int64) error
}

// Notifier delivers a message to a user. Delivery is best-effort; the
// monitor never retries and never lets a failed send block state changes.
type Notifier interface {
	Send(ctx context.Context, userID int64, text string) error
}

// Status describes the monitor for operational introspection.
type Status struct {
	Tracked int  `json:"tracked"`
	Warned  int  `json:"warned"`
	Running bool `json:"running"`
}

// Monitor periodically scans the tracker and, per user, either forces a
// logout (revoke, notify, remove) or sends a one-shot inactivity warning.
// Logout takes precedence over warning within a tick.
type Monitor struct {
	tracker  *Tracker
	auth     AuthService
	notifier Notifier
	interval time.Duration
	grace    time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMonitor creates a session monitor. grace is the warning-to-logout
// window, quoted to the user in the warning text.
func NewMonitor(tracker *Tracker, auth AuthService, notifier Notifier, interval, grace time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Monitor {
	return &Monitor{
		tracker:  tracker,
		auth:     auth,
		notifier: notifier,
		interval: interval,
		grace:    grace,
		logger:   logger.With().Str("component", "session.monitor").Logger(),
		metrics:  m,
	}
}

// Start launches the background tick loop. Starting a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Warn().Msg("monitor already running")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})

	go m.run(ctx)
	m.logger.Info().Dur("interval", m.interval).Msg("session monitor started")
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// Stop signals the loop to end and waits for the in-flight tick to finish.
// Safe to call multiple times and before Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done
	m.logger.Info().Msg("session monitor stopped")
}

// Status returns tracker counts plus whether the loop is running.
func (m *Monitor) Status() Status {
	snap := m.tracker.Snapshot()
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return Status{Tracked: snap.Tracked, Warned: snap.Warned, Running: running}
}

// tick processes every tracked user once. A failure for one user never
// prevents the rest of the tick from running.
func (m *Monitor) tick(ctx context.Context) {
	users := m.tracker.Users()
	for _, userID := range users {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch {
		case m.tracker.ShouldLogout(userID):
			m.forceLogout(ctx, userID)
		case m.tracker.ShouldWarn(userID):
			m.warn(ctx, userID)
		}
	}

	if m.metrics != nil {
		m.metrics.SessionsTracked.Set(float64(m.tracker.Snapshot().Tracked))
	}
}

// forceLogout revokes the session and removes the activity record. The
// notification is best-effort: a delivery failure must not leave the session
// alive or the record behind.
func (m *Monitor) forceLogout(ctx context.Context, userID int64) {
	if err := m.auth.RevokeSession(userID); err != nil {
		m.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to revoke session")
	}
	m.tracker.Remove(userID)

	text := fmt.Sprintf(
		"You have been automatically logged out after %s of inactivity.\n"+
			"Use /login to sign in again, or /me if you chose to be remembered.",
		m.tracker.logoutAfter)
	if err := m.notifier.Send(ctx, userID, text); err != nil {
		m.logger.Warn().Err(err).Int64("user_id", userID).Msg("logout notice not delivered")
		if m.metrics != nil {
			m.metrics.NotifyFailures.Inc()
		}
	}

	if m.metrics != nil {
		m.metrics.LogoutsTotal.Inc()
	}
	m.logger.Info().Int64("user_id", userID).Msg("session auto-logged out")
}

// warn sends the inactivity warning and marks the user warned only if the
// send succeeded, so an undelivered warning is attempted again next tick.
func (m *Monitor) warn(ctx context.Context, userID int64) {
	text := fmt.Sprintf(
		"Inactivity warning: you will be logged out in %s unless you do something.\n"+
			"Send any message to stay signed in.",
		m.grace)
	if err := m.notifier.Send(ctx, userID, text); err != nil {
		m.logger.Warn().Err(err).Int64("user_id", userID).Msg("warning not delivered")
		if m.metrics != nil {
			m.metrics.NotifyFailures.Inc()
		}
		return
	}

	m.tracker.MarkWarned(userID)
	if m.metrics != nil {
		m.metrics.WarningsTotal.Inc()
	}
	m.logger.Info().Int64("user_id", userID).Msg("inactivity warning sent")
}
