package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/svcdesk/helpdesk-bot/internal/metrics"
)

type fakeAuth struct {
	mu      sync.Mutex
	revoked map[int64]int
	err     error
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{revoked: make(map[int64]int)}
}

func (f *fakeAuth) RevokeSession(userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[userID]++
	return f.err
}

func (f *fakeAuth) revokeCount(userID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[userID]
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail map[int64]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(map[int64][]string), fail: make(map[int64]error)}
}

func (f *fakeNotifier) Send(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[userID]; err != nil {
		return err
	}
	f.sent[userID] = append(f.sent[userID], text)
	return nil
}

func (f *fakeNotifier) messages(userID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[userID]
}

func newTestMonitor(tr *Tracker) (*Monitor, *fakeAuth, *fakeNotifier) {
	auth := newFakeAuth()
	notifier := newFakeNotifier()
	m := NewMonitor(tr, auth, notifier, 30*time.Second, 2*time.Minute, metrics.New(), zerolog.Nop())
	return m, auth, notifier
}

func TestTick_WarnThenLogout(t *testing.T) {
	tr, now := newTestTracker()
	m, auth, notifier := newTestMonitor(tr)
	ctx := context.Background()

	tr.Track(1)

	// t=8m: warning is sent exactly once
	*now = now.Add(8 * time.Minute)
	m.tick(ctx)
	m.tick(ctx)
	assert.Len(t, notifier.messages(1), 1)
	assert.Equal(t, 0, auth.revokeCount(1))

	// t=10m: session revoked once, logout notice sent, record gone
	*now = now.Add(2 * time.Minute)
	m.tick(ctx)
	assert.Equal(t, 1, auth.revokeCount(1))
	assert.Len(t, notifier.messages(1), 2)
	assert.Equal(t, 0, m.Status().Tracked)

	// Further ticks do nothing for the departed user
	m.tick(ctx)
	assert.Equal(t, 1, auth.revokeCount(1))
}

func TestTick_ActivityCancelsLogout(t *testing.T) {
	tr, now := newTestTracker()
	m, auth, notifier := newTestMonitor(tr)
	ctx := context.Background()

	tr.Track(1)

	*now = now.Add(8 * time.Minute)
	m.tick(ctx)
	assert.Len(t, notifier.messages(1), 1)

	// User comes back at t=9m
	*now = now.Add(time.Minute)
	tr.Track(1)

	// t=10m from the start — but idle only 1m now
	*now = now.Add(time.Minute)
	m.tick(ctx)
	assert.Equal(t, 0, auth.revokeCount(1))
	assert.Equal(t, 1, m.Status().Tracked)
}

func TestTick_LogoutPrecedence(t *testing.T) {
	tr, now := newTestTracker()
	m, auth, notifier := newTestMonitor(tr)

	tr.Track(1)
	// Jump straight past the logout threshold; no warning ever sent
	*now = now.Add(11 * time.Minute)
	m.tick(context.Background())

	assert.Equal(t, 1, auth.revokeCount(1))
	msgs := notifier.messages(1)
	assert.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "logged out")
}

func TestTick_NotifyFailureDoesNotBlockLogout(t *testing.T) {
	tr, now := newTestTracker()
	m, auth, notifier := newTestMonitor(tr)

	tr.Track(1)
	tr.Track(2)
	notifier.fail[1] = errors.New("delivery failed")

	*now = now.Add(11 * time.Minute)
	m.tick(context.Background())

	// User 1: revoked and removed despite the failed notice
	assert.Equal(t, 1, auth.revokeCount(1))
	// User 2 still processed in the same tick
	assert.Equal(t, 1, auth.revokeCount(2))
	assert.Equal(t, 0, m.Status().Tracked)
}

func TestTick_WarnFailureRetriedNextTick(t *testing.T) {
	tr, now := newTestTracker()
	m, _, notifier := newTestMonitor(tr)
	ctx := context.Background()

	tr.Track(1)
	notifier.fail[1] = errors.New("delivery failed")

	*now = now.Add(8 * time.Minute)
	m.tick(ctx)
	assert.True(t, tr.ShouldWarn(1), "failed warning leaves the user unwarned")

	delete(notifier.fail, 1)
	m.tick(ctx)
	assert.False(t, tr.ShouldWarn(1))
	assert.Len(t, notifier.messages(1), 1)
}

func TestMonitor_StartStop(t *testing.T) {
	tr, _ := newTestTracker()
	m, _, _ := newTestMonitor(tr)

	assert.False(t, m.Status().Running)

	m.Start(context.Background())
	assert.True(t, m.Status().Running)

	m.Stop()
	assert.False(t, m.Status().Running)

	// Idempotent: stopping again or stopping before start is safe
	m.Stop()

	m2, _, _ := newTestMonitor(tr)
	m2.Stop()
}
