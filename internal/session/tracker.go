// Package session tracks per-user activity for authenticated sessions and
// drives the inactivity warning / auto-logout lifecycle.
package session

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of tracker state for observability.
type Snapshot struct {
	Tracked int
	Warned  int
}

type entry struct {
	mu           sync.Mutex
	lastActivity time.Time
	warned       bool
}

// Tracker records the instant of last observed activity per authenticated
// user and answers threshold questions. The map is guarded by a read-write
// mutex; each user entry carries its own lock so concurrent requests for
// unrelated users do not serialize.
//
// Callers must establish that the user is authenticated before tracking;
// the tracker itself never consults auth state.
type Tracker struct {
	mu    sync.RWMutex
	users map[int64]*entry

	warnAfter   time.Duration
	logoutAfter time.Duration

	now func() time.Time
}

// NewTracker creates a tracker with the given idle thresholds.
// warnAfter must be shorter than logoutAfter; the difference is the grace
// window the warning gives the user.
func NewTracker(warnAfter, logoutAfter time.Duration) *Tracker {
	return &Tracker{
		users:       make(map[int64]*entry),
		warnAfter:   warnAfter,
		logoutAfter: logoutAfter,
		now:         time.Now,
	}
}

func (t *Tracker) get(userID int64) *entry {
	t.mu.RLock()
	e := t.users[userID]
	t.mu.RUnlock()
	return e
}

// Track upserts the user's last-activity instant to now and clears any
// pending warning state.
func (t *Tracker) Track(userID int64) {
	e := t.get(userID)
	if e == nil {
		t.mu.Lock()
		e = t.users[userID]
		if e == nil {
			e = &entry{}
			t.users[userID] = e
		}
		t.mu.Unlock()
	}

	e.mu.Lock()
	e.lastActivity = t.now()
	e.warned = false
	e.mu.Unlock()
}

// IdleFor returns the elapsed time since the user's last activity.
// An unknown user is simply not tracked; ok is false and the duration is zero.
func (t *Tracker) IdleFor(userID int64) (time.Duration, bool) {
	e := t.get(userID)
	if e == nil {
		return 0, false
	}
	e.mu.Lock()
	idle := t.now().Sub(e.lastActivity)
	e.mu.Unlock()
	return idle, true
}

// ShouldWarn reports whether the user is inside the warning band: idle at
// least the warn threshold, not yet past the logout threshold, and not
// already warned since their last activity.
func (t *Tracker) ShouldWarn(userID int64) bool {
	e := t.get(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idle := t.now().Sub(e.lastActivity)
	return idle >= t.warnAfter && idle < t.logoutAfter && !e.warned
}

// MarkWarned records that the warning for the current idle period was sent.
func (t *Tracker) MarkWarned(userID int64) {
	e := t.get(userID)
	if e == nil {
		return
	}
	e.mu.Lock()
	e.warned = true
	e.mu.Unlock()
}

// ShouldLogout reports whether the user's idle time has reached the logout
// threshold.
func (t *Tracker) ShouldLogout(userID int64) bool {
	e := t.get(userID)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.now().Sub(e.lastActivity) >= t.logoutAfter
}

// Remove drops the user's activity record. Called after logout or explicit
// session end.
func (t *Tracker) Remove(userID int64) {
	t.mu.Lock()
	delete(t.users, userID)
	t.mu.Unlock()
}

// Users returns the IDs of all currently tracked users.
func (t *Tracker) Users() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.users))
	for id := range t.users {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns tracked and warned counts.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{Tracked: len(t.users)}
	for _, e := range t.users {
		e.mu.Lock()
		if e.warned {
			s.Warned++
		}
		e.mu.Unlock()
	}
	return s
}
