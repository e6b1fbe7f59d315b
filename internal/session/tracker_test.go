package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const (
	testWarnAfter   = 8 * time.Minute
	testLogoutAfter = 10 * time.Minute
)

func newTestTracker() (*Tracker, *time.Time) {
	tr := NewTracker(testWarnAfter, testLogoutAfter)
	now := time.Now()
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestTrack_ResetsIdle(t *testing.T) {
	tr, now := newTestTracker()

	tr.Track(1)
	*now = now.Add(5 * time.Minute)

	idle, ok := tr.IdleFor(1)
	assert.True(t, ok)
	assert.Equal(t, 5*time.Minute, idle)

	tr.Track(1)
	idle, ok = tr.IdleFor(1)
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), idle)
}

func TestTrack_ClearsWarned(t *testing.T) {
	tr, now := newTestTracker()

	tr.Track(1)
	*now = now.Add(9 * time.Minute)
	assert.True(t, tr.ShouldWarn(1))
	tr.MarkWarned(1)
	assert.False(t, tr.ShouldWarn(1))

	// Activity resumes: warned flag clears, warning band re-arms later
	tr.Track(1)
	assert.False(t, tr.ShouldWarn(1))
	*now = now.Add(9 * time.Minute)
	assert.True(t, tr.ShouldWarn(1))
}

func TestIdleFor_UnknownUser(t *testing.T) {
	tr, _ := newTestTracker()

	idle, ok := tr.IdleFor(42)
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), idle)
	assert.False(t, tr.ShouldWarn(42))
	assert.False(t, tr.ShouldLogout(42))
}

func TestShouldWarn_Band(t *testing.T) {
	tr, now := newTestTracker()
	tr.Track(1)

	*now = now.Add(7 * time.Minute)
	assert.False(t, tr.ShouldWarn(1), "below warn threshold")

	*now = now.Add(time.Minute)
	assert.True(t, tr.ShouldWarn(1), "at warn threshold")

	*now = now.Add(2 * time.Minute)
	assert.False(t, tr.ShouldWarn(1), "at logout threshold, warn no longer applies")
	assert.True(t, tr.ShouldLogout(1))
}

func TestMarkWarned_Idempotent(t *testing.T) {
	tr, now := newTestTracker()
	tr.Track(1)
	*now = now.Add(9 * time.Minute)

	tr.MarkWarned(1)
	assert.False(t, tr.ShouldWarn(1))
	tr.MarkWarned(1)
	assert.False(t, tr.ShouldWarn(1))
}

func TestShouldLogout_Threshold(t *testing.T) {
	tr, now := newTestTracker()
	tr.Track(1)

	*now = now.Add(10*time.Minute - time.Second)
	assert.False(t, tr.ShouldLogout(1))

	*now = now.Add(time.Second)
	assert.True(t, tr.ShouldLogout(1))
}

func TestRemove(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Track(1)
	tr.Track(2)

	tr.Remove(1)
	_, ok := tr.IdleFor(1)
	assert.False(t, ok)
	_, ok = tr.IdleFor(2)
	assert.True(t, ok)
}

func TestSnapshot(t *testing.T) {
	tr, now := newTestTracker()
	tr.Track(1)
	tr.Track(2)
	tr.Track(3)
	*now = now.Add(9 * time.Minute)
	tr.MarkWarned(2)

	snap := tr.Snapshot()
	assert.Equal(t, 3, snap.Tracked)
	assert.Equal(t, 1, snap.Warned)
}

func TestUsers(t *testing.T) {
	tr, _ := newTestTracker()
	tr.Track(7)
	tr.Track(8)

	ids := tr.Users()
	assert.Len(t, ids, 2)
	assert.ElementsMatch(t, []int64{7, 8}, ids)
}
