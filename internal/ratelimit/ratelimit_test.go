package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(max int, window time.Duration) (*Limiter, *time.Time) {
	l := New(max, window)
	now := time.Now()
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllow_WithinBudget(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(1), "request %d should be admitted", i+1)
	}
	assert.False(t, l.Allow(1), "6th request in the window should be rejected")
}

func TestAllow_RecoversAfterWindow(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow(1))
	}
	assert.False(t, l.Allow(1))

	*now = now.Add(61 * time.Second)
	assert.True(t, l.Allow(1), "request after the window elapses should be admitted")
}

func TestAllow_UsersIndependent(t *testing.T) {
	l, _ := newTestLimiter(2, time.Minute)

	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))
	assert.True(t, l.Allow(2), "another user has their own window")
}

func TestRemaining(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)

	assert.Equal(t, 3, l.Remaining(1))
	l.Allow(1)
	assert.Equal(t, 2, l.Remaining(1))
	l.Allow(1)
	l.Allow(1)
	assert.Equal(t, 0, l.Remaining(1))
}

func TestSweep_ReclaimsIdleUsers(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	l.Allow(1)
	l.Allow(2)
	assert.Equal(t, 2, l.TrackedUsers())

	*now = now.Add(2 * time.Minute)
	removed := l.Sweep()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 0, l.TrackedUsers())
}

func TestAllow_LazyEviction(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)

	l.Allow(1)
	*now = now.Add(2 * time.Minute)

	// Rejected probe from another path should not retain the stale entry
	assert.True(t, l.Allow(1))
	assert.Equal(t, 1, l.TrackedUsers())
}

func TestAllow_Concurrent(t *testing.T) {
	l := New(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Allow(id)
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 10, l.TrackedUsers())
	for i := int64(0); i < 10; i++ {
		assert.Equal(t, 900, l.Remaining(i))
	}
}
