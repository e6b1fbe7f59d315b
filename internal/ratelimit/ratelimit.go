// Package ratelimit implements per-user sliding window admission control.
// It sits in front of all inbound message handling, for anonymous and
// authenticated traffic alike.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding window rate limiter keyed by user ID.
// It is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	maxRequests int
	window      time.Duration
	requests    map[int64][]time.Time
	now         func() time.Time
}

// New creates a rate limiter allowing maxRequests per rolling window.
func New(maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      window,
		requests:    make(map[int64][]time.Time),
		now:         time.Now,
	}
}

// Allow reports whether a request from the given user may proceed and, if
// so, records it. Rejection is a normal admission-control outcome, not an
// error, and leaves no trace beyond the existing window.
func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Drop timestamps that fell out of the window
	times := l.requests[userID]
	valid := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) == 0 {
		delete(l.requests, userID)
	} else {
		l.requests[userID] = valid
	}

	if len(valid) >= l.maxRequests {
		return false
	}

	l.requests[userID] = append(valid, now)
	return true
}

// Remaining returns how many requests the user has left in the current window.
func (l *Limiter) Remaining(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	count := 0
	for _, t := range l.requests[userID] {
		if t.After(cutoff) {
			count++
		}
	}
	if count >= l.maxRequests {
		return 0
	}
	return l.maxRequests - count
}

// Sweep drops tracking state for users with no requests inside the window.
// Called periodically so idle users do not accumulate memory; Allow also
// reclaims lazily on access.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	removed := 0
	for userID, times := range l.requests {
		stale := true
		for _, t := range times {
			if t.After(cutoff) {
				stale = false
				break
			}
		}
		if stale {
			delete(l.requests, userID)
			removed++
		}
	}
	return removed
}

// TrackedUsers returns how many users currently have window state.
func (l *Limiter) TrackedUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}
