// Package ratelimit implements per-user sliding-window admission control.
package ratelimit

import (
	"sync"
	"time"
)

// Window is the trailing interval over which requests are counted.
const Window = 60 * time.Second

// Class is a traffic class with its own independent window per user.
type Class string

const (
	// ClassStandard applies to every authenticated request.
	ClassStandard Class = "standard"
	// ClassGeneration applies only to the message-sending endpoints.
	ClassGeneration Class = "generation"
)

type key struct {
	userID string
	class  Class
}

// Limiter bounds the number of requests per (user, class) within a
// trailing 60-second window. Expired timestamps are evicted lazily on each
// check. State lives only in process memory: it is not shared across
// instances and resets on restart.
type Limiter struct {
	mu      sync.Mutex
	limits  map[Class]int
	windows map[key][]time.Time
	now     func() time.Time
}

// New creates a limiter with the given per-class limits.
func New(standardLimit, generationLimit int) *Limiter {
	return &Limiter{
		limits: map[Class]int{
			ClassStandard:   standardLimit,
			ClassGeneration: generationLimit,
		},
		windows: make(map[key][]time.Time),
		now:     time.Now,
	}
}

// Allow checks and records one request for the user in the given class.
// When the request is rejected, retryAfter is the number of whole seconds
// until the oldest retained entry leaves the window, plus one.
func (l *Limiter) Allow(userID string, class Class) (allowed bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-Window)
	k := key{userID: userID, class: class}

	window := l.windows[k]
	for len(window) > 0 && window[0].Before(cutoff) {
		window = window[1:]
	}

	if len(window) >= l.limits[class] {
		l.windows[k] = window
		if len(window) == 0 {
			// Limit of zero: nothing will ever fall out of the window.
			return false, int(Window.Seconds())
		}
		return false, int(window[0].Sub(cutoff).Seconds()) + 1
	}

	l.windows[k] = append(window, now)
	return true, 0
}
