package users

import (
	"sync"
	"time"
)

// LoginGuard throttles failed login attempts per key (email plus client IP).
// Failure timestamps decay out of a sliding window; once the window holds the
// configured maximum the key is locked until the oldest failure expires.
type LoginGuard struct {
	mu          sync.Mutex
	maxFailures int
	window      time.Duration
	failures    map[string][]time.Time
	now         func() time.Time
}

// NewLoginGuard creates a guard allowing maxFailures failed attempts per
// decay window.
func NewLoginGuard(maxFailures int, window time.Duration) *LoginGuard {
	return &LoginGuard{
		maxFailures: maxFailures,
		window:      window,
		failures:    make(map[string][]time.Time),
		now:         time.Now,
	}
}

// Allow reports whether a login attempt for the key may proceed, and if not,
// how long until the lock drains.
func (g *LoginGuard) Allow(key string) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	recent := g.pruneLocked(key)
	if len(recent) < g.maxFailures {
		return true, 0
	}
	retryAfter := recent[0].Add(g.window).Sub(g.now())
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter
}

// RecordFailure notes a failed attempt for the key.
func (g *LoginGuard) RecordFailure(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	recent := g.pruneLocked(key)
	g.failures[key] = append(recent, g.now())
}

// RecordSuccess clears the failure history for the key.
func (g *LoginGuard) RecordSuccess(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, key)
}

// Sweep drops keys whose failures have all decayed. Call periodically to
// bound memory.
func (g *LoginGuard) Sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for key := range g.failures {
		if len(g.pruneLocked(key)) == 0 {
			delete(g.failures, key)
		}
	}
}

func (g *LoginGuard) pruneLocked(key string) []time.Time {
	cutoff := g.now().Add(-g.window)
	all := g.failures[key]
	i := 0
	for i < len(all) && !all[i].After(cutoff) {
		i++
	}
	recent := all[i:]
	if i > 0 {
		g.failures[key] = recent
	}
	return recent
}
