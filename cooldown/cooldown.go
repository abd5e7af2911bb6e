// Package cooldown implements a single-slot wall-clock cooldown per (subject, action).
//
// The server uses a Guard as the authoritative rate limit for customer interactions;
// the client SDK uses another instance only to drive UI countdowns.
package cooldown

import (
	"math"
	"sync"
	"time"
)

// Action types rate-limited per session.
const (
	ActionCallWaiter  = "call-waiter"
	ActionRequestBill = "request-bill"
)

// DefaultWindow is the cooldown applied when a Guard is built with zero duration.
const DefaultWindow = 60 * time.Second

// Result is the outcome of TryInvoke. Remaining is whole seconds, rounded up.
type Result struct {
	Allowed   bool
	Remaining int
}

type key struct {
	subject string
	action  string
}

// Guard remembers when each (subject, action) last succeeded.
type Guard struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[key]time.Time
}

// New returns a Guard with the given window. now may be nil (time.Now).
func New(window time.Duration, now func() time.Time) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{
		window: window,
		now:    now,
		last:   make(map[key]time.Time),
	}
}

// Window returns the configured cooldown.
func (g *Guard) Window() time.Duration {
	return g.window
}

// TryInvoke starts the cooldown if it is not running, otherwise reports the seconds left.
func (g *Guard) TryInvoke(subject, action string) Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	k := key{subject: subject, action: action}
	if at, ok := g.last[k]; ok {
		if left := at.Add(g.window).Sub(now); left > 0 {
			return Result{Allowed: false, Remaining: ceilSeconds(left)}
		}
	}
	g.last[k] = now
	return Result{Allowed: true, Remaining: ceilSeconds(g.window)}
}

// Remaining reports the seconds left without starting a cooldown.
func (g *Guard) Remaining(subject, action string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	at, ok := g.last[key{subject: subject, action: action}]
	if !ok {
		return 0
	}
	if left := at.Add(g.window).Sub(g.now()); left > 0 {
		return ceilSeconds(left)
	}
	return 0
}

// Restore seeds a previous invocation time, e.g. from persisted client state.
func (g *Guard) Restore(subject, action string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[key{subject: subject, action: action}] = at
}

// Reset clears one (subject, action) so the next TryInvoke is allowed.
// Other actions of the subject keep their cooldown.
func (g *Guard) Reset(subject, action string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key{subject: subject, action: action})
}

// Forget drops every entry of a subject (session closed).
func (g *Guard) Forget(subject string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k := range g.last {
		if k.subject == subject {
			delete(g.last, k)
		}
	}
}

// Prune removes entries whose cooldown has elapsed and returns how many were removed.
func (g *Guard) Prune() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	removed := 0
	for k, at := range g.last {
		if !at.Add(g.window).After(now) {
			delete(g.last, k)
			removed++
		}
	}
	return removed
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
