// Package policy holds the per-turn admission and limit policies applied by
// the stream orchestrator.
package policy

import (
	"sync"
	"time"
)

// Rate gate defaults: 20 requests per 10-minute sliding window.
const (
	DefaultRateWindow = 10 * time.Minute
	DefaultRateLimit  = 20
)

type rateWindow struct {
	start time.Time
	count int
}

// RateGate admits or denies requests based on a per-key request-count
// window. Keys combine client identity and network origin. Denial is a
// normal negative result, not an error.
type RateGate struct {
	window time.Duration
	limit  int

	mu      sync.Mutex
	windows map[string]rateWindow
	now     func() time.Time
}

// NewRateGate creates a rate gate. Non-positive arguments fall back to the
// defaults.
func NewRateGate(window time.Duration, limit int) *RateGate {
	if window <= 0 {
		window = DefaultRateWindow
	}
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &RateGate{
		window:  window,
		limit:   limit,
		windows: make(map[string]rateWindow),
		now:     time.Now,
	}
}

// Allow reports whether a request for the given client may proceed, counting
// it against the window when admitted. The check-and-increment is atomic per
// key: concurrent callers cannot exceed the limit together.
func (g *RateGate) Allow(clientID, clientIP string) bool {
	key := clientID + "|" + clientIP
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.windows[key]
	if !ok || now.Sub(w.start) > g.window {
		g.windows[key] = rateWindow{start: now, count: 1}
		return true
	}
	if w.count >= g.limit {
		return false
	}
	w.count++
	g.windows[key] = w
	return true
}
