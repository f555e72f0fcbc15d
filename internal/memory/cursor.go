package memory

import (
	"sync"
	"time"
)

// Cursor is a per-conversation high-water mark: the (CreatedAt, MessageID)
// position up to which durable history has been loaded into short-term
// memory.
type Cursor struct {
	CreatedAt time.Time
	MessageID string
}

// after reports whether c sorts strictly after other.
func (c Cursor) after(other Cursor) bool {
	if c.CreatedAt.After(other.CreatedAt) {
		return true
	}
	return c.CreatedAt.Equal(other.CreatedAt) && c.MessageID > other.MessageID
}

// PrimeTracker owns the cursor table. Cursors only move forward; a forced
// rebuild clears them first.
type PrimeTracker struct {
	mu      sync.Mutex
	cursors map[string]Cursor
}

// NewPrimeTracker creates an empty tracker.
func NewPrimeTracker() *PrimeTracker {
	return &PrimeTracker{cursors: make(map[string]Cursor)}
}

// Get returns the conversation's cursor, if any.
func (t *PrimeTracker) Get(conversationID string) (Cursor, bool) {
	if conversationID == "" {
		return Cursor{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.cursors[conversationID]
	return c, ok
}

// Clear removes the conversation's cursor.
func (t *PrimeTracker) Clear(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cursors, conversationID)
}

// Advance moves the cursor forward. Updates that would move it backward are
// ignored, keeping advancement monotonic under concurrent primes.
func (t *PrimeTracker) Advance(conversationID string, next Cursor) {
	if conversationID == "" || next.CreatedAt.IsZero() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.cursors[conversationID]
	if !ok || next.after(cur) {
		t.cursors[conversationID] = next
	}
}
