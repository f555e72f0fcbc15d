// Package memory maintains the short-term conversational window used as
// generation context, primed incrementally from the durable store. The
// store stays authoritative; everything here can be rebuilt from it.
package memory

import (
	"sync"

	"github.com/astroguide/tutoring-platform/internal/model"
)

// Entry is one message in the short-term window.
type Entry struct {
	Role    model.Role
	Content string
}

// ChatMemory holds per-conversation short-term windows. Process-local,
// append-only between rebuilds.
type ChatMemory struct {
	mu     sync.RWMutex
	byConv map[string][]Entry
}

// NewChatMemory creates an empty chat memory.
func NewChatMemory() *ChatMemory {
	return &ChatMemory{byConv: make(map[string][]Entry)}
}

// Get returns a copy of the conversation's window, oldest first.
func (m *ChatMemory) Get(conversationID string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.byConv[conversationID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// Append adds entries to the end of the conversation's window.
func (m *ChatMemory) Append(conversationID string, entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byConv[conversationID] = append(m.byConv[conversationID], entries...)
}

// Clear drops the conversation's window.
func (m *ChatMemory) Clear(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byConv, conversationID)
}

// Len returns the number of entries in the conversation's window.
func (m *ChatMemory) Len(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConv[conversationID])
}

// Chars estimates the character size of the window, including a small
// per-entry overhead for role framing. Used for prompt token estimation.
func (m *ChatMemory) Chars(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, e := range m.byConv[conversationID] {
		total += len(e.Content) + 12
	}
	return total
}
