// Package store provides durable storage for conversations, messages and
// usage records. The NATS JetStream KV implementation is the production
// backend; MemStore backs tests and single-process development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/astroguide/tutoring-platform/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MessageQuery bounds a messages-in-conversation query. Results are ordered
// ascending by (CreatedAt, ID).
type MessageQuery struct {
	// Before excludes messages with CreatedAt >= Before when non-zero.
	Before time.Time

	// After excludes messages at or before this (CreatedAt, ID) position
	// when non-nil. The bound is strict: a message is included only if its
	// CreatedAt is later, or equal with a greater ID.
	After *Position

	// Limit caps the result count when > 0, keeping the most recent
	// messages. Ordering of the returned slice stays ascending.
	Limit int
}

// Position is a (CreatedAt, ID) point in a conversation's message order.
type Position struct {
	CreatedAt time.Time
	MessageID string
}

// AfterPosition reports whether msg sorts strictly after pos.
func AfterPosition(msg *model.Message, pos Position) bool {
	if msg.CreatedAt.After(pos.CreatedAt) {
		return true
	}
	return msg.CreatedAt.Equal(pos.CreatedAt) && msg.ID > pos.MessageID
}

// Store is the durable conversation/message/usage store.
type Store interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	SaveConversation(ctx context.Context, conv *model.Conversation) error
	UpdateConversation(ctx context.Context, conv *model.Conversation) error
	ListConversations(ctx context.Context, clientID string, limit int) ([]model.Conversation, error)

	GetMessage(ctx context.Context, id string) (*model.Message, error)
	SaveMessage(ctx context.Context, msg *model.Message) error
	UpdateMessage(ctx context.Context, msg *model.Message) error
	QueryMessages(ctx context.Context, conversationID string, q MessageQuery) ([]model.Message, error)

	// FindUserMessage looks up a user message by its client idempotency key.
	FindUserMessage(ctx context.Context, conversationID, clientMessageID string) (*model.Message, error)

	SaveUsage(ctx context.Context, usage *model.RequestUsage) error

	GetCard(ctx context.Context, cacheKey string) (*model.ConceptCard, error)
	PutCard(ctx context.Context, cacheKey string, card *model.ConceptCard) error
}
