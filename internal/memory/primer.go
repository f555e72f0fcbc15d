package memory

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/policy"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// Primer brings a conversation's short-term window up to date with durable
// history, strictly excluding the current turn. It rebuilds from scratch
// when the cursor is missing, memory is empty, or the current turn predates
// the cursor (an ordering anomaly); otherwise it loads only the delta past
// the cursor.
type Primer struct {
	store   store.Store
	memory  *ChatMemory
	tracker *PrimeTracker
	logger  *logger.Logger
}

// NewPrimer creates a primer over the given store and memory tables.
func NewPrimer(st store.Store, mem *ChatMemory, tracker *PrimeTracker, log *logger.Logger) *Primer {
	return &Primer{store: st, memory: mem, tracker: tracker, logger: log}
}

// Prime loads history for the current user turn. Priming the same turn
// twice is a no-op: the cursor bounds what has already been loaded.
func (p *Primer) Prime(ctx context.Context, conversationID string, currentTurn *model.Message) error {
	if conversationID == "" || currentTurn == nil || currentTurn.CreatedAt.IsZero() {
		return nil
	}

	cursor, ok := p.tracker.Get(conversationID)
	needRebuild := !ok ||
		p.memory.Len(conversationID) == 0 ||
		currentTurn.CreatedAt.Before(cursor.CreatedAt)

	if needRebuild {
		p.logger.Debug("rebuilding chat memory", zap.String("conversation_id", conversationID))
		p.memory.Clear(conversationID)
		p.tracker.Clear(conversationID)
		return p.rebuild(ctx, conversationID, currentTurn)
	}
	return p.incremental(ctx, conversationID, currentTurn, cursor)
}

func (p *Primer) rebuild(ctx context.Context, conversationID string, currentTurn *model.Message) error {
	history, err := p.store.QueryMessages(ctx, conversationID, store.MessageQuery{
		Before: currentTurn.CreatedAt,
		Limit:  2 * policy.MaxRounds,
	})
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	p.load(conversationID, history)
	return nil
}

func (p *Primer) incremental(ctx context.Context, conversationID string, currentTurn *model.Message, cursor Cursor) error {
	delta, err := p.store.QueryMessages(ctx, conversationID, store.MessageQuery{
		Before: currentTurn.CreatedAt,
		After:  &store.Position{CreatedAt: cursor.CreatedAt, MessageID: cursor.MessageID},
	})
	if err != nil {
		return fmt.Errorf("load history delta: %w", err)
	}
	p.load(conversationID, delta)
	return nil
}

// load converts eligible messages to entries, appends them, and advances
// the cursor past everything seen (including skipped messages, so they are
// not re-examined on the next prime).
func (p *Primer) load(conversationID string, msgs []model.Message) {
	var entries []Entry
	var last *model.Message

	for i := range msgs {
		m := &msgs[i]
		last = m
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		// Queued assistant placeholders have no generated content yet.
		if m.Role == model.RoleAssistant && m.Status == model.StatusQueued {
			continue
		}
		entries = append(entries, Entry{Role: m.Role, Content: m.Content})
	}

	p.memory.Append(conversationID, entries...)

	if last != nil && !last.CreatedAt.IsZero() {
		p.tracker.Advance(conversationID, Cursor{
			CreatedAt: last.CreatedAt,
			MessageID: last.ID,
		})
	}
}
