package store

import (
	"context"
	"sort"
	"sync"

	"github.com/astroguide/tutoring-platform/internal/model"
)

// MemStore is an in-memory Store. It is the dev-mode backend and the test
// double for everything that consumes Store.
type MemStore struct {
	mu            sync.RWMutex
	conversations map[string]model.Conversation
	messages      map[string]model.Message
	usage         []model.RequestUsage
	cards         map[string]model.ConceptCard
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		conversations: make(map[string]model.Conversation),
		messages:      make(map[string]model.Message),
		cards:         make(map[string]model.ConceptCard),
	}
}

func (s *MemStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := conv
	return &out, nil
}

func (s *MemStore) SaveConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = *conv
	return nil
}

func (s *MemStore) UpdateConversation(ctx context.Context, conv *model.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.ID]; !ok {
		return ErrNotFound
	}
	s.conversations[conv.ID] = *conv
	return nil
}

func (s *MemStore) ListConversations(ctx context.Context, clientID string, limit int) ([]model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Conversation
	for _, conv := range s.conversations {
		if conv.ClientID == clientID {
			out = append(out, conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := msg
	return &out, nil
}

func (s *MemStore) SaveMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = *msg
	return nil
}

func (s *MemStore) UpdateMessage(ctx context.Context, msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[msg.ID]; !ok {
		return ErrNotFound
	}
	s.messages[msg.ID] = *msg
	return nil
}

func (s *MemStore) QueryMessages(ctx context.Context, conversationID string, q MessageQuery) ([]model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Message
	for _, msg := range s.messages {
		if msg.ConversationID != conversationID {
			continue
		}
		if !q.Before.IsZero() && !msg.CreatedAt.Before(q.Before) {
			continue
		}
		if q.After != nil {
			m := msg
			if !AfterPosition(&m, *q.After) {
				continue
			}
		}
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out, nil
}

func (s *MemStore) FindUserMessage(ctx context.Context, conversationID, clientMessageID string) (*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID &&
			msg.Role == model.RoleUser &&
			msg.ClientMessageID == clientMessageID {
			out := msg
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemStore) SaveUsage(ctx context.Context, usage *model.RequestUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, *usage)
	return nil
}

// Usage returns a copy of all recorded usage entries, for tests.
func (s *MemStore) Usage() []model.RequestUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.RequestUsage, len(s.usage))
	copy(out, s.usage)
	return out
}

func (s *MemStore) GetCard(ctx context.Context, cacheKey string) (*model.ConceptCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[cacheKey]
	if !ok {
		return nil, ErrNotFound
	}
	out := card
	return &out, nil
}

func (s *MemStore) PutCard(ctx context.Context, cacheKey string, card *model.ConceptCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[cacheKey] = *card
	return nil
}
