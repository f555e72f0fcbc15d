// Package service provides business logic for the tutoring platform.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// ErrNotFound is returned when a requested resource does not exist or the
// caller does not own it. Ownership failures are deliberately
// indistinguishable from absence.
var ErrNotFound = errors.New("not found")

const (
	maxListConversations = 50
	maxDetailMessages    = 200
	previewLength        = 80
)

// ConversationService handles conversation operations.
type ConversationService struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, logger: log}
}

// Create creates a new conversation owned by clientID.
func (s *ConversationService) Create(ctx context.Context, clientID string, req *model.CreateConversationRequest) (*model.Conversation, error) {
	now := time.Now().UTC()

	conv := &model.Conversation{
		ID:        newID("c"),
		ClientID:  clientID,
		Title:     req.Title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveConversation(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("client_id", clientID),
	)
	return conv, nil
}

// Get retrieves a conversation, enforcing ownership.
func (s *ConversationService) Get(ctx context.Context, clientID, conversationID string) (*model.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if conv.ClientID != clientID {
		return nil, ErrNotFound
	}
	return conv, nil
}

// List retrieves the caller's conversations, most recently updated first,
// each with a short preview of its latest message.
func (s *ConversationService) List(ctx context.Context, clientID string) (*model.ListConversationsResponse, error) {
	convs, err := s.store.ListConversations(ctx, clientID, maxListConversations)
	if err != nil {
		return nil, err
	}

	items := make([]model.ConversationListItem, 0, len(convs))
	for _, conv := range convs {
		items = append(items, model.ConversationListItem{
			ID:        conv.ID,
			Title:     conv.Title,
			Preview:   s.preview(ctx, conv.ID),
			UpdatedAt: conv.UpdatedAt,
		})
	}

	return &model.ListConversationsResponse{
		Conversations: items,
		Total:         len(items),
	}, nil
}

// Detail retrieves a conversation with its messages, oldest first.
func (s *ConversationService) Detail(ctx context.Context, clientID, conversationID string) (*model.ConversationDetailResponse, error) {
	conv, err := s.Get(ctx, clientID, conversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.QueryMessages(ctx, conversationID, store.MessageQuery{Limit: maxDetailMessages})
	if err != nil {
		return nil, err
	}

	return &model.ConversationDetailResponse{
		Conversation: *conv,
		Messages:     msgs,
	}, nil
}

// Touch bumps the conversation's UpdatedAt after new activity.
func (s *ConversationService) Touch(ctx context.Context, conv *model.Conversation) {
	conv.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateConversation(ctx, conv); err != nil {
		s.logger.Warn("failed to touch conversation",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

func (s *ConversationService) preview(ctx context.Context, conversationID string) string {
	msgs, err := s.store.QueryMessages(ctx, conversationID, store.MessageQuery{Limit: 1})
	if err != nil || len(msgs) == 0 {
		return ""
	}
	content := msgs[len(msgs)-1].Content
	runes := []rune(content)
	if len(runes) > previewLength {
		return string(runes[:previewLength]) + "..."
	}
	return content
}

func newID(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return prefix + "_" + hex.EncodeToString(b)
}
