package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
	"github.com/astroguide/tutoring-platform/pkg/metrics"
)

// ErrIdempotencyConflict is returned when a client message ID is reused
// with different content.
var ErrIdempotencyConflict = errors.New("client message ID already used with different content")

// MessageService handles message submission and lookup.
type MessageService struct {
	store         store.Store
	conversations *ConversationService
	logger        *logger.Logger
}

// NewMessageService creates a new message service.
func NewMessageService(st store.Store, conversations *ConversationService, log *logger.Logger) *MessageService {
	return &MessageService{store: st, conversations: conversations, logger: log}
}

// Submit records a user message and its queued assistant placeholder, and
// returns where to stream the answer from. Resubmitting the same client
// message ID with identical content returns the original message instead
// of creating a duplicate turn.
func (s *MessageService) Submit(ctx context.Context, clientID, conversationID string, req *model.SubmitMessageRequest) (*model.SubmitMessageResponse, error) {
	conv, err := s.conversations.Get(ctx, clientID, conversationID)
	if err != nil {
		return nil, err
	}

	if req.ClientMessageID != "" {
		existing, err := s.store.FindUserMessage(ctx, conversationID, req.ClientMessageID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			if existing.Content != req.Content {
				return nil, ErrIdempotencyConflict
			}
			return s.response(conversationID, existing.ID), nil
		}
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = model.DifficultyIntermediate
	}
	language := req.Language
	if language == "" {
		language = "en"
	}

	now := time.Now().UTC()
	userMsg := &model.Message{
		ID:              newID("m"),
		ConversationID:  conversationID,
		Role:            model.RoleUser,
		Content:         req.Content,
		Difficulty:      difficulty,
		Language:        language,
		Status:          model.StatusDone,
		ClientMessageID: req.ClientMessageID,
		CreatedAt:       now,
	}

	assistant := &model.Message{
		ID:             model.AssistantMessageID(userMsg.ID),
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Difficulty:     difficulty,
		Language:       language,
		Status:         model.StatusQueued,
		CreatedAt:      now.Add(time.Millisecond),
	}

	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, err
	}
	if err := s.store.SaveMessage(ctx, assistant); err != nil {
		return nil, err
	}

	s.conversations.Touch(ctx, conv)
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser)).Inc()

	s.logger.Info("message submitted",
		zap.String("conversation_id", conversationID),
		zap.String("message_id", userMsg.ID),
		zap.String("difficulty", difficulty),
	)

	return s.response(conversationID, userMsg.ID), nil
}

// GetUserMessage retrieves a user message, enforcing conversation ownership.
func (s *MessageService) GetUserMessage(ctx context.Context, clientID, conversationID, messageID string) (*model.Message, error) {
	if _, err := s.conversations.Get(ctx, clientID, conversationID); err != nil {
		return nil, err
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, ErrNotFound
	}
	return msg, nil
}

func (s *MessageService) response(conversationID, messageID string) *model.SubmitMessageResponse {
	return &model.SubmitMessageResponse{
		MessageID: messageID,
		StreamURL: fmt.Sprintf("/api/v1/conversations/%s/messages/%s/stream", conversationID, messageID),
		Status:    model.StatusQueued,
	}
}
