package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

func newServices(t *testing.T) (*store.MemStore, *ConversationService, *MessageService) {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)
	st := store.NewMemStore()
	convSvc := NewConversationService(st, log)
	return st, convSvc, NewMessageService(st, convSvc, log)
}

func TestSubmitCreatesUserAndQueuedAssistant(t *testing.T) {
	ctx := context.Background()
	st, convSvc, msgSvc := newServices(t)

	conv, err := convSvc.Create(ctx, "client-1", &model.CreateConversationRequest{Title: "orbits"})
	require.NoError(t, err)

	resp, err := msgSvc.Submit(ctx, "client-1", conv.ID, &model.SubmitMessageRequest{
		Content: "why are orbits elliptical?",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, resp.Status)
	assert.Contains(t, resp.StreamURL, conv.ID)
	assert.Contains(t, resp.StreamURL, resp.MessageID)

	user, err := st.GetMessage(ctx, resp.MessageID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.Equal(t, model.DifficultyIntermediate, user.Difficulty)
	assert.Equal(t, "en", user.Language)

	assistant, err := st.GetMessage(ctx, model.AssistantMessageID(resp.MessageID))
	require.NoError(t, err)
	assert.Equal(t, model.RoleAssistant, assistant.Role)
	assert.Equal(t, model.StatusQueued, assistant.Status)
	assert.Empty(t, assistant.Content)
}

func TestSubmitIsIdempotentOnClientMessageID(t *testing.T) {
	ctx := context.Background()
	_, convSvc, msgSvc := newServices(t)
	conv, err := convSvc.Create(ctx, "client-1", &model.CreateConversationRequest{})
	require.NoError(t, err)

	first, err := msgSvc.Submit(ctx, "client-1", conv.ID, &model.SubmitMessageRequest{
		Content: "hello", ClientMessageID: "cm_1",
	})
	require.NoError(t, err)

	second, err := msgSvc.Submit(ctx, "client-1", conv.ID, &model.SubmitMessageRequest{
		Content: "hello", ClientMessageID: "cm_1",
	})
	require.NoError(t, err)
	assert.Equal(t, first.MessageID, second.MessageID)

	_, err = msgSvc.Submit(ctx, "client-1", conv.ID, &model.SubmitMessageRequest{
		Content: "different", ClientMessageID: "cm_1",
	})
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestSubmitEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	_, convSvc, msgSvc := newServices(t)
	conv, err := convSvc.Create(ctx, "client-1", &model.CreateConversationRequest{})
	require.NoError(t, err)

	_, err = msgSvc.Submit(ctx, "client-2", conv.ID, &model.SubmitMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = msgSvc.Submit(ctx, "client-1", "c_missing", &model.SubmitMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationDetailAndListPreview(t *testing.T) {
	ctx := context.Background()
	_, convSvc, msgSvc := newServices(t)
	conv, err := convSvc.Create(ctx, "client-1", &model.CreateConversationRequest{Title: "stars"})
	require.NoError(t, err)

	_, err = msgSvc.Submit(ctx, "client-1", conv.ID, &model.SubmitMessageRequest{Content: "what is a red giant?"})
	require.NoError(t, err)

	detail, err := convSvc.Detail(ctx, "client-1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, detail.Conversation.ID)
	// User message plus queued assistant placeholder.
	assert.Len(t, detail.Messages, 2)

	list, err := convSvc.List(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, "stars", list.Conversations[0].Title)

	_, err = convSvc.Detail(ctx, "client-2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
