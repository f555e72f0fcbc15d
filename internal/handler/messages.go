package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/middleware"
	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/service"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// MessageHandler handles message submission endpoints.
type MessageHandler struct {
	service *service.MessageService
	logger  *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(svc *service.MessageService, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		service: svc,
		logger:  log,
	}
}

// Submit handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := middleware.GetClientID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SubmitMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateDifficulty(req.Difficulty); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateLanguage(req.Language); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Submit(ctx, clientID, conversationID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, service.ErrIdempotencyConflict):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to submit message", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to submit message")
		}
		return
	}

	w.Header().Set("X-Stream-URL", resp.StreamURL)
	writeJSON(w, http.StatusAccepted, resp)
}
