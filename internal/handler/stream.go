package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/middleware"
	"github.com/astroguide/tutoring-platform/internal/orchestrator"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// StreamHandler serves the SSE answer stream for a submitted message.
type StreamHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(orch *orchestrator.Orchestrator, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		orchestrator: orch,
		logger:       log,
	}
}

// Stream handles GET /api/v1/conversations/{id}/messages/{messageID}/stream
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := middleware.GetClientID(ctx)
	conversationID := chi.URLParam(r, "id")
	messageID := chi.URLParam(r, "messageID")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateMessageID(messageID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &sseSink{ctx: ctx, w: w, flusher: flusher}

	err := h.orchestrator.Stream(ctx, orchestrator.Request{
		ConversationID: conversationID,
		UserMessageID:  messageID,
		ClientID:       clientID,
		ClientIP:       remoteIP(r),
	}, sink)
	if err != nil && ctx.Err() == nil {
		h.logger.Error("stream ended abnormally",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// sseSink writes server-sent events to the response. Sends are serialized
// so a finalize racing a delta cannot interleave frames.
type sseSink struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

func (s *sseSink) Send(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func remoteIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
