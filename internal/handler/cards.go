package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/rag"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// CardHandler serves concept card lookups.
type CardHandler struct {
	cards  rag.CardLookup
	logger *logger.Logger
}

// NewCardHandler creates a new concept card handler.
func NewCardHandler(cards rag.CardLookup, log *logger.Logger) *CardHandler {
	return &CardHandler{
		cards:  cards,
		logger: log,
	}
}

// Get handles GET /api/v1/concept-cards?type=term&lang=en&text=black+hole
func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cardType := q.Get("type")
	lang := q.Get("lang")
	key := q.Get("key")
	text := q.Get("text")

	if text == "" && key == "" {
		writeError(w, http.StatusBadRequest, "text or key is required")
		return
	}

	card, err := h.cards.Lookup(r.Context(), cardType, lang, key, text)
	if err != nil {
		h.logger.Error("concept card lookup failed", zap.String("text", text), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "concept card lookup failed")
		return
	}
	if card == nil {
		writeError(w, http.StatusNotFound, "concept card not found")
		return
	}

	writeJSON(w, http.StatusOK, card)
}
