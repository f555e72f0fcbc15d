package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/llm"
	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

// CardLookup resolves concept cards. A nil card with nil error is a miss.
type CardLookup interface {
	Lookup(ctx context.Context, cardType, lang, key, text string) (*model.ConceptCard, error)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9_]`)

// CardService looks up cached concept cards and, when configured, generates
// missing ones with the LLM and caches the result.
type CardService struct {
	store          store.Store
	llm            llm.Client
	model          string
	generateOnMiss bool
	logger         *logger.Logger
}

// NewCardService creates a concept card service. llmClient may be nil when
// generation on miss is disabled.
func NewCardService(st store.Store, llmClient llm.Client, modelName string, generateOnMiss bool, log *logger.Logger) *CardService {
	return &CardService{
		store:          st,
		llm:            llmClient,
		model:          modelName,
		generateOnMiss: generateOnMiss,
		logger:         log,
	}
}

// Lookup finds a card by (type, lang, key-or-text). Cache keys take the
// form type:identifier:lang with the identifier slugged from the display
// text when no explicit key is given.
func (s *CardService) Lookup(ctx context.Context, cardType, lang, key, text string) (*model.ConceptCard, error) {
	cacheKey := buildCacheKey(cardType, lang, key, text)
	if cacheKey == "" {
		return nil, nil
	}

	card, err := s.store.GetCard(ctx, cacheKey)
	if err == nil {
		return card, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("card cache lookup: %w", err)
	}

	if !s.generateOnMiss || s.llm == nil || (key == "" && strings.TrimSpace(text) == "") {
		return nil, nil
	}
	return s.generateAndCache(ctx, cardType, lang, key, text, cacheKey)
}

func buildCacheKey(cardType, lang, key, text string) string {
	var identifier string
	switch {
	case strings.TrimSpace(key) != "":
		identifier = strings.TrimSpace(key)
	case strings.TrimSpace(text) != "":
		identifier = slug(strings.TrimSpace(text))
	default:
		return ""
	}
	return cardType + ":" + identifier + ":" + lang
}

func slug(s string) string {
	lower := strings.ReplaceAll(strings.ToLower(s), " ", "_")
	return slugPattern.ReplaceAllString(lower, "")
}

func (s *CardService) generateAndCache(ctx context.Context, cardType, lang, key, text, cacheKey string) (*model.ConceptCard, error) {
	display := text
	if strings.TrimSpace(display) == "" {
		display = key
	}

	langName := "English"
	if strings.EqualFold(lang, "zh") {
		langName = "Chinese"
	}
	system := "You are an astronomy glossary assistant. Reply with a single JSON object only, no markdown. " +
		`Structure: {"key":"identifier", "title":"display title", "short":"1-3 sentence definition", ` +
		`"details":[{"label":"Meaning","value":"..."}], "see_also":["term1","term2"]}. ` +
		"Use " + langName + " for title, short, and detail values."

	kindWord := "Term"
	if strings.EqualFold(cardType, "sym") {
		kindWord = "Symbol"
	}

	resp, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		Model:  s.model,
		System: system,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleUser), Content: kindWord + ": " + display},
		},
		MaxTokens: 600,
	})
	if err != nil {
		s.logger.Warn("concept card generation failed", zap.Error(err))
		return nil, nil
	}

	var card model.ConceptCard
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &card); err != nil {
		s.logger.Warn("concept card parse failed", zap.Error(err))
		return nil, nil
	}
	if card.Title == "" {
		card.Title = display
	}
	if card.Key == "" {
		card.Key = slug(display)
	}

	if err := s.store.PutCard(ctx, cacheKey, &card); err != nil {
		s.logger.Warn("concept card cache write failed", zap.Error(err))
	}
	return &card, nil
}

// extractJSON trims anything around the outermost JSON object, since models
// occasionally wrap the payload in code fences despite instructions.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
