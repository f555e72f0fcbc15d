package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroguide/tutoring-platform/internal/llm"
	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

type scriptedLLM struct {
	content string
	err     error
	calls   int
}

func (s *scriptedLLM) Name() string     { return "scripted" }
func (s *scriptedLLM) Models() []string { return nil }

func (s *scriptedLLM) Complete(_ context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func (s *scriptedLLM) CompleteStream(_ context.Context, _ *llm.CompletionRequest, _ llm.StreamCallback) (*llm.CompletionResponse, error) {
	return nil, nil
}

func TestBuildCacheKey(t *testing.T) {
	assert.Equal(t, "term:black_hole:en", buildCacheKey("term", "en", "", "Black Hole"))
	assert.Equal(t, "sym:h0:zh", buildCacheKey("sym", "zh", "", "H0"))
	assert.Equal(t, "term:custom-key:en", buildCacheKey("term", "en", "custom-key", "ignored text"))
	assert.Empty(t, buildCacheKey("term", "en", "", "   "))
}

func TestLookupReturnsCachedCard(t *testing.T) {
	log, _ := logger.New("error")
	st := store.NewMemStore()
	require.NoError(t, st.PutCard(context.Background(), "term:black_hole:en", &model.ConceptCard{
		Key: "black_hole", Title: "Black Hole",
	}))

	svc := NewCardService(st, nil, "test-model", false, log)
	card, err := svc.Lookup(context.Background(), "term", "en", "", "Black Hole")
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, "Black Hole", card.Title)
}

func TestLookupMissWithoutGenerationReturnsNil(t *testing.T) {
	log, _ := logger.New("error")
	svc := NewCardService(store.NewMemStore(), nil, "test-model", false, log)

	card, err := svc.Lookup(context.Background(), "term", "en", "", "quasar")
	require.NoError(t, err)
	assert.Nil(t, card)
}

func TestLookupGeneratesAndCachesOnMiss(t *testing.T) {
	log, _ := logger.New("error")
	st := store.NewMemStore()
	client := &scriptedLLM{content: "```json\n{\"key\":\"quasar\",\"title\":\"Quasar\",\"short\":\"An active galactic nucleus.\"}\n```"}
	svc := NewCardService(st, client, "test-model", true, log)

	card, err := svc.Lookup(context.Background(), "term", "en", "", "quasar")
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, "Quasar", card.Title)
	assert.Equal(t, 1, client.calls)

	// Second lookup hits the cache.
	card, err = svc.Lookup(context.Background(), "term", "en", "", "quasar")
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, 1, client.calls)
}

func TestLookupGenerationFailureIsAMiss(t *testing.T) {
	log, _ := logger.New("error")
	client := &scriptedLLM{content: "not json at all"}
	svc := NewCardService(store.NewMemStore(), client, "test-model", true, log)

	card, err := svc.Lookup(context.Background(), "term", "en", "", "quasar")
	require.NoError(t, err)
	assert.Nil(t, card)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("junk {\"a\":1} trailing"))
	assert.Equal(t, "no braces", extractJSON("no braces"))
}
