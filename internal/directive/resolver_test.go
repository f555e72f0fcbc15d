package directive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/rag"
	"github.com/astroguide/tutoring-platform/pkg/logger"
)

type fakeWiki struct {
	query  string
	result rag.RetrieveResult
	err    error
}

func (f *fakeWiki) Search(_ context.Context, query string) (rag.RetrieveResult, error) {
	f.query = query
	return f.result, f.err
}

type fakeKB struct {
	query  string
	topK   int
	result rag.RetrieveResult
	err    error
}

func (f *fakeKB) Search(_ context.Context, query string, topK int) (rag.RetrieveResult, error) {
	f.query = query
	f.topK = topK
	return f.result, f.err
}

type fakeCards struct {
	cardType, lang, key, text string

	card *model.ConceptCard
	err  error
}

func (f *fakeCards) Lookup(_ context.Context, cardType, lang, key, text string) (*model.ConceptCard, error) {
	f.cardType, f.lang, f.key, f.text = cardType, lang, key, text
	return f.card, f.err
}

func newTestResolver(wiki rag.WikipediaSearcher, kb rag.KnowledgeBaseSearcher, cards rag.CardLookup) *Resolver {
	log, _ := logger.New("error")
	return NewResolver(wiki, kb, cards, log)
}

func TestResolvePlainTextIsNone(t *testing.T) {
	r := newTestResolver(nil, nil, nil)

	d := r.Resolve(context.Background(), "what is a pulsar?", "en")

	assert.Equal(t, KindNone, d.Kind)
	assert.Equal(t, "what is a pulsar?", d.CleanedText)
	assert.Equal(t, "what is a pulsar?", d.AugmentedText)
	assert.False(t, d.HasReference)
}

func TestResolveEmptyPayloadIsNone(t *testing.T) {
	wiki := &fakeWiki{}
	r := newTestResolver(wiki, nil, nil)

	for _, raw := range []string{"@wiki:", "@wiki:   ", "@kb:", "@card:  "} {
		d := r.Resolve(context.Background(), raw, "en")
		assert.Equal(t, KindNone, d.Kind, "input %q", raw)
		assert.Equal(t, raw, d.CleanedText, "input %q", raw)
	}
	assert.Empty(t, wiki.query, "collaborator must not be called for empty payloads")
}

func TestResolveWiki(t *testing.T) {
	wiki := &fakeWiki{
		result: rag.RetrieveResult{
			ReferenceText: "[1] Wikipedia: Supernova\nA supernova is a powerful explosion of a star.",
			Snippets: []rag.Snippet{
				{Text: "A supernova is a powerful explosion of a star.", Source: "Wikipedia: Supernova", ChunkID: "wiki_Supernova_0"},
			},
		},
	}
	r := newTestResolver(wiki, nil, nil)

	d := r.Resolve(context.Background(), "@wiki:supernova", "en")

	require.Equal(t, KindWiki, d.Kind)
	assert.Equal(t, "supernova", wiki.query)
	assert.Equal(t, "supernova", d.CleanedText)
	assert.True(t, d.HasReference)
	assert.Contains(t, d.AugmentedText, "[Reference]")
	assert.Contains(t, d.AugmentedText, "\n\n---\n\nsupernova")
	require.Len(t, d.WikiSnippets, 1)
	assert.Empty(t, d.KBSnippets)
}

func TestResolveWikiPrefixIsCaseInsensitive(t *testing.T) {
	wiki := &fakeWiki{}
	r := newTestResolver(wiki, nil, nil)

	d := r.Resolve(context.Background(), "@WiKi: black holes", "en")

	assert.Equal(t, KindWiki, d.Kind)
	assert.Equal(t, "black holes", wiki.query)
}

func TestResolveWikiFailureIsRecovered(t *testing.T) {
	wiki := &fakeWiki{err: errors.New("upstream timeout")}
	r := newTestResolver(wiki, nil, nil)

	d := r.Resolve(context.Background(), "@wiki:supernova", "en")

	assert.Equal(t, KindWiki, d.Kind)
	assert.False(t, d.HasReference)
	assert.Equal(t, "supernova", d.AugmentedText)
	assert.Empty(t, d.WikiSnippets)
}

func TestResolveKBWithTopK(t *testing.T) {
	kb := &fakeKB{
		result: rag.RetrieveResult{
			ReferenceText: "[KB-1] Black holes form from collapsed stars.",
			Snippets:      []rag.Snippet{{Text: "Black holes form from collapsed stars.", Source: "kb"}},
		},
	}
	r := newTestResolver(nil, kb, nil)

	d := r.Resolve(context.Background(), "@kb:black holes topk=3", "en")

	require.Equal(t, KindKB, d.Kind)
	assert.Equal(t, "black holes", kb.query)
	assert.Equal(t, 3, kb.topK)
	assert.Equal(t, "black holes", d.CleanedText)
	assert.True(t, d.HasReference)
	require.Len(t, d.KBSnippets, 1)
	assert.Empty(t, d.WikiSnippets)
}

func TestResolveKBTopKMidQuery(t *testing.T) {
	kb := &fakeKB{}
	r := newTestResolver(nil, kb, nil)

	d := r.Resolve(context.Background(), "@kb:dark TOPK=5 matter", "en")

	assert.Equal(t, KindKB, d.Kind)
	assert.Equal(t, 5, kb.topK)
	assert.Contains(t, kb.query, "dark")
	assert.Contains(t, kb.query, "matter")
	assert.NotContains(t, kb.query, "TOPK")
	assert.Equal(t, kb.query, d.CleanedText)
}

func TestResolveKBWithoutTopKUsesZeroHint(t *testing.T) {
	kb := &fakeKB{}
	r := newTestResolver(nil, kb, nil)

	r.Resolve(context.Background(), "@kb:nebula", "en")

	assert.Equal(t, "nebula", kb.query)
	assert.Equal(t, 0, kb.topK)
}

func TestResolveCardKeyValueArgs(t *testing.T) {
	cards := &fakeCards{card: &model.ConceptCard{Key: "black_hole", Title: "黑洞"}}
	r := newTestResolver(nil, nil, cards)

	d := r.Resolve(context.Background(), `@card:type=sym lang=zh text="黑洞"`, "en")

	require.Equal(t, KindCard, d.Kind)
	assert.Equal(t, "sym", cards.cardType)
	assert.Equal(t, "zh", cards.lang)
	assert.Equal(t, "黑洞", cards.text)
	assert.Equal(t, "黑洞", d.CleanedText)
	assert.True(t, d.HasReference)
	assert.Contains(t, d.AugmentedText, "[Concept Card]")
}

func TestResolveCardPositionalShorthand(t *testing.T) {
	cases := []struct {
		payload  string
		hint     string
		cardType string
		lang     string
		text     string
	}{
		{"term zh 黑洞", "en", "term", "zh", "黑洞"},
		{"sym en Schwarzschild radius", "zh", "sym", "en", "Schwarzschild radius"},
		{"zh 黑洞", "en", "term", "zh", "黑洞"},
		{"black hole", "en", "term", "en", "black hole"},
		{"black hole", "zh", "term", "zh", "black hole"},
	}

	for _, tc := range cases {
		cards := &fakeCards{}
		r := newTestResolver(nil, nil, cards)

		r.Resolve(context.Background(), "@card:"+tc.payload, tc.hint)

		assert.Equal(t, tc.cardType, cards.cardType, "payload %q", tc.payload)
		assert.Equal(t, tc.lang, cards.lang, "payload %q", tc.payload)
		assert.Equal(t, tc.text, cards.text, "payload %q", tc.payload)
	}
}

func TestResolveCardInvalidTypeAndLangAreForced(t *testing.T) {
	cards := &fakeCards{}
	r := newTestResolver(nil, nil, cards)

	r.Resolve(context.Background(), "@card:type=formula lang=fr text=gravity", "en")

	assert.Equal(t, "term", cards.cardType)
	assert.Equal(t, "en", cards.lang)
	assert.Equal(t, "gravity", cards.text)
}

func TestResolveCardMissHasNoReference(t *testing.T) {
	cards := &fakeCards{card: nil}
	r := newTestResolver(nil, nil, cards)

	d := r.Resolve(context.Background(), "@card:quasar", "en")

	assert.Equal(t, KindCard, d.Kind)
	assert.False(t, d.HasReference)
	assert.Equal(t, "quasar", d.AugmentedText)
}

func TestAugment(t *testing.T) {
	assert.Equal(t, "q", Augment("Reference", "   ", "q"))
	assert.Equal(t, "[Reference]\n\nref\n\n---\n\nq", Augment("Reference", "ref", "q"))
}
