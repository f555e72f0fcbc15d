package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroguide/tutoring-platform/pkg/logger"
)

func newTestWikipediaClient(maxResults, maxChars int) *WikipediaClient {
	log, _ := logger.New("error")
	return NewWikipediaClient(maxResults, maxChars, log)
}

func TestParseSearchResponse(t *testing.T) {
	c := newTestWikipediaClient(2, 500)
	body := []byte(`{"pages":[
		{"title":"Supernova","excerpt":"A <span class=\"searchmatch\">supernova</span> is a powerful explosion."},
		{"title":"Type Ia supernova","excerpt":"A subclass of supernovae."}
	]}`)

	result := c.parseSearchResponse(body)
	require.Len(t, result.Snippets, 2)

	assert.Equal(t, "A supernova is a powerful explosion.", result.Snippets[0].Text)
	assert.Equal(t, "Wikipedia: Supernova", result.Snippets[0].Source)
	assert.Equal(t, "wiki_Supernova_0", result.Snippets[0].ChunkID)
	assert.Equal(t, "wiki_Type_Ia_supernova_1", result.Snippets[1].ChunkID)

	assert.Equal(t,
		"A supernova is a powerful explosion.\n\nA subclass of supernovae.",
		result.ReferenceText)
}

func TestParseSearchResponseTruncatesLongExcerpts(t *testing.T) {
	c := newTestWikipediaClient(2, 20)
	body := []byte(`{"pages":[{"title":"Nebula","excerpt":"` + strings.Repeat("x", 40) + `"}]}`)

	result := c.parseSearchResponse(body)
	require.Len(t, result.Snippets, 1)
	assert.Equal(t, strings.Repeat("x", 20)+"...", result.Snippets[0].Text)
}

func TestParseSearchResponseSkipsUntitledPages(t *testing.T) {
	c := newTestWikipediaClient(2, 500)
	body := []byte(`{"pages":[
		{"title":"  ","excerpt":"orphan excerpt"},
		{"title":"Pulsar","excerpt":"A rotating neutron star."}
	]}`)

	result := c.parseSearchResponse(body)
	require.Len(t, result.Snippets, 1)
	assert.Equal(t, "wiki_Pulsar_0", result.Snippets[0].ChunkID)
	assert.Equal(t, "A rotating neutron star.", result.ReferenceText)
}

func TestParseSearchResponseMalformedBody(t *testing.T) {
	c := newTestWikipediaClient(2, 500)
	assert.True(t, c.parseSearchResponse([]byte("not json")).Empty())
	assert.True(t, c.parseSearchResponse([]byte(`{"pages":[]}`)).Empty())
}

func TestStripHTMLTags(t *testing.T) {
	assert.Equal(t, "plain text", stripHTMLTags("plain text"))
	assert.Equal(t, "bold term", stripHTMLTags(`<span class="searchmatch">bold</span> term`))
	assert.Equal(t, "ab", stripHTMLTags("a<br/>b"))
}
