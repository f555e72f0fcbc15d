package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/pkg/logger"
	"github.com/astroguide/tutoring-platform/pkg/metrics"
)

const (
	wikiSearchURL = "https://en.wikipedia.org/w/rest.php/v1/search/page"

	// MediaWiki rate-limits anonymous clients without a User-Agent.
	wikiUserAgent = "AstroGuide/1.0 (https://github.com/astroguide/tutoring-platform)"
)

// WikipediaSearcher retrieves reference material from Wikipedia.
type WikipediaSearcher interface {
	Search(ctx context.Context, query string) (RetrieveResult, error)
}

// WikipediaClient searches the MediaWiki REST API.
type WikipediaClient struct {
	httpClient        *http.Client
	maxResults        int
	maxCharsPerResult int
	logger            *logger.Logger
}

// NewWikipediaClient creates a Wikipedia client. Non-positive bounds fall
// back to 2 results of 500 chars each.
func NewWikipediaClient(maxResults, maxCharsPerResult int, log *logger.Logger) *WikipediaClient {
	if maxResults <= 0 {
		maxResults = 2
	}
	if maxCharsPerResult <= 0 {
		maxCharsPerResult = 500
	}
	return &WikipediaClient{
		httpClient:        &http.Client{Timeout: 10 * time.Second},
		maxResults:        maxResults,
		maxCharsPerResult: maxCharsPerResult,
		logger:            log,
	}
}

// Search fetches page excerpts for a query. An empty result (never an
// error surfaced to the turn) is returned on any upstream failure.
func (c *WikipediaClient) Search(ctx context.Context, query string) (RetrieveResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return RetrieveResult{}, nil
	}

	reqURL := wikiSearchURL + "?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(c.maxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return RetrieveResult{}, fmt.Errorf("build wikipedia request: %w", err)
	}
	req.Header.Set("User-Agent", wikiUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("wikipedia search failed", zap.Error(err))
		metrics.RecordRetrieval("wikipedia", false)
		return RetrieveResult{}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("wikipedia search non-200", zap.Int("status", resp.StatusCode))
		metrics.RecordRetrieval("wikipedia", false)
		return RetrieveResult{}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.RecordRetrieval("wikipedia", false)
		return RetrieveResult{}, nil
	}

	result := c.parseSearchResponse(body)
	metrics.RecordRetrieval("wikipedia", !result.Empty())
	return result, nil
}

type wikiSearchResponse struct {
	Pages []struct {
		Title   string `json:"title"`
		Excerpt string `json:"excerpt"`
	} `json:"pages"`
}

func (c *WikipediaClient) parseSearchResponse(body []byte) RetrieveResult {
	var parsed wikiSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return RetrieveResult{}
	}

	var ref strings.Builder
	var snippets []Snippet

	for _, page := range parsed.Pages {
		if strings.TrimSpace(page.Title) == "" {
			continue
		}
		excerpt := stripHTMLTags(page.Excerpt)
		if len(excerpt) > c.maxCharsPerResult {
			excerpt = excerpt[:c.maxCharsPerResult] + "..."
		}

		snippets = append(snippets, Snippet{
			Text:    excerpt,
			Source:  "Wikipedia: " + page.Title,
			ChunkID: "wiki_" + strings.ReplaceAll(page.Title, " ", "_") + "_" + strconv.Itoa(len(snippets)),
		})

		ref.WriteString(excerpt)
		ref.WriteString("\n\n")
	}

	return RetrieveResult{
		ReferenceText: strings.TrimSpace(ref.String()),
		Snippets:      snippets,
	}
}

// stripHTMLTags removes the <span> highlight markup the search endpoint
// wraps around matched terms.
func stripHTMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
