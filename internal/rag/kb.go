package rag

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/pkg/logger"
	"github.com/astroguide/tutoring-platform/pkg/metrics"
)

// DefaultKBTopK is the result count used when the caller gives no hint.
const DefaultKBTopK = 8

const kbExcerptLen = 300

// KnowledgeBaseSearcher retrieves evidence from the internal knowledge base.
type KnowledgeBaseSearcher interface {
	Search(ctx context.Context, query string, topK int) (RetrieveResult, error)
}

// WeaviateKB is a KnowledgeBaseSearcher over a weaviate class holding
// ingested text chunks with text/source/chunkId properties.
type WeaviateKB struct {
	client *weaviate.Client
	class  string
	logger *logger.Logger
}

// NewWeaviateKB connects a knowledge base client.
func NewWeaviateKB(host, scheme, class string, log *logger.Logger) (*WeaviateKB, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   host,
		Scheme: scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return &WeaviateKB{client: client, class: class, logger: log}, nil
}

// Search runs a near-text query. As with all retrieval collaborators, an
// upstream failure yields an empty result rather than failing the turn.
func (k *WeaviateKB) Search(ctx context.Context, query string, topK int) (RetrieveResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return RetrieveResult{}, nil
	}
	if topK <= 0 {
		topK = DefaultKBTopK
	}

	nearText := k.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "source"},
		{Name: "chunkId"},
		{Name: "_additional { id }"},
	}

	result, err := k.client.GraphQL().Get().
		WithClassName(k.class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		k.logger.Warn("knowledge base search failed", zap.Error(err))
		metrics.RecordRetrieval("kb", false)
		return RetrieveResult{}, nil
	}
	if len(result.Errors) > 0 {
		k.logger.Warn("knowledge base search error", zap.String("message", result.Errors[0].Message))
		metrics.RecordRetrieval("kb", false)
		return RetrieveResult{}, nil
	}

	out := k.parseResults(result.Data)
	metrics.RecordRetrieval("kb", !out.Empty())
	return out, nil
}

func (k *WeaviateKB) parseResults(data map[string]models.JSONObject) RetrieveResult {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return RetrieveResult{}
	}
	objs, ok := get[k.class].([]interface{})
	if !ok {
		return RetrieveResult{}
	}

	var ref strings.Builder
	var snippets []Snippet

	for i, obj := range objs {
		props, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		text := stringProp(props, "text")
		if strings.TrimSpace(text) == "" {
			continue
		}

		chunkID := stringProp(props, "chunkId")
		if chunkID == "" {
			if add, ok := props["_additional"].(map[string]interface{}); ok {
				chunkID = stringProp(add, "id")
			}
		}
		if chunkID == "" {
			chunkID = "kb_" + strconv.Itoa(i)
		}

		source := stringProp(props, "source")
		if source == "" {
			source = "KnowledgeBase"
		}

		excerpt := text
		if len(excerpt) > kbExcerptLen {
			excerpt = excerpt[:kbExcerptLen] + "..."
		}

		snippets = append(snippets, Snippet{
			Text:    excerpt,
			Source:  source,
			ChunkID: chunkID,
		})

		ref.WriteString("[KB-" + strconv.Itoa(len(snippets)) + "] ")
		ref.WriteString(excerpt)
		ref.WriteString("\n")
	}

	return RetrieveResult{
		ReferenceText: ref.String(),
		Snippets:      snippets,
	}
}

func stringProp(props map[string]interface{}, name string) string {
	if v, ok := props[name].(string); ok {
		return v
	}
	return ""
}
