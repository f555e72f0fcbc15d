// Package directive parses the inline retrieval mini-language at the start
// of a user message (@wiki:, @kb:, @card:) and resolves the referenced
// material synchronously before generation starts.
package directive

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/rag"
	"github.com/astroguide/tutoring-platform/pkg/logger"
	"github.com/astroguide/tutoring-platform/pkg/metrics"
)

// Kind identifies which retrieval tool a directive forces.
type Kind string

const (
	KindNone Kind = "none"
	KindWiki Kind = "wiki"
	KindKB   Kind = "kb"
	KindCard Kind = "card"
)

// Directive is the parsed and resolved result for one user message. It is
// scoped to a single request and never persisted.
type Directive struct {
	Kind Kind

	// CleanedText is the user's text with the directive prefix stripped.
	// For Kind none it is the original text unchanged.
	CleanedText string

	// AugmentedText is the generation input: a labeled reference block
	// followed by the cleaned text, or just the cleaned text when no
	// reference material was produced.
	AugmentedText string

	// HasReference reports whether reference material was resolved.
	HasReference bool

	// KBSnippets and WikiSnippets feed citation merging. The knowledge-base
	// slot carries @kb: results, the wiki slot carries @wiki: results.
	KBSnippets   []rag.Snippet
	WikiSnippets []rag.Snippet
}

// None returns a no-directive result carrying the original text.
func None(originalText string) Directive {
	return Directive{
		Kind:          KindNone,
		CleanedText:   originalText,
		AugmentedText: originalText,
	}
}

var kbTopKPattern = regexp.MustCompile(`(?i)\btopk\s*=\s*(\d+)\b`)

// Resolver parses directives and invokes the retrieval collaborators.
// Retrieval failures are recovered locally and never fail the turn.
type Resolver struct {
	wikipedia rag.WikipediaSearcher
	kb        rag.KnowledgeBaseSearcher
	cards     rag.CardLookup
	logger    *logger.Logger
}

// NewResolver builds a Resolver. Any collaborator may be nil; directives
// targeting a missing collaborator resolve with no reference material.
func NewResolver(wikipedia rag.WikipediaSearcher, kb rag.KnowledgeBaseSearcher, cards rag.CardLookup, log *logger.Logger) *Resolver {
	return &Resolver{
		wikipedia: wikipedia,
		kb:        kb,
		cards:     cards,
		logger:    log,
	}
}

// Resolve parses rawUserText and synchronously resolves any directive.
// languageHint defaults the card language when the payload does not set one.
func (r *Resolver) Resolve(ctx context.Context, rawUserText, languageHint string) Directive {
	text := strings.TrimSpace(rawUserText)
	if text == "" {
		return None("")
	}

	switch {
	case hasPrefixFold(text, "@wiki:"):
		return r.resolveWiki(ctx, rawUserText, text[len("@wiki:"):])
	case hasPrefixFold(text, "@kb:"):
		return r.resolveKB(ctx, rawUserText, text[len("@kb:"):])
	case hasPrefixFold(text, "@card:"):
		return r.resolveCard(ctx, rawUserText, text[len("@card:"):], languageHint)
	}

	return None(rawUserText)
}

func (r *Resolver) resolveWiki(ctx context.Context, original, payload string) Directive {
	q := strings.TrimSpace(payload)
	if q == "" {
		return None(original)
	}
	metrics.DirectivesTotal.WithLabelValues(string(KindWiki)).Inc()

	var result rag.RetrieveResult
	if r.wikipedia != nil {
		res, err := r.wikipedia.Search(ctx, q)
		if err != nil {
			r.logger.Warn("wikipedia directive retrieval failed", zap.String("query", q), zap.Error(err))
		} else {
			result = res
		}
	}

	ref := strings.TrimSpace(result.ReferenceText)
	return Directive{
		Kind:          KindWiki,
		CleanedText:   q,
		AugmentedText: Augment("Reference", ref, q),
		HasReference:  ref != "" || len(result.Snippets) > 0,
		WikiSnippets:  result.Snippets,
	}
}

func (r *Resolver) resolveKB(ctx context.Context, original, payload string) Directive {
	q := strings.TrimSpace(payload)
	if q == "" {
		return None(original)
	}
	metrics.DirectivesTotal.WithLabelValues(string(KindKB)).Inc()

	topK := 0
	if m := kbTopKPattern.FindStringSubmatchIndex(q); m != nil {
		if n, err := strconv.Atoi(q[m[2]:m[3]]); err == nil {
			topK = n
		}
		q = strings.TrimSpace(q[:m[0]] + " " + q[m[1]:])
	}

	var result rag.RetrieveResult
	if r.kb != nil {
		res, err := r.kb.Search(ctx, q, topK)
		if err != nil {
			r.logger.Warn("knowledge base directive retrieval failed", zap.String("query", q), zap.Error(err))
		} else {
			result = res
		}
	}

	ref := strings.TrimSpace(result.ReferenceText)
	return Directive{
		Kind:          KindKB,
		CleanedText:   q,
		AugmentedText: Augment("Reference", ref, q),
		HasReference:  ref != "" || len(result.Snippets) > 0,
		KBSnippets:    result.Snippets,
	}
}

func (r *Resolver) resolveCard(ctx context.Context, original, payload, languageHint string) Directive {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return None(original)
	}
	metrics.DirectivesTotal.WithLabelValues(string(KindCard)).Inc()

	args := parseCardArgs(payload, languageHint)

	var ref string
	var found bool
	if r.cards != nil {
		card, err := r.cards.Lookup(ctx, args.cardType, args.lang, args.key, args.text)
		if err != nil {
			r.logger.Warn("concept card lookup failed", zap.String("text", args.text), zap.Error(err))
		} else if card != nil {
			found = true
			if data, merr := json.Marshal(card); merr == nil {
				ref = string(data)
			}
		}
	}

	cleaned := args.text
	if strings.TrimSpace(cleaned) == "" {
		cleaned = payload
	}

	return Directive{
		Kind:          KindCard,
		CleanedText:   cleaned,
		AugmentedText: Augment("Concept Card", ref, cleaned),
		HasReference:  found && ref != "",
	}
}

// Augment splices reference material ahead of the user's question as a
// labeled block. With no reference the question passes through unchanged.
func Augment(label, referenceText, question string) string {
	ref := strings.TrimSpace(referenceText)
	if ref == "" {
		return question
	}
	return "[" + label + "]\n\n" + ref + "\n\n---\n\n" + question
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

type cardArgs struct {
	cardType string
	lang     string
	key      string
	text     string
}

// parseCardArgs reads a @card: payload either as key=value pairs or as the
// positional shorthand "term zh 黑洞" / "zh 黑洞" / "黑洞".
func parseCardArgs(payload, defaultLang string) cardArgs {
	args := cardArgs{
		cardType: "term",
		lang:     strings.ToLower(strings.TrimSpace(defaultLang)),
		text:     payload,
	}
	if args.lang == "" {
		args.lang = "en"
	}

	lower := strings.ToLower(payload)
	if strings.Contains(lower, "type=") || strings.Contains(lower, "lang=") ||
		strings.Contains(lower, "key=") || strings.Contains(lower, "text=") {
		if v := extractKV(payload, "type"); v != "" {
			args.cardType = v
		}
		if v := extractKV(payload, "lang"); v != "" {
			args.lang = v
		}
		args.key = extractKV(payload, "key")
		if v := extractTextKV(payload); v != "" {
			args.text = v
		}
	} else {
		parseCardShorthand(payload, &args)
	}

	args.cardType = strings.ToLower(args.cardType)
	if args.cardType != "term" && args.cardType != "sym" {
		args.cardType = "term"
	}
	args.lang = strings.ToLower(args.lang)
	if args.lang != "en" && args.lang != "zh" {
		args.lang = "en"
	}
	args.text = stripQuotes(strings.TrimSpace(args.text))
	args.key = stripQuotes(strings.TrimSpace(args.key))
	return args
}

func parseCardShorthand(payload string, args *cardArgs) {
	fields := splitN(payload, 3)
	if len(fields) == 0 {
		return
	}

	first := strings.ToLower(fields[0])
	switch {
	case first == "term" || first == "sym":
		args.cardType = first
		if len(fields) >= 2 {
			second := strings.ToLower(fields[1])
			if second == "zh" || second == "en" {
				args.lang = second
				if len(fields) == 3 {
					args.text = fields[2]
				}
			} else {
				args.text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(payload), fields[0]))
			}
		}
	case first == "zh" || first == "en":
		args.lang = first
		if len(fields) >= 2 {
			args.text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(payload), fields[0]))
		}
	}
}

// splitN splits on runs of whitespace into at most n fields, keeping the
// remainder intact in the last field.
func splitN(s string, n int) []string {
	s = strings.TrimSpace(s)
	var out []string
	for len(s) > 0 && len(out) < n-1 {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

func extractKV(payload, key string) string {
	lower := strings.ToLower(payload)
	idx := strings.Index(lower, key+"=")
	if idx < 0 {
		return ""
	}
	start := idx + len(key) + 1
	end := len(payload)
	for i := start; i < len(payload); i++ {
		if unicode.IsSpace(rune(payload[i])) {
			end = i
			break
		}
	}
	return stripQuotes(strings.TrimSpace(payload[start:end]))
}

// extractTextKV reads everything after "text=" so the display text may
// contain spaces without quoting.
func extractTextKV(payload string) string {
	lower := strings.ToLower(payload)
	idx := strings.Index(lower, "text=")
	if idx < 0 {
		return ""
	}
	return stripQuotes(strings.TrimSpace(payload[idx+len("text="):]))
}

func stripQuotes(s string) string {
	t := strings.TrimSpace(s)
	if len(t) >= 2 {
		if (t[0] == '"' && t[len(t)-1] == '"') || (t[0] == '\'' && t[len(t)-1] == '\'') {
			return t[1 : len(t)-1]
		}
	}
	return t
}
