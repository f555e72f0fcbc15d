// Package orchestrator drives one answer turn: admission, validation,
// memory priming, directive resolution, the model token stream, citation
// merging, usage accounting, and exactly-once finalization of the
// assistant message.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/astroguide/tutoring-platform/internal/directive"
	"github.com/astroguide/tutoring-platform/internal/llm"
	"github.com/astroguide/tutoring-platform/internal/memory"
	"github.com/astroguide/tutoring-platform/internal/model"
	"github.com/astroguide/tutoring-platform/internal/policy"
	"github.com/astroguide/tutoring-platform/internal/rag"
	"github.com/astroguide/tutoring-platform/internal/store"
	"github.com/astroguide/tutoring-platform/internal/usage"
	"github.com/astroguide/tutoring-platform/pkg/logger"
	"github.com/astroguide/tutoring-platform/pkg/metrics"
)

// errSinkClosed marks a delta send that failed because the client is gone.
var errSinkClosed = errors.New("event sink closed")

// Request identifies one answer turn to stream.
type Request struct {
	ConversationID string
	UserMessageID  string
	ClientID       string
	ClientIP       string
}

// Config tunes orchestrator behavior.
type Config struct {
	Model      string
	RAGEnabled bool
	RAGTopK    int
}

// Orchestrator coordinates the answer pipeline for a turn.
type Orchestrator struct {
	store     store.Store
	llm       llm.Client
	gate      *policy.RateGate
	memory    *memory.ChatMemory
	primer    *memory.Primer
	resolver  *directive.Resolver
	kb        rag.KnowledgeBaseSearcher
	estimator *usage.Estimator
	recorder  usage.Recorder
	cfg       Config
	logger    *logger.Logger
}

// New builds an Orchestrator. kb may be nil, which disables automatic
// retrieval augmentation regardless of configuration.
func New(
	st store.Store,
	client llm.Client,
	gate *policy.RateGate,
	mem *memory.ChatMemory,
	primer *memory.Primer,
	resolver *directive.Resolver,
	kb rag.KnowledgeBaseSearcher,
	estimator *usage.Estimator,
	recorder usage.Recorder,
	cfg Config,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     st,
		llm:       client,
		gate:      gate,
		memory:    mem,
		primer:    primer,
		resolver:  resolver,
		kb:        kb,
		estimator: estimator,
		recorder:  recorder,
		cfg:       cfg,
		logger:    log,
	}
}

// turn carries per-request state shared between the pipeline steps and the
// finalize paths.
type turn struct {
	requestID string
	req       Request
	sink      EventSink
	assistant *model.Message
	start     time.Time

	content    strings.Builder
	promptText string

	finalized atomic.Bool
}

// Stream runs the full pipeline for one turn, emitting events on sink
// until a terminal event is sent or the client disconnects. It blocks
// until the turn is over; the returned error reports internal failures
// only (client-visible failures are delivered as error events).
func (o *Orchestrator) Stream(ctx context.Context, req Request, sink EventSink) error {
	t := &turn{
		requestID: newRequestID(),
		req:       req,
		sink:      sink,
		start:     time.Now(),
	}

	log := o.logger.WithContext(t.requestID, req.ClientID, req.ConversationID)

	if !o.gate.Allow(req.ClientID, req.ClientIP) {
		metrics.RateGateDenials.Inc()
		log.Warn("rate gate denied request")
		return o.emitEarlyError(sink, t.requestID, CodeRateLimited, "too many requests, please retry later")
	}

	userMsg, err := o.validate(ctx, req)
	if err != nil {
		var se *StreamError
		if errors.As(err, &se) {
			log.Warn("stream request rejected", zap.String("code", se.Code), zap.String("reason", se.Message))
			return o.emitEarlyError(sink, t.requestID, se.Code, se.Message)
		}
		log.Error("stream validation failed", zap.Error(err))
		return o.emitEarlyError(sink, t.requestID, CodeProviderError, "internal error")
	}

	assistant, err := o.claimAssistant(ctx, userMsg)
	if err != nil {
		var se *StreamError
		if errors.As(err, &se) {
			return o.emitEarlyError(sink, t.requestID, se.Code, se.Message)
		}
		log.Error("failed to claim assistant message", zap.Error(err))
		return o.emitEarlyError(sink, t.requestID, CodeProviderError, "internal error")
	}
	t.assistant = assistant

	metrics.StreamsActive.Inc()
	defer metrics.StreamsActive.Dec()

	if err := sink.Send(model.EventMeta, model.MetaEvent{
		RequestID:  t.requestID,
		Model:      o.cfg.Model,
		Difficulty: userMsg.Difficulty,
		Language:   userMsg.Language,
	}); err != nil {
		o.finalizeCancelled(ctx, t)
		return nil
	}

	if err := o.primer.Prime(ctx, req.ConversationID, userMsg); err != nil {
		// History priming is best effort: answer with whatever is loaded.
		log.Warn("memory priming failed", zap.Error(err))
	}

	d := o.resolver.Resolve(ctx, userMsg.Content, userMsg.Language)

	input, hasReference, kbSnippets, wikiSnippets := o.retrieve(ctx, d, log)

	system := BuildSystemPrompt(userMsg.Difficulty, userMsg.Language, hasReference)
	messages := o.buildMessages(req.ConversationID, input)
	t.promptText = promptChars(system, messages)

	creq := &llm.CompletionRequest{
		Model:     o.cfg.Model,
		System:    system,
		Messages:  messages,
		MaxTokens: policy.MaxCompletionTokens(userMsg.Difficulty),
	}

	resp, streamErr := o.llm.CompleteStream(ctx, creq, func(chunk string, _ int) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.content.WriteString(chunk)
		if strings.TrimSpace(chunk) == "" {
			return nil
		}
		if err := t.sink.Send(model.EventDelta, model.DeltaEvent{Text: chunk}); err != nil {
			return errSinkClosed
		}
		return nil
	})

	switch {
	case streamErr == nil:
		o.finalizeDone(ctx, t, resp, kbSnippets, wikiSnippets, log)
	case errors.Is(streamErr, errSinkClosed) || ctx.Err() != nil:
		log.Info("stream cancelled by client")
		o.finalizeCancelled(ctx, t)
	default:
		log.Error("model stream failed", zap.Error(streamErr))
		o.finalizeError(ctx, t, streamErr)
	}
	return nil
}

// validate checks conversation ownership and the target message, without
// mutating any state.
func (o *Orchestrator) validate(ctx context.Context, req Request) (*model.Message, error) {
	if req.ClientID == "" {
		return nil, invalidArgument("client identity is required")
	}
	if req.ConversationID == "" || req.UserMessageID == "" {
		return nil, invalidArgument("conversation and message identifiers are required")
	}

	conv, err := o.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("conversation not found")
		}
		return nil, err
	}
	if conv.ClientID != req.ClientID {
		return nil, forbidden("conversation belongs to another client")
	}

	userMsg, err := o.store.GetMessage(ctx, req.UserMessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("message not found")
		}
		return nil, err
	}
	if userMsg.ConversationID != req.ConversationID {
		return nil, invalidArgument("message does not belong to the conversation")
	}
	if userMsg.Role != model.RoleUser {
		return nil, invalidArgument("target message is not a user message")
	}
	return userMsg, nil
}

// claimAssistant moves the paired assistant message from queued to
// streaming. A message that already reached a terminal status is never
// reopened.
func (o *Orchestrator) claimAssistant(ctx context.Context, userMsg *model.Message) (*model.Message, error) {
	assistant, err := o.store.GetMessage(ctx, model.AssistantMessageID(userMsg.ID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound("assistant message not found")
		}
		return nil, err
	}
	if assistant.Status.Terminal() {
		return nil, invalidArgument("answer already finalized")
	}

	assistant.Status = model.StatusStreaming
	if err := o.store.UpdateMessage(ctx, assistant); err != nil {
		return nil, err
	}
	return assistant, nil
}

// retrieve resolves the effective generation input and the snippet lists
// feeding citation merge. A manual @kb: directive replaces automatic
// retrieval for the turn; a @wiki: or @card: directive coexists with it.
func (o *Orchestrator) retrieve(ctx context.Context, d directive.Directive, log *logger.Logger) (input string, hasReference bool, kbSnippets, wikiSnippets []rag.Snippet) {
	input = d.AugmentedText
	hasReference = d.HasReference
	kbSnippets = d.KBSnippets
	wikiSnippets = d.WikiSnippets

	autoRAG := o.cfg.RAGEnabled && o.kb != nil && d.Kind != directive.KindKB
	if !autoRAG {
		return input, hasReference, kbSnippets, wikiSnippets
	}

	res, err := o.kb.Search(ctx, d.CleanedText, o.cfg.RAGTopK)
	if err != nil {
		log.Warn("automatic retrieval failed", zap.Error(err))
		return input, hasReference, kbSnippets, wikiSnippets
	}
	if res.Empty() {
		return input, hasReference, kbSnippets, wikiSnippets
	}

	kbSnippets = append(res.Snippets, kbSnippets...)
	hasReference = true
	if d.Kind == directive.KindNone {
		input = directive.Augment("Reference", res.ReferenceText, d.CleanedText)
	}
	return input, hasReference, kbSnippets, wikiSnippets
}

// buildMessages assembles the short-term history plus the current input,
// trimming oldest entries past the round and character budgets.
func (o *Orchestrator) buildMessages(conversationID, input string) []llm.ChatMessage {
	entries := o.memory.Get(conversationID)

	if len(entries) > 2*policy.MaxRounds {
		entries = entries[len(entries)-2*policy.MaxRounds:]
	}

	chars := len(input)
	kept := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		chars += len(entries[i].Content)
		if chars > policy.MaxContextChars {
			kept = len(entries) - 1 - i
			break
		}
	}
	entries = entries[len(entries)-kept:]

	messages := make([]llm.ChatMessage, 0, len(entries)+1)
	for _, e := range entries {
		messages = append(messages, llm.ChatMessage{Role: string(e.Role), Content: e.Content})
	}
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleUser), Content: input})
	return messages
}

func (o *Orchestrator) finalizeDone(ctx context.Context, t *turn, resp *llm.CompletionResponse, kbSnippets, wikiSnippets []rag.Snippet, log *logger.Logger) {
	if !t.finalized.CompareAndSwap(false, true) {
		return
	}

	content := t.content.String()
	if resp != nil && resp.Content != "" {
		content = resp.Content
	}

	var est usage.Estimate
	if resp != nil && resp.ExactUsage {
		est = o.estimator.FromCounts(resp.TokensIn, resp.TokensOut)
	} else {
		est = o.estimator.FromText(t.promptText, content)
	}

	latency := time.Since(t.start)
	citations := rag.MergeCitations(0, kbSnippets, wikiSnippets)

	// Persist off the request context: a disconnect racing natural
	// completion must not leave the message stuck in streaming.
	detached := context.WithoutCancel(ctx)
	if err := o.persistTerminal(detached, t.assistant, model.StatusDone, content, "", "", &est); err != nil {
		log.Error("failed to persist done state", zap.Error(err))
	}
	o.recorder.Record(detached, t.assistant.ID, o.cfg.Model, latency.Milliseconds(), est)
	metrics.RecordStream(o.cfg.Model, string(model.StatusDone), latency.Seconds(), est.PromptTokens, est.CompletionTokens)

	done := model.DoneEvent{
		Status: model.StatusDone,
		Usage: model.UsagePayload{
			PromptTokens:     est.PromptTokens,
			CompletionTokens: est.CompletionTokens,
			EstimatedCostUSD: est.CostUSD,
		},
		Citations: citations,
	}
	if err := t.sink.Send(model.EventDone, done); err != nil {
		log.Info("client disconnected before done event")
	}
}

func (o *Orchestrator) finalizeError(ctx context.Context, t *turn, streamErr error) {
	if !t.finalized.CompareAndSwap(false, true) {
		return
	}

	code := CodeProviderError
	msg := "model stream failed"
	var se *StreamError
	if errors.As(streamErr, &se) {
		code, msg = se.Code, se.Message
	}

	latency := time.Since(t.start)
	if err := o.persistTerminal(context.WithoutCancel(ctx), t.assistant, model.StatusError, t.content.String(), code, streamErr.Error(), nil); err != nil {
		o.logger.Error("failed to persist error state",
			zap.String("message_id", t.assistant.ID), zap.Error(err))
	}
	metrics.RecordStream(o.cfg.Model, string(model.StatusError), latency.Seconds(), 0, 0)

	_ = t.sink.Send(model.EventError, model.ErrorEvent{
		Status:    model.StatusError,
		Code:      code,
		Message:   msg,
		RequestID: t.requestID,
	})
}

// finalizeCancelled persists partial content off the cancelled context so
// teardown never blocks the disconnecting client. No events are emitted.
func (o *Orchestrator) finalizeCancelled(ctx context.Context, t *turn) {
	if !t.finalized.CompareAndSwap(false, true) {
		return
	}

	latency := time.Since(t.start)
	content := t.content.String()
	assistant := t.assistant
	detached := context.WithoutCancel(ctx)

	go func() {
		if err := o.persistTerminal(detached, assistant, model.StatusCancelled, content, "", "", nil); err != nil {
			o.logger.Error("failed to persist cancelled state",
				zap.String("message_id", assistant.ID), zap.Error(err))
		}
		metrics.RecordStream(o.cfg.Model, string(model.StatusCancelled), latency.Seconds(), 0, 0)
	}()
}

// persistTerminal writes the terminal state of the assistant message. A
// message already in a terminal status is left untouched, so a racing
// finalize observed through a stale copy cannot overwrite the winner.
func (o *Orchestrator) persistTerminal(ctx context.Context, assistant *model.Message, status model.Status, content, errCode, errMsg string, est *usage.Estimate) error {
	current, err := o.store.GetMessage(ctx, assistant.ID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return nil
	}

	current.Status = status
	current.Content = content
	current.ErrorCode = errCode
	current.ErrorMessage = errMsg
	if est != nil {
		p, c, cost := est.PromptTokens, est.CompletionTokens, est.CostUSD
		current.PromptTokens = &p
		current.CompletionTokens = &c
		current.EstimatedCostUSD = &cost
	}
	return o.store.UpdateMessage(ctx, current)
}

// emitEarlyError reports a failure that happens before the stream opens.
// No assistant state is mutated.
func (o *Orchestrator) emitEarlyError(sink EventSink, requestID, code, message string) error {
	return sink.Send(model.EventError, model.ErrorEvent{
		Status:    model.StatusError,
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

func promptChars(system string, messages []llm.ChatMessage) string {
	var sb strings.Builder
	sb.WriteString(system)
	for _, m := range messages {
		sb.WriteString(m.Content)
	}
	return sb.String()
}

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return "req_" + hex.EncodeToString(b)
}
