package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status represents the lifecycle state of an assistant message.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusStreaming Status = "streaming"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final. Once a message reaches a
// terminal status it is never mutated again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// Difficulty tiers accepted on user messages.
const (
	DifficultyBasic        = "basic"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Message represents a conversation message. Each user message is paired
// with exactly one assistant message whose ID is AssistantMessageID(userID).
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	Difficulty string `json:"difficulty,omitempty"`
	Language   string `json:"language,omitempty"`

	Status       Status `json:"status"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	PromptTokens     *int     `json:"prompt_tokens,omitempty"`
	CompletionTokens *int     `json:"completion_tokens,omitempty"`
	EstimatedCostUSD *float64 `json:"estimated_cost_usd,omitempty"`

	// ClientMessageID is the client-supplied idempotency key: resubmitting
	// the same key with the same content returns the original message.
	ClientMessageID string `json:"client_message_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AssistantMessageID derives the assistant message ID for a user message.
// The pairing is deterministic so retries and the stream endpoint agree on
// the placeholder without any extra lookup.
func AssistantMessageID(userMessageID string) string {
	return userMessageID + "_a"
}

// SubmitMessageRequest is the request to submit a user message.
type SubmitMessageRequest struct {
	Content         string `json:"content"`
	Difficulty      string `json:"difficulty,omitempty"`
	Language        string `json:"language,omitempty"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

// SubmitMessageResponse is returned after a user message is accepted.
type SubmitMessageResponse struct {
	MessageID string `json:"message_id"`
	StreamURL string `json:"stream_url"`
	Status    Status `json:"status"`
}

// RequestUsage is an audit record for one generated answer.
type RequestUsage struct {
	ID               string    `json:"id"`
	MessageID        string    `json:"message_id"`
	Model            string    `json:"model"`
	LatencyMs        int64     `json:"latency_ms"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	CreatedAt        time.Time `json:"created_at"`
}
