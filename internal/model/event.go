package model

// Event types emitted on the answer stream, in protocol order: one meta,
// zero or more delta, then exactly one of done or error.
const (
	EventMeta  = "meta"
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// MetaEvent is the first event of every stream.
type MetaEvent struct {
	RequestID  string `json:"request_id"`
	Model      string `json:"model"`
	Difficulty string `json:"difficulty"`
	Language   string `json:"language"`
}

// DeltaEvent carries one incremental fragment of generated text.
type DeltaEvent struct {
	Text string `json:"text"`
}

// UsagePayload reports token counts and estimated cost for a turn.
type UsagePayload struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// DoneEvent terminates a successful stream. Citations is omitted when no
// reference material contributed to the answer.
type DoneEvent struct {
	Status    Status       `json:"status"`
	Usage     UsagePayload `json:"usage"`
	Citations []Citation   `json:"citations,omitempty"`
}

// ErrorEvent terminates a failed stream.
type ErrorEvent struct {
	Status    Status `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}
