package orchestrator

import "fmt"

// Error codes surfaced on terminal error events.
const (
	CodeInvalidArgument = "invalid_argument"
	CodeNotFound        = "not_found"
	CodeForbidden       = "forbidden"
	CodeRateLimited     = "rate_limited"
	CodeProviderError   = "provider_error"
)

// StreamError is a terminal stream failure with a client-facing code.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidArgument(msg string) *StreamError {
	return &StreamError{Code: CodeInvalidArgument, Message: msg}
}

func notFound(msg string) *StreamError {
	return &StreamError{Code: CodeNotFound, Message: msg}
}

func forbidden(msg string) *StreamError {
	return &StreamError{Code: CodeForbidden, Message: msg}
}
