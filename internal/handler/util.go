package handler

import (
	"encoding/json"
	"net/http"

	"github.com/astroguide/tutoring-platform/internal/orchestrator"
)

// errorBody mirrors the code/message shape of stream error events, so REST
// failures and SSE failures read the same to clients.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error carrying the taxonomy code for the status.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    errorCode(status),
		Message: message,
	}})
}

func errorCode(status int) string {
	switch status {
	case http.StatusNotFound:
		return orchestrator.CodeNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return orchestrator.CodeForbidden
	case http.StatusTooManyRequests:
		return orchestrator.CodeRateLimited
	case http.StatusBadRequest, http.StatusConflict:
		return orchestrator.CodeInvalidArgument
	default:
		return orchestrator.CodeProviderError
	}
}
