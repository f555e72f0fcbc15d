package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroguide/tutoring-platform/internal/orchestrator"
)

func TestWriteErrorCarriesTaxonomyCode(t *testing.T) {
	cases := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, orchestrator.CodeInvalidArgument},
		{http.StatusConflict, orchestrator.CodeInvalidArgument},
		{http.StatusUnauthorized, orchestrator.CodeForbidden},
		{http.StatusForbidden, orchestrator.CodeForbidden},
		{http.StatusNotFound, orchestrator.CodeNotFound},
		{http.StatusTooManyRequests, orchestrator.CodeRateLimited},
		{http.StatusInternalServerError, orchestrator.CodeProviderError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, tc.status, "boom")

		assert.Equal(t, tc.status, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body errorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Error.Code)
		assert.Equal(t, "boom", body.Error.Message)
	}
}
