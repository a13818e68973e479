package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/vaultd/internal/errors"
)

func runHandleErrorGin(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	HandleErrorGin(c, err, logger)

	var response ErrorResponse
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	}
	return recorder, response
}

func TestHandleErrorGin(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"conflict", apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{"invalid input", apperrors.ErrInvalidInput, http.StatusBadRequest, "bad_request"},
		{"unauthorized", apperrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"locked", apperrors.ErrLocked, http.StatusLocked, "client_banned"},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"crypto collapses to 500", apperrors.ErrCrypto, http.StatusInternalServerError, "internal_error"},
		{"storage collapses to 500", apperrors.ErrStorage, http.StatusInternalServerError, "internal_error"},
		{"unknown collapses to 500", apperrors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder, response := runHandleErrorGin(t, tt.err)
			assert.Equal(t, tt.expectedStatus, recorder.Code)
			assert.Equal(t, tt.expectedError, response.Error)
		})
	}

	t.Run("wrapped errors map the same", func(t *testing.T) {
		recorder, response := runHandleErrorGin(t, apperrors.Wrap(apperrors.ErrNotFound, "secret db_password"))
		assert.Equal(t, http.StatusNotFound, recorder.Code)
		assert.Equal(t, "not_found", response.Error)
		// Wrapped detail never reaches the response body.
		assert.NotContains(t, response.Message, "db_password")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		recorder, _ := runHandleErrorGin(t, nil)
		assert.Empty(t, recorder.Body.String())
	})
}
