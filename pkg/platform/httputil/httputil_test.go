package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "passage/pkg/domain-errors"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal errors omit the description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "pg: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeEnvelope(t, w)
		assert.Equal(t, "internal", body["error"])
		_, leaked := body["error_description"]
		assert.False(t, leaked, "storage details must not reach clients")
	})

	t.Run("validation errors echo the message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeValidation, "phone is required"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeEnvelope(t, w)
		assert.Equal(t, "validation", body["error"])
		assert.Equal(t, "phone is required", body["error_description"])
	})

	t.Run("conflicts map to 409", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeConflict, "visit is already cancelled"))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("non-domain errors fall back to internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, http.ErrBodyNotAllowed)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal", decodeEnvelope(t, w)["error"])
	})
}

type preparedRequest struct {
	Phone string `json:"phone"`
}

func (r *preparedRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
}

func (r *preparedRequest) Validate() error {
	if r.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "phone is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.Default()

	t.Run("decodes, normalizes, and validates", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"  +15550001111 "}`))

		req, ok := DecodeAndPrepare[preparedRequest](w, r, logger, context.Background(), "req-1")
		require.True(t, ok)
		assert.Equal(t, "+15550001111", req.Phone)
	})

	t.Run("an empty body decodes to the zero value", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", nil)

		_, ok := DecodeAndPrepare[struct{}](w, r, logger, context.Background(), "req-2")
		assert.True(t, ok)
	})

	t.Run("malformed JSON is a bad request", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":`))

		_, ok := DecodeAndPrepare[preparedRequest](w, r, logger, context.Background(), "req-3")
		require.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeEnvelope(t, w)["error"])
	})

	t.Run("validation failures write the error", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"phone":"  "}`))

		_, ok := DecodeAndPrepare[preparedRequest](w, r, logger, context.Background(), "req-4")
		require.False(t, ok)
		assert.Equal(t, "validation", decodeEnvelope(t, w)["error"])
	})
}
