package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, errors.New("test error"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "test error", decodeError(t, w).Error)
}

func TestStatusWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		reason string
	}{
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "x") }, http.StatusUnauthorized, "unauthenticated"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "x") }, http.StatusForbidden, "forbidden"},
		{"locked", func(w http.ResponseWriter) { WriteLocked(w, "x") }, http.StatusForbidden, "locked"},
		{"teapot", func(w http.ResponseWriter) { WriteTeapot(w, "x") }, http.StatusTeapot, "scheduling_violation"},
		{"not found", func(w http.ResponseWriter) { WriteNotFound(w, "x") }, http.StatusNotFound, ""},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "x") }, http.StatusConflict, ""},
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "x") }, http.StatusBadRequest, ""},
		{"too many", func(w http.ResponseWriter) { WriteTooManyRequests(w, "x") }, http.StatusTooManyRequests, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.reason, decodeError(t, w).Reason)
		})
	}
}

func TestWriteInternalError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalError(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decodeError(t, w).Error)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
