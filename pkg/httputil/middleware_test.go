package httputil

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/masthead/pkg/contextkeys"
	"github.com/platinummonkey/masthead/pkg/observability"
)

func TestRequestIDMiddleware(t *testing.T) {
	logger := observability.NewLogger(logrus.InfoLevel, &bytes.Buffer{})

	var seen string
	handler := RequestIDMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "upstream-id", seen)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(logrus.InfoLevel, &buf)

	handler := Chain(RequestIDMiddleware(logger), LoggingMiddleware)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/blogs", nil))

	assert.Contains(t, buf.String(), `"status":201`)
	assert.Contains(t, buf.String(), `"path":"/api/v1/blogs"`)
	assert.Contains(t, buf.String(), `"request_id"`)
}
