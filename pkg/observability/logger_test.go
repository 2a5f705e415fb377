package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/masthead/pkg/contextkeys"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.InfoLevel, &buf)

	logger.Debug("debug message")
	assert.Zero(t, buf.Len(), "debug should be filtered at info level")

	logger.Info("info message")
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "info message", entry["msg"])
}

func TestLogger_WithFieldsAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.DebugLevel, &buf)

	logger.WithField("item_id", 7).
		WithFields(map[string]interface{}{"kind": "blog"}).
		WithError(errors.New("boom")).
		Warnf("sweep %s", "failed")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "warning", entry["level"])
	assert.Equal(t, "sweep failed", entry["msg"])
	assert.Equal(t, float64(7), entry["item_id"])
	assert.Equal(t, "blog", entry["kind"])
	assert.Equal(t, "boom", entry["error"])
}

func TestLogger_WithNilError(t *testing.T) {
	logger := NewLogger(logrus.InfoLevel, &bytes.Buffer{})
	assert.Same(t, logger, logger.WithError(nil))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("nonsense"))
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(logrus.InfoLevel, &buf)

	ctx := WithLogger(context.Background(), logger)
	ctx = contextkeys.WithRequestID(ctx, "req-1")
	ctx = contextkeys.WithUserID(ctx, "42")

	FromContext(ctx).Info("hello")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "42", entry["user_id"])
	assert.NotContains(t, entry, "trace_id")
}

func TestGetLogger_FallsBackToDefault(t *testing.T) {
	assert.Same(t, Default(), GetLogger(context.Background()))
}
