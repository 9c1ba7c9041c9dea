package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew_JSONIncludesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "info", "json")

	ctx := WithCorrelationID(context.Background(), "abcd1234")
	logger.InfoContext(ctx, "Client connected", "connection_id", "c-1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Client connected", entry["msg"])
	assert.Equal(t, "abcd1234", entry["correlation_id"])
	assert.Equal(t, "c-1", entry["connection_id"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "text")

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestCorrelationID(t *testing.T) {
	id, ok := CorrelationID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)

	_, ok = CorrelationID(WithCorrelationID(context.Background(), ""))
	assert.False(t, ok)

	generated := NewCorrelationID()
	assert.Len(t, generated, 8)

	id, ok = CorrelationID(WithCorrelationID(context.Background(), generated))
	assert.True(t, ok)
	assert.Equal(t, generated, id)
}

func TestNew_WithAttrsKeepsCorrelation(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "debug", "text").With("component", "registry")

	logger.DebugContext(WithCorrelationID(context.Background(), "feedbeef"), "Heartbeat tick")

	out := buf.String()
	assert.Contains(t, out, "component=registry")
	assert.Contains(t, out, "correlation_id=feedbeef")
}
