package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggingConfig{Level: "info", Format: "json"}, "scheduler")
	l.SetOutput(&buf)

	l.Info("Request accepted", map[string]interface{}{
		"request_id": "abc",
		"floor":      3,
	})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "info", record["level"])
	assert.Equal(t, "scheduler", record["service"])
	assert.Equal(t, "Request accepted", record["msg"])
	assert.Equal(t, "abc", record["request_id"])
	assert.Equal(t, float64(3), record["floor"])
	assert.NotEmpty(t, record["time"])
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggingConfig{Level: "info", Format: "text"}, "gateway")
	l.SetOutput(&buf)

	l.Warn("Stream trimmed", map[string]interface{}{"removed": 5, "stream": "s"})

	line := buf.String()
	assert.Contains(t, line, "WARN")
	assert.Contains(t, line, "gateway")
	assert.Contains(t, line, "Stream trimmed")
	// fields are emitted in sorted key order
	assert.Less(t, strings.Index(line, "removed=5"), strings.Index(line, "stream=s"))
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggingConfig{Level: "warn", Format: "text"}, "test")
	l.SetOutput(&buf)

	l.Debug("hidden", nil)
	l.Info("hidden", nil)
	assert.Empty(t, buf.String())

	l.Warn("shown", nil)
	l.Error("shown too", nil)
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestLoggerRendersErrorFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(LoggingConfig{Level: "error", Format: "json"}, "test")
	l.SetOutput(&buf)

	l.Error("failed", map[string]interface{}{"error": errors.New("boom")})

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "boom", record["error"])
}

func TestNoOpLoggerIsSilent(t *testing.T) {
	l := &NoOpLogger{}
	l.Debug("x", nil)
	l.Info("x", nil)
	l.Warn("x", nil)
	l.Error("x", nil)
}
