package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, InfoLevel, ParseLevel("INFO"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("Error"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
	assert.Equal(t, InfoLevel, ParseLevel(""))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", DebugLevel.String())
	assert.Equal(t, "INFO", InfoLevel.String())
	assert.Equal(t, "WARN", WarnLevel.String())
	assert.Equal(t, "ERROR", ErrorLevel.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestZapAdapter(t *testing.T) {
	t.Run("writes structured output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf, Name: "test"})
		require.NoError(t, err)

		logger.Info("cache hit", String("key", "user:1"), Int("tier", 1))

		out := buf.String()
		assert.Contains(t, out, "cache hit")
		assert.Contains(t, out, "user:1")
		assert.Contains(t, out, "INFO")
	})

	t.Run("respects level threshold", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: WarnLevel, Output: &buf})
		require.NoError(t, err)

		logger.Debug("should not appear")
		logger.Info("should not appear either")
		logger.Warn("visible")

		out := buf.String()
		assert.NotContains(t, out, "should not appear")
		assert.Contains(t, out, "visible")
	})

	t.Run("error field is attached", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf})
		require.NoError(t, err)

		logger.Error("remote set failed", assert.AnError, String("key", "a"))
		assert.Contains(t, buf.String(), assert.AnError.Error())
	})

	t.Run("with fields", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf})
		require.NoError(t, err)

		child := logger.WithFields(String("component", "remote"))
		child.Info("connected")
		assert.Contains(t, buf.String(), "remote")
	})
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	nop := NopLogger{}
	SetGlobalLogger(nop)
	assert.Equal(t, nop, GetGlobalLogger())
}
