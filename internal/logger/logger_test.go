package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		l, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		require.NotNil(t, l)
		assert.NoError(t, l.Close())
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "alexandria.log")

		l, err := New(Config{Level: "debug", File: logFile, MaxSize: 1})
		require.NoError(t, err)

		l.Info().Str("app_id", "firefox").Msg("tick stored")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "tick stored")
		assert.Contains(t, string(data), `"app_id":"firefox"`)
	})

	t.Run("redaction masks card numbers", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "test.log")

		l, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)
		require.NotNil(t, l.Redactor())

		l.Info().Str("text", "card 4111 1111 1111 1111 exp").Msg("ocr fragment")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "4111 1111")
		assert.Contains(t, string(data), redactedMark)
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "test.log")

		l, err := New(Config{Level: "loud", File: logFile})
		require.NoError(t, err)

		l.Debug().Msg("hidden")
		l.Info().Msg("visible")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.False(t, strings.Contains(string(data), "hidden"))
		assert.Contains(t, string(data), "visible")
	})
}

func TestComponent(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	l, err := New(Config{Level: "info", File: logFile})
	require.NoError(t, err)

	c := l.Component("scheduler")
	c.Info().Msg("started")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"scheduler"`)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info().Msg("discarded")
	assert.NoError(t, l.Close())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Redaction)
	assert.Greater(t, cfg.MaxSize, 0)
}
