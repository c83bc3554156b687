package cli

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/alexandria/pkg/store"
)

func TestStatsCommand(t *testing.T) {
	cfgPath := writeTestConfig(t)
	seedStore(t, cfgPath,
		memoryAt(t, time.Now().Add(-time.Minute), "kitty", "ls -la"),
		memoryAt(t, time.Now(), "kitty", ""),
	)

	t.Run("text", func(t *testing.T) {
		out, err := execute(t, "--config", cfgPath, "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "Memories:   2")
		assert.Contains(t, out, "With text:  1")
		assert.Contains(t, out, "Oldest:")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "--config", cfgPath, "--json", "stats")
		require.NoError(t, err)

		var stats store.Stats
		require.NoError(t, json.Unmarshal([]byte(out), &stats))
		assert.Equal(t, 2, stats.Count)
		assert.Positive(t, stats.TotalBytes)
	})
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "1.5 MiB", formatBytes(3<<19))
	assert.Equal(t, "2.0 GiB", formatBytes(2<<30))
}
