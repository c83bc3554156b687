package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesTickMetrics(t *testing.T) {
	RecordTick("stored", 120*time.Millisecond)
	RecordStage("capture", 40*time.Millisecond, true)
	RecordPrivacyDecision("pre_capture", "deny")
	RecordStoreWrite(5*time.Millisecond, false)
	RecordSearchCache(true)
	SetStoreTotals(3, 4096)

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	for _, name := range []string{
		`alexandria_ticks_total{outcome="stored"}`,
		`alexandria_stage_duration_seconds_count{stage="capture",status="success"}`,
		`alexandria_privacy_decisions_total{decision="deny",phase="pre_capture"}`,
		"alexandria_store_write_errors_total",
		`alexandria_search_cache_total{result="hit"}`,
		"alexandria_memories 3",
	} {
		assert.Contains(t, text, name)
	}
}

func TestAuditLogger(t *testing.T) {
	t.Run("records privacy decisions without window details", func(t *testing.T) {
		var buf bytes.Buffer
		a := NewAuditLogger(zerolog.New(&buf))

		a.Record(context.Background(), AuditEvent{
			Type:     "privacy",
			TickID:   "tick-1",
			Action:   "pre_capture:deny",
			Status:   "deny",
			Metadata: map[string]any{"rule": "exclude:bitwarden"},
		})

		var got map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "privacy", got["type"])
		assert.Equal(t, "tick-1", got["tick_id"])
		assert.Equal(t, "deny", got["status"])
		assert.NotContains(t, got, "trace_id")
	})

	t.Run("global logger writes to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "audit.log")
		require.NoError(t, InitAuditLogger(path))
		t.Cleanup(func() { _ = CloseAuditLogger() })

		RecordPrivacyAudit(context.Background(), "tick-2", "content", "redact", "card-number")
		RecordCleanupAudit(context.Background(), "manual", 7, 2, errors.New("disk full"))
		require.NoError(t, CloseAuditLogger())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], `"rule":"card-number"`)
		assert.Contains(t, lines[1], `"status":"failure"`)
		assert.Contains(t, lines[1], `"deleted":2`)
	})

	t.Run("uninitialised logger discards", func(t *testing.T) {
		require.NoError(t, CloseAuditLogger())
		assert.NotPanics(t, func() {
			RecordConfigAudit(context.Background(), "reload", nil)
		})
	})
}
