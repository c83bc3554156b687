package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/alexandria/internal/tracing"
)

func openTestStore(t *testing.T, mutate ...func(*Config)) *Store {
	t.Helper()
	cfg := Config{
		DataDir:          t.TempDir(),
		Thumbnails:       true,
		ThumbnailWidth:   16,
		SearchCacheBytes: 1 << 20,
		Logger:           zerolog.Nop(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := Open(cfg)
	if errors.Is(err, ErrFTSUnavailable) {
		t.Skip("sqlite built without fts5; run with -tags sqlite_fts5")
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func strPtr(s string) *string    { return &s }
func f64Ptr(f float64) *float64 { return &f }

func newMemory(t *testing.T, at time.Time, text string, tags ...string) NewMemory {
	nm := NewMemory{
		CapturedAt:    at,
		Image:         testPNG(t, 40, 20),
		ImageFormat:   "png",
		ApplicationID: strPtr("org.mozilla.firefox"),
		Tags:          tags,
	}
	if text != "" {
		nm.ExtractedText = strPtr(text)
		nm.OCRConfidence = f64Ptr(87.5)
	}
	return nm
}

func visibleFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if e.Name()[0] != '.' {
			out = append(out, e.Name())
		}
	}
	return out
}

func TestInsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	nm := newMemory(t, at, "Quarterly planning meeting", "meeting", "app:firefox", "meeting", " ")
	nm.WindowTitle = strPtr("")
	id, err := s.Insert(ctx, nm)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	m, err := s.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, m.ID)
	assert.True(t, at.Equal(m.CapturedAt))
	assert.Equal(t, filepath.Join("images", id+".png"), m.ImagePath)
	assert.FileExists(t, filepath.Join(s.DataDir(), m.ImagePath))
	require.NotNil(t, m.ThumbnailPath)
	assert.FileExists(t, filepath.Join(s.DataDir(), *m.ThumbnailPath))
	assert.Equal(t, 40, m.ImageWidth)
	assert.Equal(t, 20, m.ImageHeight)
	assert.Equal(t, int64(len(nm.Image)), m.ImageBytes)

	require.NotNil(t, m.WindowTitle)
	assert.Equal(t, "", *m.WindowTitle)
	assert.Nil(t, m.WorkspaceID)
	require.NotNil(t, m.ExtractedText)
	assert.Equal(t, "Quarterly planning meeting", *m.ExtractedText)
	require.NotNil(t, m.OCRConfidence)
	assert.InDelta(t, 87.5, *m.OCRConfidence, 0.001)
	assert.Equal(t, []string{"app:firefox", "meeting"}, m.Tags)
	assert.False(t, m.Sensitive)

	img, err := s.ReadImage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nm.Image, img)
}

func TestInsertValidation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t.Run("zero capture time", func(t *testing.T) {
		nm := newMemory(t, time.Time{}, "x")
		_, err := s.Insert(ctx, nm)
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("empty image", func(t *testing.T) {
		nm := newMemory(t, time.Now(), "x")
		nm.Image = nil
		_, err := s.Insert(ctx, nm)
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("duplicate id keeps the original image", func(t *testing.T) {
		nm := newMemory(t, time.Now(), "first")
		nm.ID = "fixed-id"
		_, err := s.Insert(ctx, nm)
		require.NoError(t, err)
		before, err := os.ReadFile(filepath.Join(s.DataDir(), "images", "fixed-id.png"))
		require.NoError(t, err)

		dup := newMemory(t, time.Now(), "second")
		dup.ID = "fixed-id"
		dup.Image = testPNG(t, 8, 8)
		_, err = s.Insert(ctx, dup)
		var se *StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "insert", se.Op)

		after, err := os.ReadFile(filepath.Join(s.DataDir(), "images", "fixed-id.png"))
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestInsertSensitive(t *testing.T) {
	t.Run("text tags and confidence are dropped", func(t *testing.T) {
		s := openTestStore(t, func(c *Config) { c.KeepSensitiveImages = true })
		ctx := context.Background()

		nm := newMemory(t, time.Now(), "card 4111 1111 1111 1111", "payment")
		nm.Sensitive = true
		id, err := s.Insert(ctx, nm)
		require.NoError(t, err)

		m, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, m.Sensitive)
		assert.Nil(t, m.ExtractedText)
		assert.Nil(t, m.OCRConfidence)
		assert.Empty(t, m.Tags)
		assert.NotEmpty(t, m.ImagePath)

		res, err := s.Search(ctx, Query{Text: "4111"}, 10)
		require.NoError(t, err)
		assert.Empty(t, res)
		res, err = s.Search(ctx, Query{Tags: []string{"payment"}}, 10)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("image dropped when not kept", func(t *testing.T) {
		s := openTestStore(t)
		nm := newMemory(t, time.Now(), "secret")
		nm.Sensitive = true
		id, err := s.Insert(context.Background(), nm)
		require.NoError(t, err)

		m, err := s.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Empty(t, m.ImagePath)
		assert.Nil(t, m.ThumbnailPath)
		assert.Empty(t, visibleFiles(t, filepath.Join(s.DataDir(), "images")))
	})
}

func TestInsertStructuredFields(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.KeepSensitiveImages = true })
	ctx := context.Background()
	layout := json.RawMessage(`{"lines":[{"text":"Budget review","confidence":85,"words":2,"bbox":{"left":0,"top":0,"width":130,"height":12}}],"paragraphs":[],"total_words":2}`)

	t.Run("round trip", func(t *testing.T) {
		nm := newMemory(t, time.Now(), "Budget review")
		nm.WindowClass = strPtr("Navigator")
		nm.OCRData = layout
		nm.DominantColors = []string{"#ffffff", "#1e1e1e"}
		id, err := s.Insert(ctx, nm)
		require.NoError(t, err)

		m, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, m.WindowClass)
		assert.Equal(t, "Navigator", *m.WindowClass)
		assert.JSONEq(t, string(layout), string(m.OCRData))
		assert.Equal(t, []string{"#ffffff", "#1e1e1e"}, m.DominantColors)
	})

	t.Run("absent fields stay absent", func(t *testing.T) {
		id, err := s.Insert(ctx, newMemory(t, time.Now(), "plain"))
		require.NoError(t, err)

		m, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, m.WindowClass)
		assert.Nil(t, m.OCRData)
		assert.Nil(t, m.DominantColors)
	})

	t.Run("invalid layout json rejected", func(t *testing.T) {
		nm := newMemory(t, time.Now(), "x")
		nm.OCRData = json.RawMessage(`{"lines":`)
		_, err := s.Insert(ctx, nm)
		assert.ErrorIs(t, err, ErrStorage)
	})

	t.Run("sensitive drops layout and keeps colours with the image", func(t *testing.T) {
		nm := newMemory(t, time.Now(), "pin 1234")
		nm.OCRData = layout
		nm.DominantColors = []string{"#000000"}
		nm.Sensitive = true
		id, err := s.Insert(ctx, nm)
		require.NoError(t, err)

		m, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, m.OCRData)
		assert.Equal(t, []string{"#000000"}, m.DominantColors)
	})

	t.Run("colours dropped with the image", func(t *testing.T) {
		strict := openTestStore(t)
		nm := newMemory(t, time.Now(), "pin 1234")
		nm.DominantColors = []string{"#000000"}
		nm.Sensitive = true
		id, err := strict.Insert(ctx, nm)
		require.NoError(t, err)

		m, err := strict.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, m.DominantColors)
	})
}

type failingSealer struct{}

func (failingSealer) Seal(string, []byte) ([]byte, error) { return nil, errors.New("no key") }
func (failingSealer) Open(string, []byte) ([]byte, error) { return nil, errors.New("no key") }

type xorSealer struct{}

func (xorSealer) Seal(_ string, b []byte) ([]byte, error) { return xor(b), nil }
func (xorSealer) Open(_ string, b []byte) ([]byte, error) { return xor(b), nil }

func xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ 0x5a
	}
	return out
}

func TestInsertFailureLeavesNoFiles(t *testing.T) {
	t.Run("row insert fails", func(t *testing.T) {
		s := openTestStore(t)
		_, err := s.db.Exec("DROP TABLE memory_tags")
		require.NoError(t, err)

		_, err = s.Insert(context.Background(), newMemory(t, time.Now(), "hello", "tag"))
		require.ErrorIs(t, err, ErrStorage)

		assert.Empty(t, visibleFiles(t, filepath.Join(s.DataDir(), "images")))
		assert.Empty(t, visibleFiles(t, filepath.Join(s.DataDir(), "thumbnails")))

		st, err := s.Stats(context.Background())
		require.NoError(t, err)
		assert.Zero(t, st.Count)
	})

	t.Run("sealer fails", func(t *testing.T) {
		s := openTestStore(t, func(c *Config) { c.Sealer = failingSealer{} })
		_, err := s.Insert(context.Background(), newMemory(t, time.Now(), "hello"))
		require.ErrorIs(t, err, ErrStorage)
		assert.Empty(t, visibleFiles(t, filepath.Join(s.DataDir(), "images")))
	})
}

func TestSealerAppliesOnDisk(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.Sealer = xorSealer{} })
	ctx := context.Background()
	nm := newMemory(t, time.Now(), "sealed")
	id, err := s.Insert(ctx, nm)
	require.NoError(t, err)

	m, err := s.Get(ctx, id)
	require.NoError(t, err)
	onDisk, err := os.ReadFile(filepath.Join(s.DataDir(), m.ImagePath))
	require.NoError(t, err)
	assert.NotEqual(t, nm.Image, onDisk)

	plain, err := s.ReadImage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nm.Image, plain)
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	insert := func(nm NewMemory) string {
		id, err := s.Insert(ctx, nm)
		require.NoError(t, err)
		return id
	}

	invoice := insert(newMemory(t, base, "Invoice #42 for ACME Corp", "invoice", "app:firefox"))
	noText := newMemory(t, base.Add(time.Minute), "", "app:terminal", "invoice")
	noText.ApplicationID = strPtr("foot")
	silent := insert(noText)
	goDoc := insert(newMemory(t, base.Add(2*time.Minute), "go doc os.File", "app:firefox"))

	t.Run("substring round trip is case insensitive", func(t *testing.T) {
		res, err := s.Search(ctx, Query{Text: "acme corp"}, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, invoice, res[0].ID)

		res, err = s.Search(ctx, Query{Text: "oice #4"}, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, invoice, res[0].ID)
	})

	t.Run("short terms fall back to LIKE", func(t *testing.T) {
		res, err := s.Search(ctx, Query{Text: "os"}, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, goDoc, res[0].ID)
	})

	t.Run("like wildcards are literal", func(t *testing.T) {
		res, err := s.Search(ctx, Query{Text: "%"}, 10)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("text matches tags of memories with text", func(t *testing.T) {
		res, err := s.Search(ctx, Query{Text: "invoice"}, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, invoice, res[0].ID)
	})

	t.Run("absent text only reachable through filters", func(t *testing.T) {
		res, err := s.Search(ctx, Query{Text: "terminal"}, 10)
		require.NoError(t, err)
		assert.Empty(t, res)

		res, err = s.Search(ctx, Query{Tags: []string{"app:terminal"}}, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, silent, res[0].ID)
	})

	t.Run("tag filters are conjunctive", func(t *testing.T) {
		res, err := s.Search(ctx, Query{Tags: []string{"invoice", "app:firefox"}}, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, invoice, res[0].ID)
	})

	t.Run("app filter ignores case", func(t *testing.T) {
		res, err := s.Search(ctx, Query{AppID: "FOOT"}, 10)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, silent, res[0].ID)
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		res, err := s.Search(ctx, Query{From: base.Add(time.Minute), To: base.Add(2 * time.Minute)}, 10)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, goDoc, res[0].ID)
		assert.Equal(t, silent, res[1].ID)
	})

	t.Run("empty query lists newest first", func(t *testing.T) {
		res, err := s.Search(ctx, Query{}, 0)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, []string{goDoc, silent, invoice}, []string{res[0].ID, res[1].ID, res[2].ID})
	})
}

func TestSearchShortTermsFoldNonASCII(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, newMemory(t, time.Now(), "Ёж и Öl notes", "Straße"))
	require.NoError(t, err)
	_, err = s.Insert(ctx, newMemory(t, time.Now().Add(time.Second), "unrelated"))
	require.NoError(t, err)

	for _, term := range []string{"ёж", "ЁЖ", "Ёж", "öl", "ÖL", "Öl", "ss"} {
		res, err := s.Search(ctx, Query{Text: term}, 10)
		require.NoError(t, err, term)
		require.Len(t, res, 1, term)
		assert.Equal(t, id, res[0].ID, term)
	}
}

func TestOpenMigratesOlderDatabase(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, func(c *Config) { c.DataDir = dir })
	id, err := s.Insert(ctx, newMemory(t, time.Now(), "Ёж notes"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	db, err := sql.Open("sqlite3", filepath.Join(dir, "memories.db"))
	require.NoError(t, err)
	for _, col := range []string{"search_text", "dominant_colors", "ocr_data", "window_class"} {
		_, err := db.Exec("ALTER TABLE memories DROP COLUMN " + col)
		require.NoError(t, err, col)
	}
	require.NoError(t, db.Close())

	s = openTestStore(t, func(c *Config) { c.DataDir = dir })
	for _, col := range addedColumns {
		exists, err := columnExists(s.db, "memories", col.name)
		require.NoError(t, err)
		assert.True(t, exists, col.name)
	}

	res, err := s.Search(ctx, Query{Text: "ёж"}, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, id, res[0].ID)
}

func TestOperationLogsCarryTraceID(t *testing.T) {
	var buf bytes.Buffer
	s := openTestStore(t, func(c *Config) {
		c.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	})
	ctx := tracing.WithTraceID(context.Background(), "trace-1")

	_, err := s.Search(ctx, Query{Text: "anything"}, 10)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"message":"Search completed"`)
	assert.Contains(t, buf.String(), `"trace_id":"trace-1"`)

	buf.Reset()
	_, err = s.Insert(ctx, newMemory(t, time.Time{}, "x"))
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"message":"Memory insert failed"`)
	assert.Contains(t, buf.String(), `"trace_id":"trace-1"`)
}

func TestSearchLimitOrderingAndStability(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.Thumbnails = false })
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	var ids []string
	for i := 0; i < 8; i++ {
		id, err := s.Insert(ctx, newMemory(t, base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("standup meeting %d", i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	_, err := s.Insert(ctx, newMemory(t, base, "unrelated"))
	require.NoError(t, err)

	first, err := s.Search(ctx, Query{Text: "meeting"}, 5)
	require.NoError(t, err)
	require.Len(t, first, 5)
	for i := 0; i < 5; i++ {
		assert.Equal(t, ids[7-i], first[i].ID)
	}
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].CapturedAt.After(first[i-1].CapturedAt))
	}

	second, err := s.Search(ctx, Query{Text: "meeting"}, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearchCacheInvalidatedByWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, newMemory(t, time.Now().Add(-time.Minute), "release notes"))
	require.NoError(t, err)

	res, err := s.Search(ctx, Query{Text: "release"}, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)

	res[0].Tags = append(res[0].Tags, "mutated")
	again, err := s.Search(ctx, Query{Text: "release"}, 10)
	require.NoError(t, err)
	assert.NotContains(t, again[0].Tags, "mutated")

	_, err = s.Insert(ctx, newMemory(t, time.Now(), "release party"))
	require.NoError(t, err)

	res, err = s.Search(ctx, Query{Text: "release"}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultSearchLimit, clampLimit(0))
	assert.Equal(t, DefaultSearchLimit, clampLimit(-3))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, MaxSearchLimit, clampLimit(MaxSearchLimit+1))
}

func TestStats(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.KeepSensitiveImages = true })
	ctx := context.Background()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Count)
	assert.Nil(t, st.Oldest)
	assert.Nil(t, st.Newest)

	old := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	recent := time.Now().UTC().Truncate(time.Second)
	_, err = s.Insert(ctx, newMemory(t, old, "with text"))
	require.NoError(t, err)
	sensitive := newMemory(t, recent, "password")
	sensitive.Sensitive = true
	_, err = s.Insert(ctx, sensitive)
	require.NoError(t, err)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Count)
	assert.Equal(t, 1, st.WithText)
	assert.Equal(t, 1, st.Sensitive)
	require.NotNil(t, st.Oldest)
	require.NotNil(t, st.Newest)
	assert.True(t, old.Equal(*st.Oldest))
	assert.True(t, recent.Equal(*st.Newest))
	assert.Positive(t, st.TotalBytes)
}

func TestDeleteOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	var oldIDs []string
	for i := 0; i < 3; i++ {
		id, err := s.Insert(ctx, newMemory(t, now.Add(-time.Duration(10+i)*24*time.Hour), "old"))
		require.NoError(t, err)
		oldIDs = append(oldIDs, id)
	}
	keep, err := s.Insert(ctx, newMemory(t, now.Add(-time.Hour), "fresh"))
	require.NoError(t, err)

	before, err := s.Stats(ctx)
	require.NoError(t, err)

	n, err := s.CountOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	deleted, err := s.DeleteOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	after, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Count-deleted, after.Count)

	for _, id := range oldIDs {
		_, err := s.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoFileExists(t, filepath.Join(s.DataDir(), "images", id+".png"))
		assert.NoFileExists(t, filepath.Join(s.DataDir(), "thumbnails", id+".jpg"))
	}

	res, err := s.Search(ctx, Query{}, 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, keep, res[0].ID)
	cutoff := Cutoff(time.Now(), 7)
	for _, m := range res {
		assert.False(t, m.CapturedAt.Before(cutoff))
	}

	_, err = s.DeleteOlderThan(ctx, -1)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestDeleteOlderThanBatches(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-90 * 24 * time.Hour).UnixNano()
	total := DeleteBatchSize*2 + 7
	tx, err := s.db.Begin()
	require.NoError(t, err)
	for i := 0; i < total; i++ {
		_, err := tx.Exec("INSERT INTO memories (id, captured_at, sensitive) VALUES (?, ?, 1)", fmt.Sprintf("bulk-%04d", i), old+int64(i))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	deleted, err := s.DeleteOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, total, deleted)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.Count)
}

func TestDeleteOlderThanReportsPartialProgress(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Insert(context.Background(), newMemory(t, time.Now().Add(-72*time.Hour), "old"))
	require.NoError(t, err)

	deleted, err := s.DeleteOlderThan(ctx, 1)
	require.ErrorIs(t, err, ErrStorage)
	assert.Zero(t, deleted)

	n, err := s.CountOlderThan(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReconcileRemovesRowsWithMissingImages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	gone, err := s.Insert(ctx, newMemory(t, time.Now(), "gone"))
	require.NoError(t, err)
	kept, err := s.Insert(ctx, newMemory(t, time.Now(), "kept"))
	require.NoError(t, err)

	m, err := s.Get(ctx, gone)
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(s.DataDir(), m.ImagePath)))

	removed, err := s.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(ctx, gone)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoFileExists(t, filepath.Join(s.DataDir(), "thumbnails", gone+".jpg"))
	_, err = s.Get(ctx, kept)
	assert.NoError(t, err)
}

func TestImageWatcher(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.WatchImages = true })
	ctx := context.Background()

	id, err := s.Insert(ctx, newMemory(t, time.Now(), "watched"))
	require.NoError(t, err)
	m, err := s.Get(ctx, id)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(s.DataDir(), m.ImagePath)))

	require.Eventually(t, func() bool {
		_, err := s.Get(ctx, id)
		return errors.Is(err, ErrNotFound)
	}, 5*time.Second, 50*time.Millisecond)
}

func TestConcurrentWritersAndReaders(t *testing.T) {
	s := openTestStore(t, func(c *Config) { c.Thumbnails = false })
	ctx := context.Background()
	img := testPNG(t, 4, 4)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*perWriter+64)

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := s.Insert(ctx, NewMemory{
					CapturedAt:    time.Now(),
					Image:         img,
					ExtractedText: strPtr(fmt.Sprintf("writer %d note %d", w, i)),
				})
				if err != nil {
					errs <- err
				}
			}
		}(w)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				res, err := s.Search(ctx, Query{Text: "note"}, 100)
				if err != nil {
					errs <- err
					return
				}
				for _, m := range res {
					if m.ExtractedText == nil {
						errs <- fmt.Errorf("partial row %s", m.ID)
					}
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := s.DeleteOlderThan(ctx, 1); err != nil {
			errs <- err
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, st.Count)
}
