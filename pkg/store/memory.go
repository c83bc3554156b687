package store

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

const (
	// DefaultSearchLimit applies when Search is called with limit <= 0.
	DefaultSearchLimit = 50
	// MaxSearchLimit caps a single Search call.
	MaxSearchLimit = 1000
	// DeleteBatchSize is the number of rows removed per retention transaction.
	DeleteBatchSize = 500
)

// Memory is one stored capture.
type Memory struct {
	ID            string    `json:"id"`
	CapturedAt    time.Time `json:"captured_at"`
	ImagePath     string    `json:"image_path"`
	ThumbnailPath *string   `json:"thumbnail_path,omitempty"`
	ImageBytes    int64     `json:"image_bytes"`
	ImageWidth    int       `json:"image_width"`
	ImageHeight   int       `json:"image_height"`
	ImageFormat   string    `json:"image_format"`

	WindowTitle   *string `json:"window_title,omitempty"`
	ApplicationID *string `json:"application_id,omitempty"`
	WindowClass   *string `json:"window_class,omitempty"`
	WorkspaceID   *string `json:"workspace_id,omitempty"`

	ExtractedText *string  `json:"extracted_text,omitempty"`
	OCRConfidence *float64 `json:"ocr_confidence,omitempty"`
	// OCRData is the line and paragraph layout of ExtractedText as JSON.
	OCRData        json.RawMessage `json:"ocr_data,omitempty"`
	DominantColors []string        `json:"dominant_colors,omitempty"`
	Tags           []string        `json:"tags"`
	Sensitive      bool            `json:"sensitive"`
}

// NewMemory is the input to Insert. The store assigns the ID unless one is
// given and owns where the image lands on disk.
type NewMemory struct {
	ID          string
	CapturedAt  time.Time
	Image       []byte
	ImageFormat string

	WindowTitle   *string
	ApplicationID *string
	WindowClass   *string
	WorkspaceID   *string

	ExtractedText *string
	OCRConfidence *float64
	// OCRData must be valid JSON when set. It is dropped with the text of a
	// sensitive memory.
	OCRData json.RawMessage
	// DominantColors are dropped when the image is not kept.
	DominantColors []string
	Tags           []string
	Sensitive      bool
}

// Query filters a Search. Zero fields do not filter.
type Query struct {
	// Text is split on whitespace; every term must appear (case-insensitive
	// substring) in the extracted text or the tags.
	Text  string
	AppID string
	From  time.Time
	To    time.Time
	// Tags must all be present.
	Tags []string
}

func (q Query) terms() []string {
	return strings.Fields(q.Text)
}

func (q Query) cacheKey() string {
	var b strings.Builder
	b.WriteString(q.Text)
	b.WriteByte(0)
	b.WriteString(strings.ToLower(q.AppID))
	b.WriteByte(0)
	if !q.From.IsZero() {
		b.WriteString(q.From.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte(0)
	if !q.To.IsZero() {
		b.WriteString(q.To.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte(0)
	b.WriteString(strings.Join(normalizeTags(q.Tags), "\n"))
	return b.String()
}

// Stats summarises the store.
type Stats struct {
	Count      int        `json:"count"`
	Oldest     *time.Time `json:"oldest,omitempty"`
	Newest     *time.Time `json:"newest,omitempty"`
	TotalBytes int64      `json:"total_bytes"`
	WithText   int        `json:"with_text"`
	Sensitive  int        `json:"sensitive"`
}

// normalizeTags returns a sorted set without blanks.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || strings.ContainsRune(t, '\n') {
			continue
		}
		out = append(out, t)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSearchLimit
	case limit > MaxSearchLimit:
		return MaxSearchLimit
	default:
		return limit
	}
}
