package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"

	"github.com/harun/alexandria/internal/observability"
	"github.com/harun/alexandria/internal/tracing"
)

const tracerName = "alexandria.store"

// Config configures a Store.
type Config struct {
	// DataDir holds images/ and thumbnails/; image paths are relative to it.
	DataDir string
	// DatabasePath defaults to DataDir/memories.db.
	DatabasePath string

	KeepSensitiveImages bool
	Thumbnails          bool
	ThumbnailWidth      int
	SearchCacheBytes    int64
	// WatchImages removes rows whose image file disappears.
	WatchImages bool

	Sealer Sealer
	Logger zerolog.Logger
}

// Store persists memories in SQLite with their images on disk. Writes are
// serialised by writeMu; reads run concurrently on WAL snapshots.
type Store struct {
	db      *sql.DB
	dataDir string
	cfg     Config
	sealer  Sealer
	logger  zerolog.Logger
	cache   *searchCache
	watcher *imageWatcher

	writeMu sync.Mutex
	closeMu sync.Once
}

// Open creates or opens the store.
func Open(cfg Config) (*Store, error) {
	observability.EnsureRegistered()

	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "memories.db")
	}
	if cfg.Sealer == nil {
		cfg.Sealer = PlainSealer{}
	}
	if cfg.ThumbnailWidth <= 0 {
		cfg.ThumbnailWidth = 320
	}

	for _, dir := range []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, imagesDir),
		filepath.Join(cfg.DataDir, thumbnailsDir),
		filepath.Dir(cfg.DatabasePath),
	} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	dsn := cfg.DatabasePath + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	cache, err := newSearchCache(cfg.SearchCacheBytes)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create search cache: %w", err)
	}

	s := &Store{
		db:      db,
		dataDir: cfg.DataDir,
		cfg:     cfg,
		sealer:  cfg.Sealer,
		logger:  cfg.Logger.With().Str("component", "store").Logger(),
		cache:   cache,
	}

	if cfg.WatchImages {
		if _, err := s.Reconcile(context.Background()); err != nil {
			s.logger.Warn().Err(err).Msg("Image reconcile failed")
		}
		w, err := newImageWatcher(s)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("watch images: %w", err)
		}
		s.watcher = w
	}

	s.logger.Debug().Str("db", cfg.DatabasePath).Msg("Memory store opened")
	return s, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS memories (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  captured_at INTEGER NOT NULL,
  image_path TEXT NOT NULL DEFAULT '',
  thumbnail_path TEXT,
  image_bytes INTEGER NOT NULL DEFAULT 0,
  thumbnail_bytes INTEGER NOT NULL DEFAULT 0,
  image_width INTEGER NOT NULL DEFAULT 0,
  image_height INTEGER NOT NULL DEFAULT 0,
  image_format TEXT NOT NULL DEFAULT '',
  window_title TEXT,
  application_id TEXT,
  window_class TEXT,
  workspace_id TEXT,
  extracted_text TEXT,
  ocr_confidence REAL,
  ocr_data TEXT,
  dominant_colors TEXT,
  tags TEXT NOT NULL DEFAULT '',
  search_text TEXT,
  sensitive INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_captured_at ON memories(captured_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_memories_app ON memories(application_id COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_memories_image_path ON memories(image_path);

CREATE TABLE IF NOT EXISTS memory_tags (
  memory_id TEXT NOT NULL,
  tag TEXT NOT NULL,
  PRIMARY KEY (memory_id, tag),
  FOREIGN KEY (memory_id) REFERENCES memories(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memory_tags_tag ON memory_tags(tag);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := migrateColumns(db); err != nil {
		return fmt.Errorf("migrate columns: %w", err)
	}

	// Trigram tokenisation gives case-insensitive substring matching for
	// terms of three or more characters.
	fts := `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
  extracted_text, tags,
  content='memories', content_rowid='seq',
  tokenize='trigram'
);
`
	if _, err := db.Exec(fts); err != nil {
		if strings.Contains(err.Error(), "no such module") {
			return ErrFTSUnavailable
		}
		return fmt.Errorf("create fts table: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
  INSERT INTO memories_fts(rowid, extracted_text, tags)
  VALUES (NEW.seq, NEW.extracted_text, NEW.tags);
END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
  INSERT INTO memories_fts(memories_fts, rowid, extracted_text, tags)
  VALUES ('delete', OLD.seq, OLD.extracted_text, OLD.tags);
END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
  INSERT INTO memories_fts(memories_fts, rowid, extracted_text, tags)
  VALUES ('delete', OLD.seq, OLD.extracted_text, OLD.tags);
  INSERT INTO memories_fts(rowid, extracted_text, tags)
  VALUES (NEW.seq, NEW.extracted_text, NEW.tags);
END;`,
	}

	for _, t := range triggers {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("create trigger: %w", err)
		}
	}

	return nil
}

// addedColumns lists columns newer than the first schema, in order.
var addedColumns = []struct{ name, definition string }{
	{"window_class", "TEXT"},
	{"ocr_data", "TEXT"},
	{"dominant_colors", "TEXT"},
	{"search_text", "TEXT"},
}

// migrateColumns adds missing columns to a database created by an older
// build and fills search_text for its existing rows.
func migrateColumns(db *sql.DB) error {
	for _, col := range addedColumns {
		exists, err := columnExists(db, "memories", col.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := db.Exec("ALTER TABLE memories ADD COLUMN " + col.name + " " + col.definition); err != nil {
			return fmt.Errorf("add %s: %w", col.name, err)
		}
		if col.name == "search_text" {
			if err := backfillSearchText(db); err != nil {
				return fmt.Errorf("backfill search_text: %w", err)
			}
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query("SELECT name FROM pragma_table_info('"+table+"') WHERE name = ?", column)
	if err != nil {
		return false, err
	}
	found := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}

func backfillSearchText(db *sql.DB) error {
	type pending struct {
		seq    int64
		folded string
	}
	rows, err := db.Query("SELECT seq, extracted_text, tags FROM memories WHERE extracted_text IS NOT NULL")
	if err != nil {
		return err
	}
	var todo []pending
	for rows.Next() {
		var (
			seq  int64
			text string
			tags string
		)
		if err := rows.Scan(&seq, &text, &tags); err != nil {
			rows.Close()
			return err
		}
		todo = append(todo, pending{seq: seq, folded: *searchText(&text, strings.Split(tags, "\n"))})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, p := range todo {
		if _, err := tx.Exec("UPDATE memories SET search_text = ? WHERE seq = ?", p.folded, p.seq); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// searchText is the case-folded copy of text and tags that short terms
// are matched against, since LIKE only folds ASCII.
func searchText(text *string, tags []string) *string {
	if text == nil {
		return nil
	}
	fold := cases.Fold()
	folded := fold.String(*text) + "\n" + fold.String(strings.Join(tags, "\n"))
	return &folded
}

// DataDir returns the directory image paths are relative to.
func (s *Store) DataDir() string { return s.dataDir }

// Close stops the image watcher and closes the database.
func (s *Store) Close() error {
	var err error
	s.closeMu.Do(func() {
		if s.watcher != nil {
			s.watcher.stop()
		}
		s.cache.close()
		err = s.db.Close()
	})
	return err
}

// Insert persists a memory and its image. The image (and thumbnail) are
// written before the row commits; if anything fails they are removed again.
func (s *Store) Insert(ctx context.Context, nm NewMemory) (string, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "store.insert",
		attribute.Bool("sensitive", nm.Sensitive),
		attribute.Int("image_bytes", len(nm.Image)),
	)
	defer span.End()

	start := time.Now()
	id, err := s.insert(ctx, nm)
	observability.RecordStoreWrite(time.Since(start), err == nil)
	if err != nil {
		tracing.Fail(span, err, "insert failed")
		log := tracing.LoggerFromContext(ctx, s.logger)
		log.Error().Err(err).Msg("Memory insert failed")
		return "", err
	}
	span.SetAttributes(attribute.String("memory.id", id))
	return id, nil
}

func (s *Store) insert(ctx context.Context, nm NewMemory) (string, error) {
	if nm.CapturedAt.IsZero() {
		return "", storageErr("insert", errors.New("captured_at is required"))
	}

	if nm.Sensitive {
		nm.ExtractedText = nil
		nm.OCRConfidence = nil
		nm.OCRData = nil
		nm.Tags = nil
	}
	keepImage := !nm.Sensitive || s.cfg.KeepSensitiveImages
	if !keepImage {
		nm.DominantColors = nil
	}
	if keepImage && len(nm.Image) == 0 {
		return "", storageErr("insert", errors.New("image is empty"))
	}
	if len(nm.OCRData) > 0 && !json.Valid(nm.OCRData) {
		return "", storageErr("insert", errors.New("ocr data is not valid JSON"))
	}
	if nm.OCRConfidence != nil && (*nm.OCRConfidence < 0 || *nm.OCRConfidence > 100) {
		return "", storageErr("insert", fmt.Errorf("ocr confidence %v out of range", *nm.OCRConfidence))
	}

	id := nm.ID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return "", storageErr("insert", fmt.Errorf("generate id: %w", err))
		}
		id = u.String()
	}
	tags := normalizeTags(nm.Tags)
	format := imageExt(nm.ImageFormat)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", storageErr("insert", err)
	}

	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memories WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return "", storageErr("insert", err)
	}
	if exists > 0 {
		return "", storageErr("insert", fmt.Errorf("duplicate id %s", id))
	}

	var (
		imagePath     string
		thumbPath     *string
		imageBytes    int64
		thumbBytes    int64
		width, height int
		written       []string
	)
	cleanup := func() {
		if err := removeBlobs(s.dataDir, written...); err != nil {
			s.logger.Warn().Err(err).Str("id", id).Msg("Failed to remove files of aborted insert")
		}
	}

	if keepImage {
		width, height, _ = imageSize(nm.Image)

		sealed, err := s.sealer.Seal(id, nm.Image)
		if err != nil {
			return "", storageErr("seal image", err)
		}
		imagePath = imageRelPath(id, format)
		if imageBytes, err = writeBlob(s.dataDir, imagePath, sealed); err != nil {
			return "", storageErr("write image", err)
		}
		written = append(written, imagePath)

		if s.cfg.Thumbnails {
			if thumb, err := thumbnail(nm.Image, s.cfg.ThumbnailWidth); err != nil {
				s.logger.Debug().Err(err).Str("id", id).Msg("Thumbnail skipped")
			} else {
				sealedThumb, err := s.sealer.Seal(id, thumb)
				if err != nil {
					cleanup()
					return "", storageErr("seal thumbnail", err)
				}
				rel := thumbnailRelPath(id)
				if thumbBytes, err = writeBlob(s.dataDir, rel, sealedThumb); err != nil {
					cleanup()
					return "", storageErr("write thumbnail", err)
				}
				written = append(written, rel)
				thumbPath = &rel
			}
		}
	}

	if err := s.insertRow(ctx, id, nm, format, imagePath, thumbPath, imageBytes, thumbBytes, width, height, tags); err != nil {
		cleanup()
		return "", storageErr("insert row", err)
	}

	s.cache.invalidate()
	return id, nil
}

func (s *Store) insertRow(ctx context.Context, id string, nm NewMemory, format, imagePath string, thumbPath *string, imageBytes, thumbBytes int64, width, height int, tags []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var ocrData, colors *string
	if len(nm.OCRData) > 0 {
		v := string(nm.OCRData)
		ocrData = &v
	}
	if len(nm.DominantColors) > 0 {
		raw, err := json.Marshal(nm.DominantColors)
		if err != nil {
			return err
		}
		v := string(raw)
		colors = &v
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO memories (
  id, captured_at, image_path, thumbnail_path, image_bytes, thumbnail_bytes,
  image_width, image_height, image_format, window_title, application_id,
  window_class, workspace_id, extracted_text, ocr_confidence, ocr_data,
  dominant_colors, tags, search_text, sensitive
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nm.CapturedAt.UTC().UnixNano(), imagePath, thumbPath, imageBytes, thumbBytes,
		width, height, format, nm.WindowTitle, nm.ApplicationID,
		nm.WindowClass, nm.WorkspaceID, nm.ExtractedText, nm.OCRConfidence, ocrData,
		colors, strings.Join(tags, "\n"), searchText(nm.ExtractedText, tags), nm.Sensitive,
	)
	if err != nil {
		return err
	}

	for _, tag := range tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO memory_tags (memory_id, tag) VALUES (?, ?)", id, tag); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get returns one memory by ID.
func (s *Store) Get(ctx context.Context, id string) (*Memory, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+memoryColumns+" FROM memories m WHERE m.id = ?", id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return m, nil
}

// ReadImage returns the unsealed image bytes of a memory.
func (s *Store) ReadImage(ctx context.Context, id string) ([]byte, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.ImagePath == "" {
		return nil, ErrNotFound
	}
	sealed, err := os.ReadFile(filepath.Join(s.dataDir, m.ImagePath))
	if err != nil {
		return nil, storageErr("read image", err)
	}
	plain, err := s.sealer.Open(id, sealed)
	if err != nil {
		return nil, storageErr("open image", err)
	}
	return plain, nil
}

const memoryColumns = `m.id, m.captured_at, m.image_path, m.thumbnail_path, m.image_bytes,
  m.image_width, m.image_height, m.image_format, m.window_title, m.application_id,
  m.window_class, m.workspace_id, m.extracted_text, m.ocr_confidence, m.ocr_data,
  m.dominant_colors, m.tags, m.sensitive`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*Memory, error) {
	var (
		m          Memory
		capturedAt int64
		thumb      sql.NullString
		title      sql.NullString
		appID      sql.NullString
		class      sql.NullString
		workspace  sql.NullString
		text       sql.NullString
		confidence sql.NullFloat64
		ocrData    sql.NullString
		colors     sql.NullString
		tags       string
	)
	err := row.Scan(
		&m.ID, &capturedAt, &m.ImagePath, &thumb, &m.ImageBytes,
		&m.ImageWidth, &m.ImageHeight, &m.ImageFormat, &title, &appID,
		&class, &workspace, &text, &confidence, &ocrData,
		&colors, &tags, &m.Sensitive,
	)
	if err != nil {
		return nil, err
	}

	m.CapturedAt = time.Unix(0, capturedAt).UTC()
	m.ThumbnailPath = nullString(thumb)
	m.WindowTitle = nullString(title)
	m.ApplicationID = nullString(appID)
	m.WindowClass = nullString(class)
	m.WorkspaceID = nullString(workspace)
	m.ExtractedText = nullString(text)
	if confidence.Valid {
		c := confidence.Float64
		m.OCRConfidence = &c
	}
	if ocrData.Valid {
		m.OCRData = json.RawMessage(ocrData.String)
	}
	if colors.Valid {
		if err := json.Unmarshal([]byte(colors.String), &m.DominantColors); err != nil {
			return nil, fmt.Errorf("decode dominant colors: %w", err)
		}
	}
	m.Tags = []string{}
	if tags != "" {
		m.Tags = strings.Split(tags, "\n")
	}
	return &m, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
