package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/alexandria/internal/observability"
	"github.com/harun/alexandria/internal/tracing"
)

// Cutoff returns the instant before which memories are older than days.
func Cutoff(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// CountOlderThan reports how many memories DeleteOlderThan would remove.
func (s *Store) CountOlderThan(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, storageErr("count", fmt.Errorf("days must be >= 0, got %d", days))
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM memories WHERE captured_at < ?",
		Cutoff(time.Now(), days).UTC().UnixNano(),
	).Scan(&n)
	if err != nil {
		return 0, storageErr("count", err)
	}
	return n, nil
}

// DeleteOlderThan removes memories captured more than days ago together with
// their files. Rows go in batches, one transaction each; files of a batch are
// removed only after it commits. On failure the count already deleted is
// returned with the error and the failed batch is left intact.
func (s *Store) DeleteOlderThan(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, storageErr("delete", fmt.Errorf("days must be >= 0, got %d", days))
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "store.delete_older_than",
		attribute.Int("days", days),
	)
	defer span.End()

	cutoff := Cutoff(time.Now(), days).UTC().UnixNano()
	logger := tracing.LoggerFromContext(ctx, s.logger)

	deleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return deleted, storageErr("delete", err)
		}

		n, err := s.deleteBatch(ctx, "captured_at < ?", cutoff)
		deleted += n
		if err != nil {
			tracing.Fail(span, err, "delete failed")
			observability.RecordRetention(deleted)
			return deleted, storageErr("delete", err)
		}
		if n < DeleteBatchSize {
			break
		}
	}

	observability.RecordRetention(deleted)
	span.SetAttributes(attribute.Int("deleted", deleted))
	logger.Info().Int("days", days).Int("deleted", deleted).Msg("Retention sweep finished")
	return deleted, nil
}

type blobRefs struct {
	id        string
	image     string
	thumbnail *string
}

// deleteBatch removes up to DeleteBatchSize rows matching cond in one
// transaction and then their files.
func (s *Store) deleteBatch(ctx context.Context, cond string, args ...any) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id, image_path, thumbnail_path FROM memories WHERE "+cond+" ORDER BY captured_at, id LIMIT ?",
		append(args, DeleteBatchSize)...,
	)
	if err != nil {
		return 0, err
	}
	var refs []blobRefs
	for rows.Next() {
		var r blobRefs
		if err := rows.Scan(&r.id, &r.image, &r.thumbnail); err != nil {
			rows.Close()
			return 0, err
		}
		refs = append(refs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(refs)), ",")
	ids := make([]any, len(refs))
	for i, r := range refs {
		ids[i] = r.id
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM memories WHERE id IN ("+placeholders+")", ids...); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.cache.invalidate()

	for _, r := range refs {
		files := []string{r.image}
		if r.thumbnail != nil {
			files = append(files, *r.thumbnail)
		}
		if err := removeBlobs(s.dataDir, files...); err != nil {
			s.logger.Warn().Err(err).Str("id", r.id).Msg("Failed to remove memory files")
		}
	}

	return len(refs), nil
}

// forgetImage deletes the row whose image file is rel. It is used when the
// file vanished from disk behind the store's back.
func (s *Store) forgetImage(ctx context.Context, rel string) (int, error) {
	if rel == "" {
		return 0, nil
	}
	return s.deleteBatch(ctx, "image_path = ?", rel)
}

// Reconcile removes rows whose image file no longer exists.
func (s *Store) Reconcile(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT image_path FROM memories WHERE image_path != ''")
	if err != nil {
		return 0, storageErr("reconcile", err)
	}
	var missing []string
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			rows.Close()
			return 0, storageErr("reconcile", err)
		}
		if _, err := os.Stat(filepath.Join(s.dataDir, rel)); errors.Is(err, os.ErrNotExist) {
			missing = append(missing, rel)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, storageErr("reconcile", err)
	}

	removed := 0
	for _, rel := range missing {
		n, err := s.forgetImage(ctx, rel)
		removed += n
		if err != nil {
			return removed, storageErr("reconcile", err)
		}
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Removed memories with missing images")
	}
	return removed, nil
}
