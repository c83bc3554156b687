package store

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/cases"

	"github.com/harun/alexandria/internal/observability"
	"github.com/harun/alexandria/internal/tracing"
)

// trigramMin is the shortest term the trigram index can answer.
const trigramMin = 3

// Search returns memories matching q, newest first. Memories without
// extracted text never match a text query.
func (s *Store) Search(ctx context.Context, q Query, limit int) ([]Memory, error) {
	limit = clampLimit(limit)

	ctx, span := tracing.StartSpan(ctx, tracerName, "store.search",
		attribute.Int("terms", len(q.terms())),
		attribute.Int("tags", len(q.Tags)),
		attribute.Int("limit", limit),
	)
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordStoreSearch(time.Since(start)) }()

	key := s.cache.key(q, limit)
	if cached, ok := s.cache.get(key); ok {
		observability.RecordSearchCache(true)
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached, nil
	}
	observability.RecordSearchCache(false)

	query, args := buildSearch(q, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		tracing.Fail(span, err, "search failed")
		return nil, storageErr("search", err)
	}
	defer rows.Close()

	results := []Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, storageErr("search", err)
		}
		results = append(results, *m)
	}
	if err := rows.Err(); err != nil {
		tracing.Fail(span, err, "search failed")
		return nil, storageErr("search", err)
	}

	s.cache.set(key, results)

	log := tracing.LoggerFromContext(ctx, s.logger)
	log.Debug().
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Search completed")

	return results, nil
}

func buildSearch(q Query, limit int) (string, []any) {
	var (
		where []string
		args  []any
	)

	terms := q.terms()
	if len(terms) > 0 {
		where = append(where, "m.extracted_text IS NOT NULL")

		var phrases []string
		for _, term := range terms {
			if utf8.RuneCountInString(term) >= trigramMin {
				phrases = append(phrases, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
				continue
			}
			where = append(where, `m.search_text LIKE ? ESCAPE '\'`)
			args = append(args, "%"+escapeLike(cases.Fold().String(term))+"%")
		}
		if len(phrases) > 0 {
			where = append(where, "m.seq IN (SELECT rowid FROM memories_fts WHERE memories_fts MATCH ?)")
			args = append(args, strings.Join(phrases, " AND "))
		}
	}

	if q.AppID != "" {
		where = append(where, "m.application_id = ? COLLATE NOCASE")
		args = append(args, q.AppID)
	}
	if !q.From.IsZero() {
		where = append(where, "m.captured_at >= ?")
		args = append(args, q.From.UTC().UnixNano())
	}
	if !q.To.IsZero() {
		where = append(where, "m.captured_at <= ?")
		args = append(args, q.To.UTC().UnixNano())
	}

	if tags := normalizeTags(q.Tags); len(tags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
		where = append(where, "m.id IN (SELECT memory_id FROM memory_tags WHERE tag IN ("+placeholders+") GROUP BY memory_id HAVING COUNT(*) = ?)")
		for _, t := range tags {
			args = append(args, t)
		}
		args = append(args, len(tags))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(memoryColumns)
	b.WriteString(" FROM memories m")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY m.captured_at DESC, m.id DESC LIMIT ?")
	args = append(args, limit)

	return b.String(), args
}

// escapeLike escapes LIKE wildcards using backslash.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Stats returns aggregate counts over the store.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		st             Stats
		oldest, newest *int64
		bytes          int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*), MIN(captured_at), MAX(captured_at),
  COALESCE(SUM(image_bytes + thumbnail_bytes), 0),
  COALESCE(SUM(extracted_text IS NOT NULL), 0),
  COALESCE(SUM(sensitive), 0)
FROM memories`).Scan(&st.Count, &oldest, &newest, &bytes, &st.WithText, &st.Sensitive)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}

	st.TotalBytes = bytes
	if oldest != nil {
		t := time.Unix(0, *oldest).UTC()
		st.Oldest = &t
	}
	if newest != nil {
		t := time.Unix(0, *newest).UTC()
		st.Newest = &t
	}

	observability.SetStoreTotals(st.Count, st.TotalBytes)
	return st, nil
}
