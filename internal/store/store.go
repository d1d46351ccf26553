// Package store is the Postgres persistence layer: article ingestion,
// atomic analysis-run writes and the read surface for presentation layers.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/fedpulse/fedpulse/config"
	"github.com/fedpulse/fedpulse/models"
)

const nextRunKey = "next_scheduled_run"

type Store struct {
	DB *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db}, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func jsonBackup(raw models.RawArticle) ([]byte, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal raw article backup: %w", err)
	}
	return b, nil
}

// UpsertArticle stores one raw article keyed by its URI, creating the source
// row on first sight. Returns whether a new article row was created.
func (s *Store) UpsertArticle(ctx context.Context, raw models.RawArticle) (bool, error) {
	if raw.URI == "" {
		return false, fmt.Errorf("article uri required")
	}

	var sourceID interface{}
	if raw.Source.URI != "" {
		var id int64
		err := s.DB.QueryRowContext(ctx, `
INSERT INTO sources (uri, title, data_type, image)
VALUES ($1,$2,$3,$4)
ON CONFLICT (uri) DO UPDATE SET title = COALESCE(EXCLUDED.title, sources.title)
RETURNING id
`, raw.Source.URI, nullableString(raw.Source.Title), nullableString(raw.Source.DataType), nullableString(raw.Source.Image)).Scan(&id)
		if err != nil {
			return false, fmt.Errorf("upsert source %s: %w", raw.Source.URI, err)
		}
		sourceID = id
	}

	rawJSON, err := jsonBackup(raw)
	if err != nil {
		return false, err
	}

	var created bool
	err = s.DB.QueryRowContext(ctx, `
INSERT INTO articles (uri, url, title, body, lang, data_type, source_id, sentiment, relevance, image, published_at, authors, concepts, categories, raw)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (uri) DO UPDATE SET
  url = EXCLUDED.url,
  title = EXCLUDED.title,
  body = EXCLUDED.body,
  lang = EXCLUDED.lang,
  data_type = EXCLUDED.data_type,
  source_id = COALESCE(EXCLUDED.source_id, articles.source_id),
  sentiment = EXCLUDED.sentiment,
  relevance = EXCLUDED.relevance,
  image = EXCLUDED.image,
  published_at = EXCLUDED.published_at,
  authors = EXCLUDED.authors,
  concepts = EXCLUDED.concepts,
  categories = EXCLUDED.categories,
  raw = EXCLUDED.raw,
  updated_at = NOW()
RETURNING (xmax = 0)
`, raw.URI, nullableString(raw.URL), nullableString(raw.Title), nullableString(raw.Body),
		nullableString(raw.Lang), nullableString(raw.DataType), sourceID, raw.Sentiment, raw.Relevance,
		nullableString(raw.Image), nullableTime(&raw.DateTimePub), nullableJSON(raw.Authors),
		nullableJSON(raw.Concepts), nullableJSON(raw.Categories), rawJSON).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert article %s: %w", raw.URI, err)
	}
	return created, nil
}

// QueryArticles returns English articles published inside [start, end],
// newest first, optionally restricted to trusted source titles and capped at
// limit (0 = no cap).
func (s *Store) QueryArticles(ctx context.Context, start, end time.Time, trusted []string, limit int) ([]models.Article, error) {
	query := `
SELECT a.uuid, a.uri, COALESCE(a.url,''), COALESCE(a.title,''), COALESCE(a.body,''), COALESCE(a.lang,''),
       COALESCE(a.data_type,''), COALESCE(s.title,''), COALESCE(a.sentiment,0), COALESCE(a.relevance,0),
       COALESCE(a.image,''), a.published_at
FROM articles a
LEFT JOIN sources s ON s.id = a.source_id
WHERE a.lang = 'eng' AND a.published_at BETWEEN $1 AND $2
`
	args := []interface{}{start.UTC(), end.UTC()}
	if len(trusted) > 0 {
		query += fmt.Sprintf(" AND s.title = ANY($%d)", len(args)+1)
		args = append(args, pq.Array(trusted))
	}
	query += " ORDER BY a.published_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []models.Article
	for rows.Next() {
		var a models.Article
		var published sql.NullTime
		if err := rows.Scan(&a.UUID, &a.URI, &a.URL, &a.Title, &a.Body, &a.Lang,
			&a.DataType, &a.SourceTitle, &a.Sentiment, &a.Relevance, &a.Image, &published); err != nil {
			return nil, err
		}
		if published.Valid {
			a.PublishedAt = published.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetNextRunTime publishes the next expected scheduler run for presentation
// layers. The scheduler is the only writer.
func (s *Store) SetNextRunTime(ctx context.Context, t time.Time) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO system_metadata (key, value, updated_at)
VALUES ($1,$2,NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
`, nextRunKey, t.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set next run time: %w", err)
	}
	return nil
}

// GetNextRunTime reads the published next run time, if any.
func (s *Store) GetNextRunTime(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM system_metadata WHERE key=$1`, nextRunKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse next run time %q: %w", value, err)
	}
	return t, true, nil
}
