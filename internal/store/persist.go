package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fedpulse/fedpulse/internal/analysis"
	"github.com/fedpulse/fedpulse/models"
)

// NarrativeRun is everything needed to persist one completed sequential run.
type NarrativeRun struct {
	Result         analysis.Narrative
	Articles       []models.Article
	DateRangeStart time.Time
	DateRangeEnd   time.Time
	AgentName      string
	Context        string
	AnnouncementAt *time.Time
	CreatedAt      time.Time
}

// TopicGroupRun is everything needed to persist one completed parallel run.
type TopicGroupRun struct {
	Collection     analysis.TopicCollection
	Articles       []models.Article
	AgentName      string
	Context        string
	AnnouncementAt *time.Time
	CreatedAt      time.Time
}

// SaveNarrative writes the narrative run as one atomic unit: root record,
// provided-article links, then citations in input order, each with its
// sources. A source whose article reference does not resolve is still stored
// with its denormalized snapshot and a null article link. Any failure rolls
// the whole unit back.
func (s *Store) SaveNarrative(ctx context.Context, run NarrativeRun) (string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	runUUID := uuid.NewString()
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var narrativeID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO narratives (uuid, summary_text, article_count, date_range_start, date_range_end, agent_name, context, announcement_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`, runUUID, run.Result.SummaryText, len(run.Articles), nullableTime(&run.DateRangeStart), nullableTime(&run.DateRangeEnd),
		run.AgentName, run.Context, nullableTime(run.AnnouncementAt), createdAt.UTC()).Scan(&narrativeID)
	if err != nil {
		return "", fmt.Errorf("insert narrative: %w", err)
	}

	if err = linkArticles(ctx, tx, "narrative_articles", "narrative_id", narrativeID, run.Articles); err != nil {
		return "", err
	}

	for i, citation := range run.Result.Citations {
		var citationID int64
		err = tx.QueryRowContext(ctx, `
INSERT INTO citations (narrative_id, summary_sentence, order_idx)
VALUES ($1,$2,$3)
RETURNING id
`, narrativeID, citation.SummarySentence, i).Scan(&citationID)
		if err != nil {
			return "", fmt.Errorf("insert citation %d: %w", i, err)
		}
		for j, src := range citation.Sources {
			if err = insertCitationSource(ctx, tx, "citation_sources", "citation_id", citationID, src); err != nil {
				return "", fmt.Errorf("citation %d source %d: %w", i, j, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return runUUID, nil
}

// SaveTopicCollection writes a parallel run's whole topic graph atomically:
// group root, provided articles, then per topic its analysis row, metrics and
// experts with their citations, and the topic summary's citation set.
func (s *Store) SaveTopicCollection(ctx context.Context, run TopicGroupRun) (string, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	groupUUID := uuid.NewString()
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var groupID int64
	err = tx.QueryRowContext(ctx, `
INSERT INTO topic_groups (uuid, agent_name, context, announcement_at, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, groupUUID, run.AgentName, run.Context, nullableTime(run.AnnouncementAt), createdAt.UTC()).Scan(&groupID)
	if err != nil {
		return "", fmt.Errorf("insert topic group: %w", err)
	}

	if err = linkArticles(ctx, tx, "topic_group_articles", "group_id", groupID, run.Articles); err != nil {
		return "", err
	}

	// Deterministic topic order regardless of map iteration.
	names := make([]string, 0, len(run.Collection))
	for name := range run.Collection {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		topic := run.Collection[name]
		var topicID int64
		err = tx.QueryRowContext(ctx, `
INSERT INTO topic_analyses (group_id, topic_name, sentiment, summary_text)
VALUES ($1,$2,$3,$4)
RETURNING id
`, groupID, name, topic.Sentiment, topic.ExecutiveSummary.SummaryText).Scan(&topicID)
		if err != nil {
			return "", fmt.Errorf("insert topic %s: %w", name, err)
		}

		for _, metric := range topic.KeyMetrics {
			var metricID int64
			err = tx.QueryRowContext(ctx, `
INSERT INTO topic_metrics (topic_id, name, value, period, discussion, sentiment)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id
`, topicID, metric.Name, fmt.Sprintf("%g", metric.Value), metric.Period, metric.Discussion, metric.Sentiment).Scan(&metricID)
			if err != nil {
				return "", fmt.Errorf("topic %s metric %s: %w", name, metric.Name, err)
			}
			label := fmt.Sprintf("Source for metric %s", metric.Name)
			if err = insertSourceCitations(ctx, tx, "metric_id", metricID, label, metric.Citations); err != nil {
				return "", fmt.Errorf("topic %s metric %s: %w", name, metric.Name, err)
			}
		}

		for _, expert := range topic.ExpertAnalyses {
			var expertID int64
			err = tx.QueryRowContext(ctx, `
INSERT INTO topic_experts (topic_id, expert_name, organization, opinion, sentiment)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, topicID, expert.Name, expert.Organization, expert.Opinion, expert.Sentiment).Scan(&expertID)
			if err != nil {
				return "", fmt.Errorf("topic %s expert %s: %w", name, expert.Name, err)
			}
			label := fmt.Sprintf("Source for expert %s", expert.Name)
			if err = insertSourceCitations(ctx, tx, "expert_id", expertID, label, expert.Citations); err != nil {
				return "", fmt.Errorf("topic %s expert %s: %w", name, expert.Name, err)
			}
		}

		for i, citation := range topic.ExecutiveSummary.Citations {
			var citationID int64
			err = tx.QueryRowContext(ctx, `
INSERT INTO topic_citations (topic_id, summary_sentence, order_idx)
VALUES ($1,$2,$3)
RETURNING id
`, topicID, citation.SummarySentence, i).Scan(&citationID)
			if err != nil {
				return "", fmt.Errorf("topic %s summary citation %d: %w", name, i, err)
			}
			for j, src := range citation.Sources {
				if err = insertCitationSource(ctx, tx, "topic_citation_sources", "topic_citation_id", citationID, src); err != nil {
					return "", fmt.Errorf("topic %s summary citation %d source %d: %w", name, i, j, err)
				}
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return groupUUID, nil
}

// txLike covers *sql.Tx for the shared insert helpers.
type txLike interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func linkArticles(ctx context.Context, tx txLike, table, column string, parentID int64, articles []models.Article) error {
	query := fmt.Sprintf(`INSERT INTO %s (%s, article_id) SELECT $1, id FROM articles WHERE uuid::text = $2`, table, column)
	for _, a := range articles {
		if _, err := tx.ExecContext(ctx, query, parentID, a.UUID); err != nil {
			return fmt.Errorf("link article %s: %w", a.UUID, err)
		}
	}
	return nil
}

// insertCitationSource stores one citation source. The live article link is
// resolved by uuid at write time; a miss leaves it null while the snapshot
// columns always carry the denormalized identity.
func insertCitationSource(ctx context.Context, tx txLike, table, column string, parentID int64, src analysis.SourceCitation) error {
	query := fmt.Sprintf(`
INSERT INTO %s (%s, article_id, sentence, expert_name, article_uuid, article_source, article_title, article_url)
VALUES ($1, (SELECT id FROM articles WHERE uuid::text = $2), $3, $4, $5, $6, $7, $8)
`, table, column)
	_, err := tx.ExecContext(ctx, query, parentID, src.ArticleUUID, src.Sentence,
		nullableString(src.ExpertName), src.ArticleUUID, nullableString(src.ArticleSource),
		nullableString(src.ArticleTitle), nullableString(src.ArticleURL))
	return err
}

// insertSourceCitations wraps a bare source list (metric/expert citations)
// into one ordered topic_citation row per source.
func insertSourceCitations(ctx context.Context, tx txLike, column string, parentID int64, label string, sources []analysis.SourceCitation) error {
	for i, src := range sources {
		query := fmt.Sprintf(`
INSERT INTO topic_citations (%s, summary_sentence, order_idx)
VALUES ($1,$2,$3)
RETURNING id
`, column)
		var citationID int64
		if err := tx.QueryRowContext(ctx, query, parentID, label, i).Scan(&citationID); err != nil {
			return fmt.Errorf("citation %d: %w", i, err)
		}
		if err := insertCitationSource(ctx, tx, "topic_citation_sources", "topic_citation_id", citationID, src); err != nil {
			return fmt.Errorf("citation %d source: %w", i, err)
		}
	}
	return nil
}
