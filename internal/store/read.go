package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fedpulse/fedpulse/models"
)

// CitationSourceRecord is one stored citation source. ArticleUUID is the
// denormalized snapshot; LiveArticleUUID is set only when the live article
// link resolved at write time.
type CitationSourceRecord struct {
	Sentence        string `json:"sentence"`
	ExpertName      string `json:"expert_name,omitempty"`
	ArticleUUID     string `json:"article_uuid"`
	ArticleSource   string `json:"article_source,omitempty"`
	ArticleTitle    string `json:"article_title,omitempty"`
	ArticleURL      string `json:"article_url,omitempty"`
	LiveArticleUUID string `json:"live_article_uuid,omitempty"`
}

// CitationRecord is one stored citation with its sources in original order.
type CitationRecord struct {
	ID              int64                  `json:"-"`
	SummarySentence string                 `json:"summary_sentence"`
	Order           int                    `json:"order"`
	Sources         []CitationSourceRecord `json:"sources"`
}

// NarrativeRecord is a stored narrative run with citations eagerly loaded.
type NarrativeRecord struct {
	UUID           string           `json:"uuid"`
	SummaryText    string           `json:"summary_text"`
	ArticleCount   int              `json:"article_count"`
	AgentName      string           `json:"agent_name"`
	Context        string           `json:"context"`
	AnnouncementAt *time.Time       `json:"announcement_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	Citations      []CitationRecord `json:"citations"`
}

// MetricRecord is a stored topic metric with its citations.
type MetricRecord struct {
	Name       string           `json:"name"`
	Value      string           `json:"value"`
	Period     string           `json:"period"`
	Discussion string           `json:"discussion"`
	Sentiment  string           `json:"sentiment"`
	Citations  []CitationRecord `json:"citations"`
}

// ExpertRecord is a stored expert opinion with its citations.
type ExpertRecord struct {
	Name         string           `json:"name"`
	Organization string           `json:"organization"`
	Opinion      string           `json:"opinion"`
	Sentiment    string           `json:"sentiment"`
	Citations    []CitationRecord `json:"citations"`
}

// TopicRecord is one stored topic analysis with its full citation graph.
type TopicRecord struct {
	TopicName        string           `json:"topic_name"`
	Sentiment        string           `json:"sentiment"`
	SummaryText      string           `json:"summary_text"`
	Metrics          []MetricRecord   `json:"metrics"`
	Experts          []ExpertRecord   `json:"experts"`
	SummaryCitations []CitationRecord `json:"summary_citations"`
}

// TopicGroupRecord is a stored parallel run with all topics eagerly loaded.
type TopicGroupRecord struct {
	UUID           string        `json:"uuid"`
	AgentName      string        `json:"agent_name"`
	Context        string        `json:"context"`
	AnnouncementAt *time.Time    `json:"announcement_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	Topics         []TopicRecord `json:"topics"`
}

// LatestNarrative returns the most recent narrative run.
func (s *Store) LatestNarrative(ctx context.Context) (NarrativeRecord, error) {
	return s.narrativeBy(ctx, `ORDER BY created_at DESC LIMIT 1`)
}

// NarrativeByUUID returns one narrative run by stable id.
func (s *Store) NarrativeByUUID(ctx context.Context, id string) (NarrativeRecord, error) {
	return s.narrativeBy(ctx, `WHERE uuid::text = $1`, id)
}

func (s *Store) narrativeBy(ctx context.Context, clause string, args ...interface{}) (NarrativeRecord, error) {
	var rec NarrativeRecord
	var narrativeID int64
	var announcement sql.NullTime
	query := `
SELECT id, uuid, summary_text, article_count, agent_name, context, announcement_at, created_at
FROM narratives
` + clause
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&narrativeID, &rec.UUID, &rec.SummaryText,
		&rec.ArticleCount, &rec.AgentName, &rec.Context, &announcement, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return NarrativeRecord{}, models.ErrNotFound
	}
	if err != nil {
		return NarrativeRecord{}, fmt.Errorf("load narrative: %w", err)
	}
	if announcement.Valid {
		ts := announcement.Time
		rec.AnnouncementAt = &ts
	}

	rec.Citations, err = s.loadCitations(ctx, `
SELECT c.id, c.summary_sentence, c.order_idx
FROM citations c
WHERE c.narrative_id = $1
ORDER BY c.order_idx
`, `
SELECT cs.sentence, COALESCE(cs.expert_name,''), cs.article_uuid, COALESCE(cs.article_source,''),
       COALESCE(cs.article_title,''), COALESCE(cs.article_url,''), COALESCE(a.uuid::text,'')
FROM citation_sources cs
LEFT JOIN articles a ON a.id = cs.article_id
WHERE cs.citation_id = $1
ORDER BY cs.id
`, narrativeID)
	if err != nil {
		return NarrativeRecord{}, err
	}
	return rec, nil
}

func (s *Store) loadCitations(ctx context.Context, citationQuery, sourceQuery string, parentID int64) ([]CitationRecord, error) {
	rows, err := s.DB.QueryContext(ctx, citationQuery, parentID)
	if err != nil {
		return nil, fmt.Errorf("load citations: %w", err)
	}
	defer rows.Close()

	var citations []CitationRecord
	for rows.Next() {
		var c CitationRecord
		if err := rows.Scan(&c.ID, &c.SummarySentence, &c.Order); err != nil {
			return nil, err
		}
		citations = append(citations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range citations {
		sources, err := s.loadSources(ctx, sourceQuery, citations[i].ID)
		if err != nil {
			return nil, err
		}
		citations[i].Sources = sources
	}
	return citations, nil
}

func (s *Store) loadSources(ctx context.Context, query string, citationID int64) ([]CitationSourceRecord, error) {
	rows, err := s.DB.QueryContext(ctx, query, citationID)
	if err != nil {
		return nil, fmt.Errorf("load citation sources: %w", err)
	}
	defer rows.Close()

	var sources []CitationSourceRecord
	for rows.Next() {
		var src CitationSourceRecord
		if err := rows.Scan(&src.Sentence, &src.ExpertName, &src.ArticleUUID, &src.ArticleSource,
			&src.ArticleTitle, &src.ArticleURL, &src.LiveArticleUUID); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// LatestTopicGroup returns the most recent parallel run.
func (s *Store) LatestTopicGroup(ctx context.Context) (TopicGroupRecord, error) {
	return s.topicGroupBy(ctx, `ORDER BY created_at DESC LIMIT 1`)
}

// TopicGroupByUUID returns one parallel run by stable id.
func (s *Store) TopicGroupByUUID(ctx context.Context, id string) (TopicGroupRecord, error) {
	return s.topicGroupBy(ctx, `WHERE uuid::text = $1`, id)
}

const topicSourceQuery = `
SELECT cs.sentence, COALESCE(cs.expert_name,''), cs.article_uuid, COALESCE(cs.article_source,''),
       COALESCE(cs.article_title,''), COALESCE(cs.article_url,''), COALESCE(a.uuid::text,'')
FROM topic_citation_sources cs
LEFT JOIN articles a ON a.id = cs.article_id
WHERE cs.topic_citation_id = $1
ORDER BY cs.id
`

func (s *Store) topicGroupBy(ctx context.Context, clause string, args ...interface{}) (TopicGroupRecord, error) {
	var rec TopicGroupRecord
	var groupID int64
	var announcement sql.NullTime
	query := `
SELECT id, uuid, agent_name, context, announcement_at, created_at
FROM topic_groups
` + clause
	err := s.DB.QueryRowContext(ctx, query, args...).Scan(&groupID, &rec.UUID, &rec.AgentName,
		&rec.Context, &announcement, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return TopicGroupRecord{}, models.ErrNotFound
	}
	if err != nil {
		return TopicGroupRecord{}, fmt.Errorf("load topic group: %w", err)
	}
	if announcement.Valid {
		ts := announcement.Time
		rec.AnnouncementAt = &ts
	}

	rows, err := s.DB.QueryContext(ctx, `
SELECT id, topic_name, sentiment, summary_text
FROM topic_analyses
WHERE group_id = $1
ORDER BY topic_name
`, groupID)
	if err != nil {
		return TopicGroupRecord{}, fmt.Errorf("load topics: %w", err)
	}
	defer rows.Close()

	type topicRow struct {
		id    int64
		topic TopicRecord
	}
	var topicRows []topicRow
	for rows.Next() {
		var tr topicRow
		if err := rows.Scan(&tr.id, &tr.topic.TopicName, &tr.topic.Sentiment, &tr.topic.SummaryText); err != nil {
			return TopicGroupRecord{}, err
		}
		topicRows = append(topicRows, tr)
	}
	if err := rows.Err(); err != nil {
		return TopicGroupRecord{}, err
	}

	for _, tr := range topicRows {
		topic, err := s.loadTopic(ctx, tr.id, tr.topic)
		if err != nil {
			return TopicGroupRecord{}, err
		}
		rec.Topics = append(rec.Topics, topic)
	}
	return rec, nil
}

func (s *Store) loadTopic(ctx context.Context, topicID int64, topic TopicRecord) (TopicRecord, error) {
	metricRows, err := s.DB.QueryContext(ctx, `
SELECT id, name, value, period, discussion, sentiment
FROM topic_metrics
WHERE topic_id = $1
ORDER BY id
`, topicID)
	if err != nil {
		return TopicRecord{}, fmt.Errorf("load metrics: %w", err)
	}
	defer metricRows.Close()

	type metricRow struct {
		id     int64
		metric MetricRecord
	}
	var metrics []metricRow
	for metricRows.Next() {
		var mr metricRow
		if err := metricRows.Scan(&mr.id, &mr.metric.Name, &mr.metric.Value, &mr.metric.Period,
			&mr.metric.Discussion, &mr.metric.Sentiment); err != nil {
			return TopicRecord{}, err
		}
		metrics = append(metrics, mr)
	}
	if err := metricRows.Err(); err != nil {
		return TopicRecord{}, err
	}
	for _, mr := range metrics {
		mr.metric.Citations, err = s.loadCitations(ctx, `
SELECT id, summary_sentence, order_idx FROM topic_citations WHERE metric_id = $1 ORDER BY order_idx
`, topicSourceQuery, mr.id)
		if err != nil {
			return TopicRecord{}, err
		}
		topic.Metrics = append(topic.Metrics, mr.metric)
	}

	expertRows, err := s.DB.QueryContext(ctx, `
SELECT id, expert_name, organization, opinion, sentiment
FROM topic_experts
WHERE topic_id = $1
ORDER BY id
`, topicID)
	if err != nil {
		return TopicRecord{}, fmt.Errorf("load experts: %w", err)
	}
	defer expertRows.Close()

	type expertRow struct {
		id     int64
		expert ExpertRecord
	}
	var experts []expertRow
	for expertRows.Next() {
		var er expertRow
		if err := expertRows.Scan(&er.id, &er.expert.Name, &er.expert.Organization,
			&er.expert.Opinion, &er.expert.Sentiment); err != nil {
			return TopicRecord{}, err
		}
		experts = append(experts, er)
	}
	if err := expertRows.Err(); err != nil {
		return TopicRecord{}, err
	}
	for _, er := range experts {
		er.expert.Citations, err = s.loadCitations(ctx, `
SELECT id, summary_sentence, order_idx FROM topic_citations WHERE expert_id = $1 ORDER BY order_idx
`, topicSourceQuery, er.id)
		if err != nil {
			return TopicRecord{}, err
		}
		topic.Experts = append(topic.Experts, er.expert)
	}

	topic.SummaryCitations, err = s.loadCitations(ctx, `
SELECT id, summary_sentence, order_idx FROM topic_citations WHERE topic_id = $1 ORDER BY order_idx
`, topicSourceQuery, topicID)
	if err != nil {
		return TopicRecord{}, err
	}
	return topic, nil
}
