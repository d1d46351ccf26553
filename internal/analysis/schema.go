// Package analysis defines the typed result shapes produced by the agent
// pipelines. The agents emit these structures with citation sources addressed
// by article index; enrichment rewrites the indices into stable identifiers
// before persistence.
package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/fedpulse/fedpulse/models"
)

// Topics is the fixed vocabulary for the parallel pipeline: one stage per
// subject area.
var Topics = []string{
	"Real Estate & Housing Market",
	"Labor Market & Unemployment",
	"Inflation & Price Stability",
	"Economic Growth & GDP",
	"Consumer Spending & Retail",
	"Interest Rate & Monetary Policy",
	"Foreign Exchange & Currency Markets",
	"Equity Markets & Stock Performance",
	"Fixed Income & Bond Markets",
}

// SourceCitation backs one cited sentence with a quote from an article.
// ArticleUUID arrives from the agent as a string-encoded article index and is
// rewritten to the real identifier by enrichment; Resolved marks whether the
// rewrite succeeded.
type SourceCitation struct {
	Sentence      string `json:"sentence"`
	ArticleUUID   string `json:"article_uuid"`
	ExpertName    string `json:"expert_name,omitempty"`
	ArticleSource string `json:"article_source,omitempty"`
	ArticleTitle  string `json:"article_title,omitempty"`
	ArticleURL    string `json:"article_url,omitempty"`
	Resolved      bool   `json:"resolved,omitempty"`
}

// Citation ties one summary sentence to its backing sources.
type Citation struct {
	SummarySentence string           `json:"summary_sentence"`
	Sources         []SourceCitation `json:"article_sentence_citations"`
}

// Narrative is the sequential pipeline's result: a summary with
// sentence-level citations.
type Narrative struct {
	SummaryText string     `json:"summary_text"`
	Citations   []Citation `json:"citations"`
}

// Metric is an economic figure extracted for one topic.
type Metric struct {
	Name       string           `json:"metric_name"`
	Value      float64          `json:"value"`
	Period     string           `json:"metric_period"`
	Discussion string           `json:"metric_discussion"`
	Sentiment  string           `json:"sentiment"`
	Citations  []SourceCitation `json:"citations"`
}

// Expert is a named opinion extracted for one topic.
type Expert struct {
	Name         string           `json:"expert_name"`
	Organization string           `json:"expert_organization"`
	Opinion      string           `json:"expert_opinion"`
	Sentiment    string           `json:"sentiment"`
	Citations    []SourceCitation `json:"citations"`
}

// TopicResult is one topic's analysis from the parallel pipeline.
type TopicResult struct {
	KeyMetrics       []Metric  `json:"key_metrics"`
	ExpertAnalyses   []Expert  `json:"expert_analyses"`
	ExecutiveSummary Narrative `json:"executive_summary"`
	Sentiment        string    `json:"sentiment"`
}

// TopicCollection maps topic name to its result. Topics whose stage failed
// are absent.
type TopicCollection map[string]TopicResult

func validSentiment(s string) bool {
	switch s {
	case models.SentimentHawkish, models.SentimentDovish, models.SentimentNeutral:
		return true
	}
	return false
}

// ParseNarrative decodes and validates agent output for the narrative shape.
func ParseNarrative(raw string) (Narrative, error) {
	var n Narrative
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return Narrative{}, fmt.Errorf("decode narrative result: %w", err)
	}
	if n.SummaryText == "" {
		return Narrative{}, fmt.Errorf("narrative result missing summary_text")
	}
	for i, c := range n.Citations {
		if c.SummarySentence == "" {
			return Narrative{}, fmt.Errorf("citation %d missing summary_sentence", i)
		}
	}
	return n, nil
}

// ParseTopicResult decodes and validates agent output for one topic.
func ParseTopicResult(raw string) (TopicResult, error) {
	var t TopicResult
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return TopicResult{}, fmt.Errorf("decode topic result: %w", err)
	}
	if !validSentiment(t.Sentiment) {
		return TopicResult{}, fmt.Errorf("invalid topic sentiment %q", t.Sentiment)
	}
	for _, m := range t.KeyMetrics {
		if !validSentiment(m.Sentiment) {
			return TopicResult{}, fmt.Errorf("invalid sentiment %q on metric %q", m.Sentiment, m.Name)
		}
	}
	for _, e := range t.ExpertAnalyses {
		if !validSentiment(e.Sentiment) {
			return TopicResult{}, fmt.Errorf("invalid sentiment %q on expert %q", e.Sentiment, e.Name)
		}
	}
	if t.ExecutiveSummary.SummaryText == "" {
		return TopicResult{}, fmt.Errorf("topic result missing executive_summary.summary_text")
	}
	return t, nil
}
