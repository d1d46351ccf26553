package models

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Analysis context tags. Critical-mode runs carry pre/post depending on
// whether the run fired before or after the announcement.
const (
	ContextGeneral          = "general"
	ContextPreAnnouncement  = "pre_announcement"
	ContextPostAnnouncement = "post_announcement"
)

// Sentiment classifications used by topic analyses, metrics and experts.
const (
	SentimentHawkish = "hawkish"
	SentimentDovish  = "dovish"
	SentimentNeutral = "neutral"
)

// Article is a stored news article. Created or updated by ingestion (upsert
// keyed on URI); read-only to the orchestration core afterwards.
type Article struct {
	UUID        string          `json:"uuid"`
	URI         string          `json:"uri"`
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Lang        string          `json:"lang"`
	DataType    string          `json:"data_type"`
	SourceTitle string          `json:"source"`
	Sentiment   float64         `json:"sentiment"`
	Relevance   int             `json:"relevance"`
	Image       string          `json:"image"`
	PublishedAt time.Time       `json:"published_at"`
	Authors     json.RawMessage `json:"authors,omitempty"`
	Concepts    json.RawMessage `json:"concepts,omitempty"`
	Categories  json.RawMessage `json:"categories,omitempty"`
	Raw         json.RawMessage `json:"-"` // full-fidelity backup of the ingested record
}

// RawSource is the nested source block on a RawArticle.
type RawSource struct {
	URI      string `json:"uri"`
	Title    string `json:"title"`
	DataType string `json:"dataType"`
	Image    string `json:"image"`
}

// RawArticle mirrors one result record from the Event Registry API.
type RawArticle struct {
	URI         string          `json:"uri"`
	URL         string          `json:"url"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	Lang        string          `json:"lang"`
	DataType    string          `json:"dataType"`
	Source      RawSource       `json:"source"`
	Sentiment   float64         `json:"sentiment"`
	Relevance   int             `json:"relevance"`
	Image       string          `json:"image"`
	DateTimePub time.Time       `json:"dateTimePub"`
	Authors     json.RawMessage `json:"authors,omitempty"`
	Concepts    json.RawMessage `json:"concepts,omitempty"`
	Categories  json.RawMessage `json:"categories,omitempty"`
}

// ArticleMeta is the per-index metadata record produced by the formatter and
// consumed by citation enrichment. Index i in the prompt payload and in the
// metadata list always refer to the same article.
type ArticleMeta struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}
