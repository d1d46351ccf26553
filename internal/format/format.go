package format

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/fedpulse/fedpulse/models"
)

// PromptArticle is the per-index payload handed to the agents. Articles are
// addressed by their position so the agents never see database identifiers.
type PromptArticle struct {
	Source    string `json:"source"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Published string `json:"published"`
}

// Formatted bridges the stable-id domain and the index domain: Prompt[i] and
// Meta[i] always describe the same article.
type Formatted struct {
	Prompt map[string]PromptArticle
	Meta   []models.ArticleMeta
}

// Format converts stored articles into the index-addressed agent payload plus
// the parallel metadata list used by citation enrichment. An empty input
// yields empty outputs; callers treat that as nothing to analyze.
func Format(articles []models.Article) Formatted {
	f := Formatted{
		Prompt: make(map[string]PromptArticle, len(articles)),
		Meta:   make([]models.ArticleMeta, 0, len(articles)),
	}
	for i, a := range articles {
		source := a.SourceTitle
		if source == "" {
			source = "Unknown"
		}
		published := ""
		if !a.PublishedAt.IsZero() {
			published = a.PublishedAt.Format("2006-01-02 15:04")
		}
		f.Prompt[strconv.Itoa(i)] = PromptArticle{
			Source:    source,
			Title:     a.Title,
			Text:      a.Body,
			Published: published,
		}
		f.Meta = append(f.Meta, models.ArticleMeta{
			ID:     a.UUID,
			Source: source,
			Title:  a.Title,
			URL:    a.URL,
		})
	}
	return f
}

// Empty reports whether there is anything to analyze.
func (f Formatted) Empty() bool {
	return len(f.Meta) == 0
}

// PromptJSON renders the agent input payload.
func (f Formatted) PromptJSON() (string, error) {
	b, err := json.Marshal(f.Prompt)
	if err != nil {
		return "", fmt.Errorf("marshal prompt payload: %w", err)
	}
	return string(b), nil
}
