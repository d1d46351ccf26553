// Package enrich rewrites agent citation references from positional article
// indices into stable identifiers plus display metadata.
package enrich

import (
	"strconv"

	"github.com/fedpulse/fedpulse/internal/analysis"
	"github.com/fedpulse/fedpulse/models"
)

// Enricher resolves index references against the formatter's metadata list.
type Enricher struct {
	meta []models.ArticleMeta
}

// New builds an Enricher over the per-index metadata produced alongside the
// agent payload.
func New(meta []models.ArticleMeta) *Enricher {
	return &Enricher{meta: meta}
}

// resolve rewrites a single citation source in place. A reference that does
// not parse as an in-range index is passed through untouched: the agent may
// emit a malformed or out-of-range index, and persistence must still succeed
// with the denormalized-but-unlinked record. Returns whether the source is
// now resolved. Already-enriched sources are left alone (a real identifier
// never parses as a small integer), which makes enrichment idempotent.
func (e *Enricher) resolve(src *analysis.SourceCitation) bool {
	if src.Resolved {
		return true
	}
	idx, err := strconv.Atoi(src.ArticleUUID)
	if err != nil || idx < 0 || idx >= len(e.meta) {
		return false
	}
	m := e.meta[idx]
	src.ArticleUUID = m.ID
	src.ArticleSource = m.Source
	src.ArticleTitle = m.Title
	src.ArticleURL = m.URL
	src.Resolved = true
	return true
}

func (e *Enricher) resolveAll(sources []analysis.SourceCitation) (unresolved int) {
	for i := range sources {
		if !e.resolve(&sources[i]) {
			unresolved++
		}
	}
	return unresolved
}

// Narrative enriches every citation source in a narrative result. Returns the
// number of references left unresolved.
func (e *Enricher) Narrative(n *analysis.Narrative) int {
	unresolved := 0
	for i := range n.Citations {
		unresolved += e.resolveAll(n.Citations[i].Sources)
	}
	return unresolved
}

// Topics enriches every citation source in a topic collection: metric
// citations, expert citations and the executive summary's citations for each
// topic. Every citation-bearing node is visited exactly once.
func (e *Enricher) Topics(tc analysis.TopicCollection) int {
	unresolved := 0
	for name, topic := range tc {
		for i := range topic.KeyMetrics {
			unresolved += e.resolveAll(topic.KeyMetrics[i].Citations)
		}
		for i := range topic.ExpertAnalyses {
			unresolved += e.resolveAll(topic.ExpertAnalyses[i].Citations)
		}
		unresolved += e.Narrative(&topic.ExecutiveSummary)
		tc[name] = topic
	}
	return unresolved
}
