package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/fedpulse/fedpulse/internal/analysis"
	"github.com/fedpulse/fedpulse/models"
)

func testNarrative() analysis.Narrative {
	return analysis.Narrative{
		SummaryText: "The Fed held rates steady.",
		Citations: []analysis.Citation{
			{
				SummarySentence: "The Fed held rates steady.",
				Sources: []analysis.SourceCitation{
					{Sentence: "quote one", ArticleUUID: "uuid-a", ArticleSource: "Reuters", Resolved: true},
					{Sentence: "quote two", ArticleUUID: "uuid-b", ArticleSource: "Bloomberg", Resolved: true},
				},
			},
			{
				SummarySentence: "Markets expected the decision.",
				Sources: []analysis.SourceCitation{
					{Sentence: "quote three", ArticleUUID: "7"},
				},
			},
		},
	}
}

func TestSaveTopicCollectionWritesWholeGraph(t *testing.T) {
	st, mock := newMockStore(t)

	run := TopicGroupRun{
		Collection: analysis.TopicCollection{
			"Inflation & Price Stability": {
				KeyMetrics: []analysis.Metric{{
					Name:      "CPI",
					Value:     2.6,
					Sentiment: models.SentimentNeutral,
					Citations: []analysis.SourceCitation{{Sentence: "m", ArticleUUID: "uuid-a", Resolved: true}},
				}},
				ExpertAnalyses: []analysis.Expert{{
					Name:      "Jane Doe",
					Sentiment: models.SentimentDovish,
					Citations: []analysis.SourceCitation{{Sentence: "e", ArticleUUID: "uuid-b", Resolved: true}},
				}},
				ExecutiveSummary: analysis.Narrative{
					SummaryText: "Inflation is easing.",
					Citations: []analysis.Citation{{
						SummarySentence: "Inflation is easing.",
						Sources: []analysis.SourceCitation{
							{Sentence: "q1", ArticleUUID: "uuid-a", Resolved: true},
							{Sentence: "q2", ArticleUUID: "9"},
						},
					}},
				},
				Sentiment: models.SentimentNeutral,
			},
		},
		Articles:  []models.Article{{UUID: "uuid-a"}},
		AgentName: "scheduler",
		Context:   models.ContextGeneral,
		CreatedAt: time.Date(2025, 12, 19, 8, 0, 0, 0, time.UTC),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO topic_groups").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("INSERT INTO topic_group_articles").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO topic_analyses").
		WithArgs(int64(1), "Inflation & Price Stability", models.SentimentNeutral, "Inflation is easing.").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	// Metric and its wrapped citation.
	mock.ExpectQuery("INSERT INTO topic_metrics").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery("INSERT INTO topic_citations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectExec("INSERT INTO topic_citation_sources").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Expert and its wrapped citation.
	mock.ExpectQuery("INSERT INTO topic_experts").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectQuery("INSERT INTO topic_citations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(6)))
	mock.ExpectExec("INSERT INTO topic_citation_sources").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Executive summary citation with both sources.
	mock.ExpectQuery("INSERT INTO topic_citations").
		WithArgs(int64(2), "Inflation is easing.", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT INTO topic_citation_sources").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO topic_citation_sources").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	id, err := st.SaveTopicCollection(context.Background(), run)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a run identifier")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveTopicCollectionRollsBackOnError(t *testing.T) {
	st, mock := newMockStore(t)

	run := TopicGroupRun{
		Collection: analysis.TopicCollection{
			"Economic Growth & GDP": {
				ExecutiveSummary: analysis.Narrative{SummaryText: "GDP grew."},
				Sentiment:        models.SentimentNeutral,
			},
		},
		AgentName: "scheduler",
		Context:   models.ContextGeneral,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO topic_groups").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO topic_analyses").
		WillReturnError(errConstraint{})
	mock.ExpectRollback()

	if _, err := st.SaveTopicCollection(context.Background(), run); err == nil {
		t.Fatalf("expected save to fail")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
