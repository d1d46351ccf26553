package eventregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fedpulse/fedpulse/config"
	"github.com/fedpulse/fedpulse/models"
)

const (
	conceptFedFundsRate = "http://en.wikipedia.org/wiki/Federal_funds_rate"
	conceptFOMC         = "http://en.wikipedia.org/wiki/Federal_Open_Market_Committee"
)

// Client calls the Event Registry article endpoint.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewClient builds a Client from configuration.
func NewClient(cfg config.EventRegistryConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type response struct {
	Articles struct {
		Results []models.RawArticle `json:"results"`
	} `json:"articles"`
}

// Retrieve fetches articles published between start and end, paginating until
// a page comes back empty or pages are exhausted. The query targets coverage
// of the policy rate and the committee, restricted to the top source-rank
// percentile band, sorted by date.
func (c *Client) Retrieve(ctx context.Context, start, end time.Time, pages, perPage int) ([]models.RawArticle, error) {
	if pages <= 0 {
		pages = 1
	}
	var total []models.RawArticle
	for page := 1; page <= pages; page++ {
		results, err := c.fetchPage(ctx, start, end, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		if len(results) == 0 {
			break
		}
		total = append(total, results...)
	}
	return total, nil
}

func (c *Client) fetchPage(ctx context.Context, start, end time.Time, page, perPage int) ([]models.RawArticle, error) {
	payload := c.buildPayload(start, end, page, perPage)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch articles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("eventregistry error: %s", resp.Status)
	}

	var result response
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Articles.Results, nil
}

func (c *Client) buildPayload(start, end time.Time, page, perPage int) map[string]interface{} {
	query := map[string]interface{}{
		"$query": map[string]interface{}{
			"$and": []interface{}{
				map[string]interface{}{
					"$or": []interface{}{
						map[string]interface{}{"conceptUri": conceptFedFundsRate},
						map[string]interface{}{
							"$and": []interface{}{
								map[string]interface{}{"conceptUri": conceptFOMC},
								map[string]interface{}{"keyword": "US Federal Reserve", "keywordLoc": "body"},
							},
						},
					},
				},
				map[string]interface{}{
					"dateStart": start.Format("2006-01-02"),
					"dateEnd":   end.Format("2006-01-02"),
				},
			},
		},
		"$filter": map[string]interface{}{
			"startSourceRankPercentile": 0,
			"endSourceRankPercentile":   30,
		},
	}

	return map[string]interface{}{
		"action":                    "getArticles",
		"query":                     query,
		"articlesPage":              page,
		"articlesCount":             perPage,
		"resultType":                "articles",
		"articlesSortBy":            "date",
		"includeArticleSocialScore": true,
		"includeArticleConcepts":    true,
		"includeArticleCategories":  true,
		"includeArticleImage":       true,
		"apiKey":                    c.apiKey,
	}
}
