package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dcampos/wagate/internal/domain"
	"github.com/dcampos/wagate/internal/relay"
)

// SearchClient pages through the publication search API. Each Search call
// fetches one page of records matching the configured query for a given day.
type SearchClient struct {
	client *resty.Client
	url    string
	apiKey string
	query  string
}

func NewSearchClient(endpoint, apiKey, query string, timeout time.Duration) (*SearchClient, error) {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)
	return NewSearchClientWithClient(client, endpoint, apiKey, query)
}

func NewSearchClientWithClient(client *resty.Client, endpoint, apiKey, query string) (*SearchClient, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: resty client is required", domain.ErrValidation)
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("%w: invalid search endpoint %q: %v", domain.ErrValidation, endpoint, err)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidation)
	}

	return &SearchClient{
		client: client,
		url:    endpoint,
		apiKey: apiKey,
		query:  query,
	}, nil
}

type searchRequest struct {
	Query  searchQuery `json:"query"`
	Source []string    `json:"_source"`
	From   int         `json:"from"`
	Size   int         `json:"size"`
}

type searchQuery struct {
	Bool boolQuery `json:"bool"`
}

type boolQuery struct {
	Must []map[string]any `json:"must"`
}

type searchResponse struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

type searchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

// Search returns one page of records published on day, offset by from.
// The day bounds the date range filter to a single calendar day.
func (c *SearchClient) Search(ctx context.Context, day time.Time, from, size int) ([]domain.Record, error) {
	date := day.Format("2006-01-02")
	body := searchRequest{
		Query: searchQuery{
			Bool: boolQuery{
				Must: []map[string]any{
					{"match": map[string]any{"content": c.query}},
					{"range": map[string]any{
						"publicationDate": map[string]any{"gte": date, "lte": date},
					}},
				},
			},
		},
		Source: []string{"content", "publicationDate", "court", "caseNumber"},
		From:   from,
		Size:   size,
	}

	var parsed searchResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-API-Key", c.apiKey).
		SetBody(body).
		SetResult(&parsed).
		Post(c.url)
	if err != nil {
		return nil, &relay.Error{
			Message:   fmt.Sprintf("search request failed: %v", err),
			Transient: true,
			Cause:     err,
		}
	}
	if !resp.IsSuccess() {
		return nil, &relay.Error{
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("search API returned %d", resp.StatusCode()),
			Transient:  resp.StatusCode() == 429 || resp.StatusCode() >= 500,
		}
	}

	records := make([]domain.Record, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		records = append(records, domain.Record{ID: hit.ID, Source: hit.Source})
	}
	return records, nil
}
