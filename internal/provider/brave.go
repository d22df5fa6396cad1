package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const braveBaseURL = "https://api.search.brave.com"

// Brave searches recent news through the Brave Search API. It is the
// last-resort source for ticker news and the primary one for free-text
// topics, where the finance-specific upstreams have nothing to offer.
type Brave struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
}

func NewBrave(apiKey string, tracer trace.Tracer) *Brave {
	return &Brave{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: braveBaseURL,
		apiKey:  apiKey,
		tracer:  tracer,
	}
}

func (p *Brave) Name() string { return "brave" }

// News searches fresh (past day) news for a query.
func (p *Brave) News(ctx context.Context, query string, count int) ([]domain.NewsItem, error) {
	ctx, span := p.tracer.Start(ctx, "brave.news", trace.WithAttributes(attribute.String("query", query)))
	defer span.End()

	if count <= 0 {
		count = 5
	}
	params := url.Values{}
	params.Set("q", "latest news on "+query)
	params.Set("count", strconv.Itoa(count))
	params.Set("freshness", "pd")
	u := strings.TrimRight(p.baseURL, "/") + "/res/v1/news/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: brave news: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: brave API error %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var payload struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			PageAge     string `json:"page_age"`
			MetaURL     struct {
				Hostname string `json:"hostname"`
			} `json:"meta_url"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: brave news: %v", domain.ErrMalformedPayload, err)
	}

	items := make([]domain.NewsItem, 0, len(payload.Results))
	for _, row := range payload.Results {
		title := cleanNews(row.Title, 300)
		if title == "" {
			continue
		}
		items = append(items, domain.NewsItem{
			Title:       title,
			Summary:     cleanNews(row.Description, 420),
			URL:         sanitizeText(row.URL, 500),
			Source:      sanitizeText(row.MetaURL.Hostname, 120),
			PublishedAt: parseNewsTime(row.PageAge),
		})
	}
	return items, nil
}

// Fetch dispatches one (entity, kind) request; Brave only serves news.
func (p *Brave) Fetch(ctx context.Context, entity string, kind domain.Kind) (json.RawMessage, error) {
	if kind != domain.KindNews {
		return nil, fmt.Errorf("%w: brave does not serve %s", domain.ErrProviderUnavailable, kind)
	}
	items, err := p.News(ctx, entity, 5)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: brave: no news for %s", domain.ErrProviderUnavailable, entity)
	}
	return json.Marshal(items)
}
