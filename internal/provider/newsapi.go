package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"why-did-it-move/internal/news"
)

const newsAPIBaseURL = "https://newsapi.org/v2"

// NewsAPIProvider fetches raw headlines from the NewsAPI "everything"
// endpoint. Scoring, deduplication, and ranking happen downstream.
type NewsAPIProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
	tracer  trace.Tracer
	limiter *RateLimiter
}

// NewNewsAPIProvider creates a provider rate limited well under the free-tier
// daily quota.
func NewNewsAPIProvider(tracer trace.Tracer, apiKey string) *NewsAPIProvider {
	return &NewsAPIProvider{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: newsAPIBaseURL,
		apiKey:  apiKey,
		tracer:  tracer,
		limiter: NewRateLimiter(10, 6*time.Second),
	}
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// FetchNews returns raw articles matching any of the query terms within
// [from, to]. An empty result is not an error.
func (p *NewsAPIProvider) FetchNews(ctx context.Context, terms []string, from, to time.Time) ([]news.RawItem, error) {
	_, span := p.tracer.Start(ctx, "newsapi.fetch-news")
	defer span.End()

	query := strings.Join(terms, " OR ")
	reqURL := fmt.Sprintf("%s/everything?q=%s&from=%s&to=%s&language=en&sortBy=publishedAt&pageSize=50",
		p.baseURL,
		url.QueryEscape(query),
		from.UTC().Format("2006-01-02"),
		to.UTC().Format("2006-01-02"))

	body, err := p.doRequest(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("fetch news for %q: %w", query, err)
	}

	var raw newsAPIResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse news for %q: %w", query, err)
	}
	if raw.Status != "ok" {
		return nil, fmt.Errorf("newsapi error for %q: %s", query, raw.Message)
	}

	items := make([]news.RawItem, 0, len(raw.Articles))
	for _, a := range raw.Articles {
		items = append(items, news.RawItem{
			Title:       a.Title,
			Source:      a.Source.Name,
			Description: a.Description,
			PublishedAt: a.PublishedAt,
		})
	}
	return items, nil
}

func (p *NewsAPIProvider) doRequest(ctx context.Context, reqURL string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("newsapi error %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
