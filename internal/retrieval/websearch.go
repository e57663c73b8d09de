package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const webSearchDefaultBaseURL = "https://api.search.brave.com/res/v1/web/search"

// WebSearchAdapter searches a neural web-search backend, returning
// highlighted passages in place of an abstract.
type WebSearchAdapter struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

func NewWebSearchAdapter(baseURL, apiKey string) *WebSearchAdapter {
	if baseURL == "" {
		baseURL = webSearchDefaultBaseURL
	}
	return &WebSearchAdapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (a *WebSearchAdapter) Name() string { return "web_search" }

type webSearchHit struct {
	Title     string `json:"title"`
	Highlight string `json:"highlight"`
	URL       string `json:"url"`
	Score     float64 `json:"relevance_score"`
}

type webSearchResponse struct {
	Hits []webSearchHit `json:"hits"`
}

func (a *WebSearchAdapter) Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error) {
	body, err := json.Marshal(map[string]interface{}{"q": query, "count": limit})
	if err != nil {
		return nil, fmt.Errorf("retrieval: marshal web search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retrieval: build web search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("X-Subscription-Token", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: web search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("retrieval: web search returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("retrieval: decode web search response: %w", err)
	}

	out := make([]ArticleRecord, 0, len(parsed.Hits))
	for _, h := range parsed.Hits {
		out = append(out, ArticleRecord{
			Title:   h.Title,
			Snippet: h.Highlight,
			URL:     h.URL,
			Score:   h.Score,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *WebSearchAdapter) Close() error { return nil }
