package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const scholarlyDefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

// ScholarlyAdapter searches a Semantic-Scholar-shaped citation index.
// Unexpected response shapes are downgraded to a warning rather than an
// error.
type ScholarlyAdapter struct {
	client  *http.Client
	baseURL string
	apiKey  string
	log     *slog.Logger
}

func NewScholarlyAdapter(baseURL, apiKey string) *ScholarlyAdapter {
	if baseURL == "" {
		baseURL = scholarlyDefaultBaseURL
	}
	return &ScholarlyAdapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
		log:     slog.With("component", "retrieval.scholarly"),
	}
}

func (a *ScholarlyAdapter) Name() string { return "scholarly" }

type scholarlyPaper struct {
	Title        string   `json:"title"`
	Abstract     string   `json:"abstract"`
	URL          string   `json:"url"`
	ExternalIDs  map[string]string `json:"externalIds"`
	Authors      []struct {
		Name string `json:"name"`
	} `json:"authors"`
	PublicationDate string `json:"publicationDate"`
	CitationCount   int    `json:"citationCount"`
}

type scholarlySearchResponse struct {
	Data []scholarlyPaper `json:"data"`
}

func (a *ScholarlyAdapter) Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", fmt.Sprintf("%d", limit))
	q.Set("fields", "title,abstract,url,externalIds,authors,publicationDate,citationCount")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/paper/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval: build scholarly request: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: scholarly request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("retrieval: scholarly search returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed scholarlySearchResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&parsed); err != nil {
		// Malformed or unexpected JSON shape: a warning, not a stage failure.
		a.log.Warn("unexpected scholarly response shape", "error", err)
		return nil, nil
	}

	out := make([]ArticleRecord, 0, len(parsed.Data))
	for _, p := range parsed.Data {
		authors := make([]string, 0, len(p.Authors))
		for _, au := range p.Authors {
			authors = append(authors, au.Name)
		}
		out = append(out, ArticleRecord{
			Title:           p.Title,
			Snippet:         p.Abstract,
			URL:             p.URL,
			DOI:             p.ExternalIDs["DOI"],
			Authors:         authors,
			PublicationDate: p.PublicationDate,
			CitedByCount:    p.CitationCount,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *ScholarlyAdapter) Close() error { return nil }
