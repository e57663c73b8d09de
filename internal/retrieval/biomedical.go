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

const biomedicalDefaultBaseURL = "https://api.ncbi.nlm.nih.gov/lit/ctxp/v1"

// BiomedicalAdapter searches a PubMed/PMC-shaped biomedical article index.
type BiomedicalAdapter struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewBiomedicalAdapter constructs the adapter. apiKey may be empty for
// public-rate-limited access; construction never fails on a missing key,
// only a missing/invalid baseURL would, and baseURL always falls back to a
// sane default.
func NewBiomedicalAdapter(baseURL, apiKey string) *BiomedicalAdapter {
	if baseURL == "" {
		baseURL = biomedicalDefaultBaseURL
	}
	return &BiomedicalAdapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

func (a *BiomedicalAdapter) Name() string { return "biomedical" }

type biomedicalResult struct {
	Title   string   `json:"title"`
	Abstract string  `json:"abstract"`
	URL      string   `json:"url"`
	DOI      string   `json:"doi"`
	Authors  []string `json:"authors"`
	PubDate  string   `json:"pub_date"`
}

type biomedicalResponse struct {
	Results []biomedicalResult `json:"results"`
}

// Search issues a query against the biomedical index and returns up to
// limit normalized records.
func (a *BiomedicalAdapter) Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("retrieval: marshal biomedical request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("retrieval: build biomedical request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval: biomedical request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("retrieval: biomedical search returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed biomedicalResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("retrieval: decode biomedical response: %w", err)
	}

	out := make([]ArticleRecord, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		out = append(out, ArticleRecord{
			Title:           r.Title,
			Snippet:         r.Abstract,
			URL:             r.URL,
			DOI:             r.DOI,
			Authors:         r.Authors,
			PublicationDate: r.PubDate,
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (a *BiomedicalAdapter) Close() error { return nil }
