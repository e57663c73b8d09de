// Package retrieval provides the three pluggable evidence-search adapters
// the Evidence stage fans out against (biomedical article search, scholarly
// citation search, neural web search), plus the bounded-concurrency gate and
// response cache shared across them. Each adapter is a thin net/http
// client: a bounded *http.Client timeout, typed request/response structs,
// and a single exported constructor per backend.
package retrieval

import "context"

// ArticleRecord is one search result, normalized across all three adapters.
type ArticleRecord struct {
	Title           string   `json:"title"`
	Snippet         string   `json:"snippet"` // abstract, snippet, or highlight depending on adapter
	URL             string   `json:"url"`
	DOI             string   `json:"doi,omitempty"`
	Authors         []string `json:"authors,omitempty"`
	PublicationDate string   `json:"publication_date,omitempty"`
	Score           float64  `json:"score,omitempty"`
	CitedByCount    int      `json:"cited_by_count,omitempty"`
}

// Adapter is the contract every evidence retriever implements. Construction
// failure is non-fatal to the pipeline unless every configured adapter
// fails to construct (see NewAdapterSet); a Search failure mid-iteration is
// logged and skipped by the calling stage.
type Adapter interface {
	Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error)
	Close() error
	Name() string
}
