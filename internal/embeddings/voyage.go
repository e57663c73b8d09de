package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const voyageAPIURL = "https://api.voyageai.com/v1/embeddings"

// voyageMaxBatchInputs is Voyage's per-request input cap. EmbedBatch splits
// larger evidence batches into chunks of this size rather than erroring, so
// retrieval.ResponseCache can hand it an entire search result page at once.
const voyageMaxBatchInputs = 128

// VoyageEmbedder embeds evidence-stage search queries and result snippets
// against the Voyage AI API, for use as the semantic backend behind
// retrieval.ResponseCache. It falls back to nothing on its own — callers
// without an API key use the cache's hash-based embedder instead.
type VoyageEmbedder struct {
	client    *http.Client
	apiKey    string
	model     string
	dimension int
	timeout   time.Duration
	log       *slog.Logger
}

// voyageModelDimensions maps known Voyage model identifiers to their output
// vector width. Source: Voyage AI model documentation as of this writing.
var voyageModelDimensions = map[string]int{
	"voyage-3-lite":    512,
	"voyage-3":         1024,
	"voyage-3-large":   2048,
	"voyage-code-3":    1536,
	"voyage-finance-2": 1024,
	"voyage-law-2":     1024,
	"voyage-2":         1024,
}

const voyageDefaultDimension = 1024

// NewVoyageEmbedder builds an embedder bound to apiKey and model. Unknown
// models fall back to voyageDefaultDimension rather than failing, since a
// new Voyage model release should degrade to "usable" not "broken" for a
// cache that only needs a stable vector width, not a perfectly sized one.
func NewVoyageEmbedder(apiKey, model string) *VoyageEmbedder {
	dim, ok := voyageModelDimensions[model]
	if !ok {
		dim = voyageDefaultDimension
	}

	timeout := 30 * time.Second
	return &VoyageEmbedder{
		client:    &http.Client{Timeout: timeout},
		apiKey:    apiKey,
		model:     model,
		dimension: dim,
		timeout:   timeout,
		log:       slog.With("component", "embeddings.voyage", "model", model),
	}
}

type voyageRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type voyageResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// Embed generates the embedding for a single evidence snippet or query.
func (e *VoyageEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embeddings: voyage: no embedding returned for text")
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts, transparently splitting batches larger than
// voyageMaxBatchInputs into multiple requests and concatenating the results
// in input order.
func (e *VoyageEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embeddings: voyage: no texts provided")
	}

	if len(texts) <= voyageMaxBatchInputs {
		return e.embedChunk(ctx, texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += voyageMaxBatchInputs {
		end := start + voyageMaxBatchInputs
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embeddings: voyage: chunk [%d:%d]: %w", start, end, err)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (e *VoyageEmbedder) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	jsonData, err := json.Marshal(voyageRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embeddings: voyage: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, voyageAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("embeddings: voyage: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings: voyage: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embeddings: voyage: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings: voyage: API returned status %d: %s", resp.StatusCode, string(body))
	}

	var voyageResp voyageResponse
	if err := json.Unmarshal(body, &voyageResp); err != nil {
		return nil, fmt.Errorf("embeddings: voyage: parse response: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range voyageResp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			e.log.Warn("voyage response index out of range", "index", data.Index, "batch_size", len(texts))
			continue
		}
		vectors[data.Index] = data.Embedding
	}
	return vectors, nil
}

// Dimension returns the embedding vector width this model produces.
func (e *VoyageEmbedder) Dimension() int { return e.dimension }

// Model returns the model identifier this embedder was built with.
func (e *VoyageEmbedder) Model() string { return e.model }

// Provider identifies this embedder to callers that support more than one.
func (e *VoyageEmbedder) Provider() string { return "voyage" }
