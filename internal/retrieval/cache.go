package retrieval

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/philippgille/chromem-go"

	"graphmind/internal/embeddings"
	"graphmind/pkg/cache"
)

// similarityHitThreshold is how close a new query's embedding must be to a
// cached query's embedding (cosine similarity) to be served from the cache
// instead of re-hitting the network. Set high: this is a repeat-query
// optimization, not a fuzzy-retrieval feature.
const similarityHitThreshold = 0.97

// embedder is the minimal surface ResponseCache needs from an embedding
// backend; VoyageEmbedder and hashEmbedder both satisfy it.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// exactTierTTL bounds how long an exact-key hit may be served without
// re-consulting the network; retrieval backends reindex continuously, so
// search responses go stale.
const exactTierTTL = 30 * time.Minute

// searchKey identifies one adapter search in the exact-hit tier: the
// adapter, the requested result limit, and a digest of the query text.
type searchKey struct {
	adapter string
	limit   int
	digest  string
}

func keyFor(adapterName, query string, limit int) searchKey {
	sum := sha1.Sum([]byte(query))
	return searchKey{adapter: adapterName, limit: limit, digest: hex.EncodeToString(sum[:])}
}

// id renders the key as the semantic store's document id.
func (k searchKey) id() string {
	return fmt.Sprintf("%s:%d:%s", k.adapter, k.limit, k.digest)
}

// ResponseCache serves repeat Evidence-stage searches against the same
// hypothesis label from an embedded vector store instead of the network,
// fronted by an in-process LRU for exact-key hits within the same process
// lifetime. pkg/cache/lru.go serves the fast path and
// philippgille/chromem-go the semantic path.
type ResponseCache struct {
	exact      *cache.LRU[searchKey, []ArticleRecord]
	collection *chromem.Collection
	embed      embedder
	log        *slog.Logger
}

// NewResponseCache builds the cache. When voyageAPIKey is empty, a
// deterministic hash-based embedder stands in for Voyage so the cache
// remains fully functional offline, in tests, and in development —
// collisions only degrade the hit rate, they never affect correctness
// since a cache miss always falls through to a real adapter call.
func NewResponseCache(voyageAPIKey, voyageModel string) (*ResponseCache, error) {
	var e embedder
	if voyageAPIKey != "" {
		e = embeddings.NewVoyageEmbedder(voyageAPIKey, voyageModel)
	} else {
		e = hashEmbedder{dim: 256}
	}

	db := chromem.NewDB()
	coll, err := db.GetOrCreateCollection("evidence-search-cache", nil,
		func(ctx context.Context, text string) ([]float32, error) { return e.Embed(ctx, text) })
	if err != nil {
		return nil, fmt.Errorf("retrieval: create response cache collection: %w", err)
	}

	return &ResponseCache{
		exact:      cache.New[searchKey, []ArticleRecord](2000, exactTierTTL),
		collection: coll,
		embed:      e,
		log:        slog.With("component", "retrieval.cache"),
	}, nil
}

// Get returns a cached result set for (adapter, query, limit), checking the
// in-process LRU first and the semantic store second.
func (c *ResponseCache) Get(ctx context.Context, adapterName, query string, limit int) ([]ArticleRecord, bool) {
	key := keyFor(adapterName, query, limit)
	if records, ok := c.exact.Get(key); ok {
		return records, true
	}

	results, err := c.collection.Query(ctx, query, 1, map[string]string{"adapter": adapterName, "limit": fmt.Sprintf("%d", limit)}, nil)
	if err != nil || len(results) == 0 {
		return nil, false
	}
	top := results[0]
	if top.Similarity < similarityHitThreshold {
		return nil, false
	}
	var records []ArticleRecord
	if err := json.Unmarshal([]byte(top.Content), &records); err != nil {
		c.log.Warn("failed to decode cached response", "error", err)
		return nil, false
	}
	c.exact.Put(key, records)
	return records, true
}

// Put stores a fresh result set under (adapter, query, limit) in both the
// exact-key LRU and the semantic store.
func (c *ResponseCache) Put(ctx context.Context, adapterName, query string, limit int, records []ArticleRecord) {
	key := keyFor(adapterName, query, limit)
	c.exact.Put(key, records)

	blob, err := json.Marshal(records)
	if err != nil {
		c.log.Warn("failed to encode response for cache", "error", err)
		return
	}
	doc := chromem.Document{
		ID:       key.id(),
		Content:  string(blob),
		Metadata: map[string]string{"adapter": adapterName, "limit": fmt.Sprintf("%d", limit)},
	}
	if err := c.collection.AddDocument(ctx, doc); err != nil {
		c.log.Warn("failed to add document to response cache", "error", err)
	}
}

// CachedAdapter wraps an Adapter with a ResponseCache, serving repeat
// queries without a network round trip.
type CachedAdapter struct {
	Adapter
	cache *ResponseCache
}

// WithCache wraps adapter so repeat (query, limit) pairs are served from
// cache. A nil cache disables wrapping and returns adapter unchanged.
func WithCache(adapter Adapter, c *ResponseCache) Adapter {
	if c == nil {
		return adapter
	}
	return &CachedAdapter{Adapter: adapter, cache: c}
}

func (c *CachedAdapter) Search(ctx context.Context, query string, limit int) ([]ArticleRecord, error) {
	if records, ok := c.cache.Get(ctx, c.Adapter.Name(), query, limit); ok {
		return records, nil
	}
	records, err := c.Adapter.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	c.cache.Put(ctx, c.Adapter.Name(), query, limit, records)
	return records, nil
}

// hashEmbedder derives a deterministic pseudo-embedding from a SHA-1-seeded
// stream, used when no real embedding backend is configured. It preserves
// exact-text equality (identical text always maps to an identical vector)
// which is all the cache's similarity check needs for its offline/test mode.
type hashEmbedder struct {
	dim int
}

func (h hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	sum := sha1.Sum([]byte(text))
	out := make([]float32, h.dim)
	for i := range out {
		b := sum[i%len(sum)]
		out[i] = float32(b) / 255.0
	}
	return out, nil
}
