package embeddings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// redirectTransport rewrites every outbound request's scheme/host to target,
// letting tests exercise VoyageEmbedder's real request/response handling
// against an httptest.Server without touching the real Voyage API.
type redirectTransport struct {
	target *url.URL
}

func (rt redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func newTestVoyageEmbedder(t *testing.T, handler http.HandlerFunc) *VoyageEmbedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewVoyageEmbedder("test-key", "voyage-3")
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)
	e.client.Transport = redirectTransport{target: target}
	return e
}

func TestNewVoyageEmbedderResolvesKnownModelDimension(t *testing.T) {
	e := NewVoyageEmbedder("key", "voyage-3-large")
	assert.Equal(t, 2048, e.Dimension())
	assert.Equal(t, "voyage-3-large", e.Model())
	assert.Equal(t, "voyage", e.Provider())
}

func TestNewVoyageEmbedderDefaultsDimensionForUnknownModel(t *testing.T) {
	e := NewVoyageEmbedder("key", "some-future-model")
	assert.Equal(t, 1024, e.Dimension())
}

func TestEmbedBatchRejectsEmptyInput(t *testing.T) {
	e := NewVoyageEmbedder("key", "voyage-3")
	_, err := e.EmbedBatch(context.Background(), nil)
	assert.Error(t, err)
}

func TestEmbedReturnsSingleVectorFromBatchResponse(t *testing.T) {
	e := newTestVoyageEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3],"index":0}],"model":"voyage-3"}`))
	})

	vec, err := e.Embed(context.Background(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedBatchPreservesResponseIndexOrdering(t *testing.T) {
	e := newTestVoyageEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"embedding":[2],"index":1},
			{"embedding":[1],"index":0}
		]}`))
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1}, vecs[0])
	assert.Equal(t, []float32{2}, vecs[1])
}

func TestEmbedBatchReturnsErrorOnNonOKStatus(t *testing.T) {
	e := newTestVoyageEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("invalid api key"))
	})

	_, err := e.EmbedBatch(context.Background(), []string{"a"})
	assert.Error(t, err)
}
