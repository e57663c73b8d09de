package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSearchAdapterSearchNormalizesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get("X-Subscription-Token"))
		w.Write([]byte(`{"hits":[{"title":"T","highlight":"H","url":"https://x","relevance_score":0.9}]}`))
	}))
	defer srv.Close()

	a := NewWebSearchAdapter(srv.URL, "tok")
	recs, err := a.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "H", recs[0].Snippet)
	assert.Equal(t, 0.9, recs[0].Score)
}

func TestWebSearchAdapterSearchReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewWebSearchAdapter(srv.URL, "")
	_, err := a.Search(context.Background(), "q", 5)
	assert.Error(t, err)
}
