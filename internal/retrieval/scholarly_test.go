package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScholarlyAdapterSearchNormalizesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"title":"Paper","abstract":"abs","externalIds":{"DOI":"10.1/x"},"authors":[{"name":"A. Author"}],"citationCount":42}
		]}`))
	}))
	defer srv.Close()

	a := NewScholarlyAdapter(srv.URL, "")
	recs, err := a.Search(context.Background(), "q", 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "10.1/x", recs[0].DOI)
	assert.Equal(t, []string{"A. Author"}, recs[0].Authors)
	assert.Equal(t, 42, recs[0].CitedByCount)
}

func TestScholarlyAdapterSearchToleratesMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	a := NewScholarlyAdapter(srv.URL, "")
	recs, err := a.Search(context.Background(), "q", 5)
	assert.NoError(t, err, "a malformed response shape must degrade to an empty result, not an error")
	assert.Nil(t, recs)
}
