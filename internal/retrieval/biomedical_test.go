package retrieval

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBiomedicalAdapterSearchNormalizesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Write([]byte(`{"results":[
			{"title":"A","abstract":"abs-a","doi":"10.1/a"},
			{"title":"B","abstract":"abs-b","doi":"10.1/b"}
		]}`))
	}))
	defer srv.Close()

	a := NewBiomedicalAdapter(srv.URL, "secret")
	recs, err := a.Search(context.Background(), "caffeine", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1, "limit must cap the returned records")
	assert.Equal(t, "A", recs[0].Title)
	assert.Equal(t, "abs-a", recs[0].Snippet)
}

func TestBiomedicalAdapterSearchReturnsErrorOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	a := NewBiomedicalAdapter(srv.URL, "")
	_, err := a.Search(context.Background(), "q", 5)
	assert.Error(t, err)
}

func TestNewBiomedicalAdapterDefaultsBaseURL(t *testing.T) {
	a := NewBiomedicalAdapter("", "")
	assert.Equal(t, biomedicalDefaultBaseURL, a.baseURL)
	assert.Equal(t, "biomedical", a.Name())
}
