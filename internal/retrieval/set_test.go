package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAdapterSetConstructsAllThreeAdaptersWithDefaults(t *testing.T) {
	set, err := NewAdapterSet(AdapterConfig{})
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Len(t, set.Adapters, 3)

	names := make(map[string]bool)
	for _, a := range set.Adapters {
		names[a.Name()] = true
	}
	assert.True(t, names["biomedical"])
	assert.True(t, names["scholarly"])
	assert.True(t, names["web_search"])
}

func TestNewAdapterSetDefaultsConcurrencyWhenUnset(t *testing.T) {
	set, err := NewAdapterSet(AdapterConfig{MaxConcurrency: 0})
	require.NoError(t, err)
	assert.NotNil(t, set.Semaphore)
}

func TestAdapterSetCloseIsSafeAfterConstruction(t *testing.T) {
	set, err := NewAdapterSet(AdapterConfig{})
	require.NoError(t, err)
	assert.NoError(t, set.Close())
}
