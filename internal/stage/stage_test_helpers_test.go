package stage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
)

// newTestRepo gives every stage test a real, isolated SQLite-backed
// repository rather than a hand-rolled mock, the way sqlite_test.go exercises
// the store directly.
func newTestRepo(t *testing.T) graphstore.Repository {
	t.Helper()
	dir := t.TempDir()
	repo, err := graphstore.NewSQLiteRepository(filepath.Join(dir, "graphmind.db"), 2000)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return repo
}

func newTestConfig() *config.Config {
	return config.Default()
}
