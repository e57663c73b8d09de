package graphstore

import (
	"context"
	"fmt"
	"time"

	"graphmind/internal/config"
)

// NewRepositoryFromConfig selects and opens the backend named by
// cfg.Store.Backend.
func NewRepositoryFromConfig(ctx context.Context, cfg config.StoreConfig) (Repository, error) {
	switch cfg.Backend {
	case "neo4j":
		return NewNeo4jRepository(ctx, Neo4jConfig{
			URI:      cfg.URI,
			Username: cfg.User,
			Password: cfg.Password,
			Database: cfg.Database,
			Timeout:  30 * time.Second,
		})
	case "sqlite", "":
		path := cfg.SQLitePath
		if path == "" {
			path = "graphmind.db"
		}
		return NewSQLiteRepository(path, 5000)
	default:
		return nil, fmt.Errorf("graphstore: unknown backend %q", cfg.Backend)
	}
}
