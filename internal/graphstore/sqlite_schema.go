package graphstore

import (
	"database/sql"
	"fmt"
)

// schema is the property-bag layout: every node/edge keeps its full flattened
// property map as one JSON blob, plus a handful of indexed columns for the
// predicates the seed/criterion queries actually filter on.
const schema = `
CREATE TABLE IF NOT EXISTS nodes (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    empirical_support REAL NOT NULL DEFAULT 0,
    disciplinary_tags TEXT NOT NULL DEFAULT '[]',
    query_context TEXT,
    props_json TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS edges (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    source_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    props_json TEXT NOT NULL,
    created_at TEXT NOT NULL,
    FOREIGN KEY (source_id) REFERENCES nodes(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES nodes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(type);
CREATE INDEX IF NOT EXISTS idx_nodes_query_context ON nodes(query_context) WHERE query_context IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
`

func initializeSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("graphstore: create schema: %w", err)
	}
	return nil
}

// configurePragmas mirrors internal/storage/sqlite.go's pragma set: WAL for
// concurrent reads, foreign keys enforced, and a modest cache for the
// single-process dev/test workload this backend serves.
func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -32000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("graphstore: exec %q: %w", p, err)
		}
	}
	return nil
}
