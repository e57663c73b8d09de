package graphstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRepository is the dev/test Repository backend: a single-file
// database using the property-bag schema in sqlite_schema.go.
type SQLiteRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSQLiteRepository opens (creating if necessary) a SQLite database at
// dbPath, configures it for single-process concurrent access, and ensures
// the schema exists.
func NewSQLiteRepository(dbPath string, busyTimeoutMS int) (*SQLiteRepository, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("graphstore: sqlite path cannot be empty")
	}
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = 5000
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d", dbPath, busyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("graphstore: open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("graphstore: ping sqlite: %w", err)
	}
	if err := configurePragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db, log: slog.With("component", "graphstore.sqlite")}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) HealthCheck(ctx context.Context) bool {
	if err := r.db.PingContext(ctx); err != nil {
		r.log.Warn("health check failed", "error", err)
		return false
	}
	return true
}

func (r *SQLiteRepository) ExecuteQuery(ctx context.Context, stmt Statement, mode Mode) ([]Record, error) {
	return execSQLite(ctx, r.db, stmt)
}

func (r *SQLiteRepository) ExecuteInTransaction(ctx context.Context, mode Mode, fn func(tx Transaction) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("graphstore: begin sqlite tx: %w", err)
	}
	wrapper := &sqliteTx{ctx: ctx, tx: sqlTx}
	if err := fn(wrapper); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("graphstore: commit sqlite tx: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ExecuteBatch(ctx context.Context, stmts []Statement, mode Mode) error {
	return r.ExecuteInTransaction(ctx, mode, func(tx Transaction) error {
		for _, stmt := range stmts {
			if _, err := tx.Execute(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// sqlQueryer is satisfied by both *sql.DB and *sql.Tx, letting execSQLite
// serve both the one-shot and the transactional call paths.
type sqlQueryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type sqliteTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqliteTx) Execute(ctx context.Context, stmt Statement) ([]Record, error) {
	return execSQLite(ctx, t.tx, stmt)
}

func execSQLite(ctx context.Context, q sqlQueryer, stmt Statement) ([]Record, error) {
	switch stmt.Op {
	case OpUpsertNode:
		props, err := NodeProperties(stmt.Node)
		if err != nil {
			return nil, err
		}
		blob, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("graphstore: marshal node props: %w", err)
		}
		tags, _ := json.Marshal(stmt.Node.Metadata.TagSlice())
		_, err = q.ExecContext(ctx, `
			INSERT INTO nodes (id, type, empirical_support, disciplinary_tags, query_context, props_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				type=excluded.type,
				empirical_support=excluded.empirical_support,
				disciplinary_tags=excluded.disciplinary_tags,
				query_context=excluded.query_context,
				props_json=excluded.props_json,
				updated_at=excluded.updated_at`,
			stmt.Node.ID, string(stmt.Node.Type), stmt.Node.Confidence.EmpiricalSupport,
			string(tags), nullableString(stmt.Node.Metadata.QueryContext),
			string(blob), stmt.Node.CreatedAt.UTC().Format(time.RFC3339Nano), stmt.Node.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		return nil, nil

	case OpUpsertEdge:
		if err := ValidateEdgeType(stmt.Edge.Type); err != nil {
			return nil, err
		}
		props := EdgeProperties(stmt.Edge)
		blob, err := json.Marshal(props)
		if err != nil {
			return nil, fmt.Errorf("graphstore: marshal edge props: %w", err)
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO edges (id, type, source_id, target_id, props_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				type=excluded.type,
				source_id=excluded.source_id,
				target_id=excluded.target_id,
				props_json=excluded.props_json`,
			stmt.Edge.ID, string(stmt.Edge.Type), stmt.Edge.SourceID, stmt.Edge.TargetID,
			string(blob), stmt.Edge.Metadata.CreatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		return nil, nil

	case OpAddLabel:
		// The property-bag schema has no separate label set; a label add is
		// folded into the node's type column, matching how the seed query
		// filters on a single type.
		if len(stmt.Labels) == 0 {
			return nil, fmt.Errorf("%w: add_label requires at least one label", ErrInvalidStatement)
		}
		_, err := q.ExecContext(ctx, `UPDATE nodes SET type = ? WHERE id = ?`, stmt.Labels[0], stmt.ID)
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		return nil, nil

	case OpGetNode:
		return queryNodes(ctx, q, `SELECT props_json FROM nodes WHERE id = ?`, stmt.ID)

	case OpFindNodeByQueryContext:
		return queryNodes(ctx, q, `SELECT props_json FROM nodes WHERE type = 'ROOT' AND query_context = ? LIMIT 1`, stmt.ID)

	case OpSeedByCriterion:
		c := stmt.Criterion
		query := `SELECT props_json FROM nodes WHERE empirical_support >= ?`
		args := []interface{}{c.MinConfidence}
		if len(c.NodeTypes) > 0 {
			placeholders := make([]string, len(c.NodeTypes))
			for i, t := range c.NodeTypes {
				placeholders[i] = "?"
				args = append(args, string(t))
			}
			query += fmt.Sprintf(" AND type IN (%s)", strings.Join(placeholders, ","))
		}
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		defer rows.Close()
		var out []Record
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return nil, wrapOpError(stmt.Op, err)
			}
			var props map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &props); err != nil {
				return nil, fmt.Errorf("graphstore: unmarshal node props: %w", err)
			}
			// The remaining criterion dimensions (impact, layer, knowledge-gap
			// flag, required/forbidden tags) aren't indexed columns, so they're
			// applied against the decoded property bag rather than the SQL
			// WHERE clause.
			if !criterionMatches(c, props) {
				continue
			}
			out = append(out, Record{IDs: []string{stringProp(props, "id")}})
		}
		return out, rows.Err()

	case OpExpandSubgraph:
		return expandSubgraphSQLite(ctx, q, stmt.SeedIDs, stmt.Depth)

	case OpDeleteNode:
		_, err := q.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, stmt.ID)
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		return nil, nil

	case OpDeleteEdge:
		_, err := q.ExecContext(ctx, `DELETE FROM edges WHERE id = ?`, stmt.ID)
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		return nil, nil

	case OpNodeDegree:
		rows, err := q.QueryContext(ctx, `SELECT COUNT(*) FROM edges WHERE source_id = ? OR target_id = ?`, stmt.ID, stmt.ID)
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		defer rows.Close()
		var count int
		if rows.Next() {
			if err := rows.Scan(&count); err != nil {
				return nil, wrapOpError(stmt.Op, err)
			}
		}
		return []Record{{Count: count}}, rows.Err()

	case OpCountNodesByType:
		var typeName string
		if len(stmt.Criterion.NodeTypes) > 0 {
			typeName = string(stmt.Criterion.NodeTypes[0])
		}
		rows, err := q.QueryContext(ctx, `SELECT COUNT(*) FROM nodes WHERE type = ?`, typeName)
		if err != nil {
			return nil, wrapOpError(stmt.Op, err)
		}
		defer rows.Close()
		var count int
		if rows.Next() {
			if err := rows.Scan(&count); err != nil {
				return nil, wrapOpError(stmt.Op, err)
			}
		}
		return []Record{{Count: count}}, rows.Err()

	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidStatement, stmt.Op)
	}
}

// criterionMatches applies the Criterion dimensions the property-bag schema
// has no indexed column for: minimum impact, layer filter, knowledge-gap
// flag, and required/forbidden tags. The type and minimum-confidence
// dimensions are already applied by the caller's SQL WHERE clause.
func criterionMatches(c *Criterion, props map[string]interface{}) bool {
	if floatProp(props, "impact_score") < c.MinImpact {
		return false
	}
	if c.LayerID != "" && stringProp(props, "layer_id") != c.LayerID {
		return false
	}
	if c.KnowledgeGapOnly && !boolProp(props, "is_knowledge_gap") {
		return false
	}
	tags := stringSliceProp(props, "disciplinary_tags")
	if len(c.RequiredTags) > 0 && !containsAllStrings(tags, c.RequiredTags) {
		return false
	}
	if len(c.ForbiddenTags) > 0 && containsAnyString(tags, c.ForbiddenTags) {
		return false
	}
	return true
}

func containsAllStrings(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if !set[n] {
			return false
		}
	}
	return true
}

func containsAnyString(haystack, needles []string) bool {
	set := make(map[string]bool, len(needles))
	for _, n := range needles {
		set[n] = true
	}
	for _, h := range haystack {
		if set[h] {
			return true
		}
	}
	return false
}

func queryNodes(ctx context.Context, q sqlQueryer, query string, arg string) ([]Record, error) {
	rows, err := q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, wrapOpError(OpGetNode, err)
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, wrapOpError(OpGetNode, err)
		}
		var props map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal node props: %w", err)
		}
		node, err := NodeFromProperties(props)
		if err != nil {
			return nil, err
		}
		out = append(out, Record{Node: node})
	}
	return out, rows.Err()
}

// expandSubgraphSQLite does an iterative breadth-first walk up to depth hops
// from the seed set, since the property-bag schema has no native path
// operator to lean on the way Cypher does.
func expandSubgraphSQLite(ctx context.Context, q sqlQueryer, seedIDs []string, depth int) ([]Record, error) {
	visited := make(map[string]bool)
	frontier := append([]string{}, seedIDs...)
	for _, id := range frontier {
		visited[id] = true
	}

	var edgeRecords []Record
	seenEdges := make(map[string]bool)

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			rows, err := q.QueryContext(ctx, `
				SELECT id, source_id, target_id, props_json FROM edges
				WHERE source_id = ? OR target_id = ?`, id, id)
			if err != nil {
				return nil, wrapOpError(OpExpandSubgraph, err)
			}
			for rows.Next() {
				var edgeID, src, dst, raw string
				if err := rows.Scan(&edgeID, &src, &dst, &raw); err != nil {
					rows.Close()
					return nil, wrapOpError(OpExpandSubgraph, err)
				}
				if !seenEdges[edgeID] {
					seenEdges[edgeID] = true
					var props map[string]interface{}
					if err := json.Unmarshal([]byte(raw), &props); err == nil {
						edgeRecords = append(edgeRecords, Record{Edge: EdgeFromProperties(props)})
					}
				}
				other := dst
				if dst == id {
					other = src
				}
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return nil, wrapOpError(OpExpandSubgraph, err)
			}
		}
		frontier = next
	}

	var out []Record
	for id := range visited {
		rows, err := q.QueryContext(ctx, `SELECT props_json FROM nodes WHERE id = ?`, id)
		if err != nil {
			return nil, wrapOpError(OpExpandSubgraph, err)
		}
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				rows.Close()
				return nil, wrapOpError(OpExpandSubgraph, err)
			}
			var props map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &props); err == nil {
				if node, err := NodeFromProperties(props); err == nil {
					out = append(out, Record{Node: node})
				}
			}
		}
		rows.Close()
	}
	out = append(out, edgeRecords...)
	return out, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
