package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"

	"graphmind/internal/types"
)

// Neo4jConfig holds the connection parameters for the production backend.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// Neo4jConfigFromEnv reads NEO4J_URI/NEO4J_USERNAME/NEO4J_PASSWORD/
// NEO4J_DATABASE/NEO4J_TIMEOUT_MS, falling back to local-dev defaults.
func Neo4jConfigFromEnv() Neo4jConfig {
	cfg := Neo4jConfig{
		URI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Username: getEnv("NEO4J_USERNAME", "neo4j"),
		Password: getEnv("NEO4J_PASSWORD", "password"),
		Database: getEnv("NEO4J_DATABASE", "neo4j"),
		Timeout:  5 * time.Second,
	}
	if raw := os.Getenv("NEO4J_TIMEOUT_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Neo4jRepository is the production Repository backend: one pooled driver
// per process, one driver session per call.
type Neo4jRepository struct {
	driver   neo4j.DriverWithContext
	database string
	timeout  time.Duration
	log      *slog.Logger
}

// NewNeo4jRepository opens a pooled driver and verifies connectivity before
// returning, the same fail-fast shape as NewNeo4jClient.
func NewNeo4jRepository(ctx context.Context, cfg Neo4jConfig) (*Neo4jRepository, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = 50
			c.ConnectionAcquisitionTimeout = cfg.Timeout
			c.SocketConnectTimeout = cfg.Timeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("graphstore: create neo4j driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphstore: verify neo4j connectivity: %w", err)
	}

	return &Neo4jRepository{
		driver:   driver,
		database: cfg.Database,
		timeout:  cfg.Timeout,
		log:      slog.With("component", "graphstore.neo4j"),
	}, nil
}

func (r *Neo4jRepository) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

func (r *Neo4jRepository) HealthCheck(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.driver.VerifyConnectivity(checkCtx); err != nil {
		r.log.Warn("health check failed", "error", err)
		return false
	}
	return true
}

// ExecuteQuery runs a single Statement in its own session, outside any
// explicit transaction (Neo4j auto-commits a bare session.Run).
func (r *Neo4jRepository) ExecuteQuery(ctx context.Context, stmt Statement, mode Mode) ([]Record, error) {
	accessMode := neo4j.AccessModeRead
	if mode == ModeWrite {
		accessMode = neo4j.AccessModeWrite
	}
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database, AccessMode: accessMode})
	defer func() { _ = session.Close(ctx) }()

	query, params, err := cypherFor(stmt)
	if err != nil {
		return nil, err
	}

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, wrapOpError(stmt.Op, err)
	}
	return collectRecords(ctx, stmt.Op, result)
}

func (r *Neo4jRepository) ExecuteInTransaction(ctx context.Context, mode Mode, fn func(tx Transaction) error) error {
	accessMode := neo4j.AccessModeRead
	if mode == ModeWrite {
		accessMode = neo4j.AccessModeWrite
	}
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: r.database, AccessMode: accessMode})
	defer func() { _ = session.Close(ctx) }()

	work := func(tx neo4j.ManagedTransaction) (interface{}, error) {
		wrapper := &neo4jTx{ctx: ctx, tx: tx}
		return nil, fn(wrapper)
	}

	var err error
	if mode == ModeWrite {
		_, err = session.ExecuteWrite(ctx, work)
	} else {
		_, err = session.ExecuteRead(ctx, work)
	}
	return wrapOpError("transaction", err)
}

func (r *Neo4jRepository) ExecuteBatch(ctx context.Context, stmts []Statement, mode Mode) error {
	return r.ExecuteInTransaction(ctx, mode, func(tx Transaction) error {
		for _, stmt := range stmts {
			if _, err := tx.Execute(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

type neo4jTx struct {
	ctx context.Context
	tx  neo4j.ManagedTransaction
}

func (t *neo4jTx) Execute(ctx context.Context, stmt Statement) ([]Record, error) {
	query, params, err := cypherFor(stmt)
	if err != nil {
		return nil, err
	}
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, wrapOpError(stmt.Op, err)
	}
	return collectRecords(ctx, stmt.Op, result)
}

// cypherFor translates a Statement into parameterised Cypher. Single-statement
// MERGE upserts and the apoc-free variable-length-match form cover the write
// and read protocols without a stored procedure library.
func cypherFor(stmt Statement) (string, map[string]interface{}, error) {
	switch stmt.Op {
	case OpUpsertNode:
		props, err := NodeProperties(stmt.Node)
		if err != nil {
			return "", nil, err
		}
		query := fmt.Sprintf(`
			MERGE (n {id: $id})
			ON CREATE SET n:%s, n += $props
			ON MATCH SET n:%s, n += $props
			RETURN n`, sanitizeLabel(string(stmt.Node.Type)), sanitizeLabel(string(stmt.Node.Type)))
		return query, map[string]interface{}{"id": stmt.Node.ID, "props": props}, nil

	case OpUpsertEdge:
		if err := ValidateEdgeType(stmt.Edge.Type); err != nil {
			return "", nil, err
		}
		query := fmt.Sprintf(`
			MATCH (a {id: $source_id}), (b {id: $target_id})
			MERGE (a)-[r:%s {id: $id}]->(b)
			SET r += $props
			RETURN r`, sanitizeLabel(string(stmt.Edge.Type)))
		return query, map[string]interface{}{
			"source_id": stmt.Edge.SourceID,
			"target_id": stmt.Edge.TargetID,
			"id":        stmt.Edge.ID,
			"props":     EdgeProperties(stmt.Edge),
		}, nil

	case OpAddLabel:
		if len(stmt.Labels) == 0 {
			return "", nil, fmt.Errorf("%w: add_label requires at least one label", ErrInvalidStatement)
		}
		query := fmt.Sprintf(`MATCH (n {id: $id}) SET n:%s RETURN n`, sanitizeLabel(stmt.Labels[0]))
		return query, map[string]interface{}{"id": stmt.ID}, nil

	case OpGetNode:
		return `MATCH (n {id: $id}) RETURN n`, map[string]interface{}{"id": stmt.ID}, nil

	case OpFindNodeByQueryContext:
		return `MATCH (n:ROOT {query_context: $query_context}) RETURN n LIMIT 1`,
			map[string]interface{}{"query_context": stmt.ID}, nil

	case OpSeedByCriterion:
		// ALL()/NONE() over an empty list are vacuously true in Cypher, so
		// required_tags/forbidden_tags need no separate "empty means no
		// filter" branch the way the type list does.
		query := `MATCH (n) WHERE (size($types) = 0 OR n.type IN $types)
			AND n.empirical_support >= $min_confidence
			AND n.impact_score >= $min_impact
			AND ($layer_id = '' OR n.layer_id = $layer_id)
			AND (NOT $knowledge_gap_only OR n.is_knowledge_gap = true)
			AND ALL(t IN $required_tags WHERE t IN n.disciplinary_tags)
			AND NONE(t IN $forbidden_tags WHERE t IN n.disciplinary_tags)
			RETURN n.id AS id`
		c := stmt.Criterion
		return query, map[string]interface{}{
			"types":              nodeTypeStrings(c.NodeTypes),
			"min_confidence":     c.MinConfidence,
			"min_impact":         c.MinImpact,
			"layer_id":           c.LayerID,
			"knowledge_gap_only": c.KnowledgeGapOnly,
			"required_tags":      orEmptyStrings(c.RequiredTags),
			"forbidden_tags":     orEmptyStrings(c.ForbiddenTags),
		}, nil

	case OpExpandSubgraph:
		// Cypher doesn't accept a parameter for a variable-length pattern's
		// upper bound, so depth is inlined as a literal; it always comes from
		// the pipeline's own config, never from user input.
		depth := stmt.Depth
		if depth < 0 {
			depth = 0
		}
		query := fmt.Sprintf(`MATCH (seed) WHERE seed.id IN $seed_ids
			CALL {
				WITH seed
				MATCH path = (seed)-[*0..%d]-(m)
				UNWIND nodes(path) AS n
				RETURN DISTINCT n AS n, null AS r
				UNION
				WITH seed
				MATCH path = (seed)-[*0..%d]-(m)
				UNWIND relationships(path) AS rel
				RETURN null AS n, rel AS r
			}
			RETURN n, r`, depth, depth)
		return query, map[string]interface{}{"seed_ids": stmt.SeedIDs}, nil

	case OpDeleteNode:
		return `MATCH (n {id: $id}) DETACH DELETE n`, map[string]interface{}{"id": stmt.ID}, nil

	case OpDeleteEdge:
		return `MATCH ()-[r {id: $id}]->() DELETE r`, map[string]interface{}{"id": stmt.ID}, nil

	case OpNodeDegree:
		return `MATCH (n {id: $id})-[r]-() RETURN count(r) AS degree`, map[string]interface{}{"id": stmt.ID}, nil

	case OpCountNodesByType:
		var typeName string
		if len(stmt.Criterion.NodeTypes) > 0 {
			typeName = string(stmt.Criterion.NodeTypes[0])
		}
		return `MATCH (n) WHERE n.type = $type RETURN count(n) AS count`, map[string]interface{}{"type": typeName}, nil

	default:
		return "", nil, fmt.Errorf("%w: unknown op %q", ErrInvalidStatement, stmt.Op)
	}
}

// sanitizeLabel keeps dynamically interpolated label/type names restricted
// to the fixed enum values defined in internal/types, never raw user input:
// Cypher doesn't support parameterised labels, so every value reaching this
// function must already be one of types.NodeType/EdgeType's constants.
func sanitizeLabel(label string) string {
	for _, r := range label {
		if !(r == '_' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return "UNKNOWN"
		}
	}
	if label == "" {
		return "UNKNOWN"
	}
	return label
}

// nodeTypeStrings converts a Criterion's type list to the string slice the
// Bolt protocol can carry as a parameter, never nil (Cypher's size(null)
// errors rather than returning 0).
func nodeTypeStrings(nodeTypes []types.NodeType) []string {
	out := make([]string, len(nodeTypes))
	for i, t := range nodeTypes {
		out[i] = string(t)
	}
	return out
}

// orEmptyStrings substitutes a non-nil empty slice for a nil one, so a
// Criterion's unset tag lists serialize as an empty Cypher list rather than
// null.
func orEmptyStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func collectRecords(ctx context.Context, op StatementOp, result neo4j.ResultWithContext) ([]Record, error) {
	var records []Record
	for result.Next(ctx) {
		rec := result.Record()
		records = append(records, recordFromNeo4j(rec))
	}
	if err := result.Err(); err != nil {
		return nil, wrapOpError(op, err)
	}
	return records, nil
}

func recordFromNeo4j(rec *neo4j.Record) Record {
	var out Record
	if v, ok := rec.Get("n"); ok {
		if node, ok := v.(neo4j.Node); ok {
			out.Node, _ = NodeFromProperties(node.Props)
		}
	}
	if v, ok := rec.Get("r"); ok {
		if rel, ok := v.(neo4j.Relationship); ok {
			out.Edge = EdgeFromProperties(rel.Props)
		}
	}
	if v, ok := rec.Get("id"); ok {
		if s, ok := v.(string); ok {
			out.IDs = append(out.IDs, s)
		}
	}
	if v, ok := rec.Get("degree"); ok {
		out.Count = int(toInt64(v))
	}
	if v, ok := rec.Get("count"); ok {
		out.Count = int(toInt64(v))
	}
	return out
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
