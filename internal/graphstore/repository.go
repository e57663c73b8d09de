// Package graphstore defines the labelled-property-graph contract the
// pipeline's stages are written against, plus two implementations: a Neo4j
// backend for production and a SQLite backend for development and tests.
package graphstore

import (
	"context"
	"errors"
	"fmt"

	"graphmind/internal/types"
)

// Mode selects the transaction access mode a Statement runs under.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// StatementOp is the closed set of operations a Statement can express. Both
// backends translate a Statement into their native dialect: real Cypher for
// Neo4j, parameterised SQL against the property-bag schema for SQLite.
type StatementOp string

const (
	OpUpsertNode             StatementOp = "upsert_node"
	OpUpsertEdge             StatementOp = "upsert_edge"
	OpAddLabel                StatementOp = "add_label"
	OpGetNode                StatementOp = "get_node"
	OpFindNodeByQueryContext StatementOp = "find_node_by_query_context"
	OpSeedByCriterion        StatementOp = "seed_by_criterion"
	OpExpandSubgraph         StatementOp = "expand_subgraph"
	OpDeleteNode             StatementOp = "delete_node"
	OpDeleteEdge             StatementOp = "delete_edge"
	OpNodeDegree             StatementOp = "node_degree"
	OpCountNodesByType       StatementOp = "count_nodes_by_type"
)

// Criterion narrows a seed-selection or filter query: a minimum confidence
// (both backends compare it against empirical_support alone, not the average
// of the four confidence components), minimum impact, an allowed
// type label list, required/forbidden tags, a layer filter, and the
// knowledge-gap flag. A zero-value field means "no filter on this
// dimension" (empty NodeTypes matches every type, empty tag lists impose no
// tag constraint, and so on).
type Criterion struct {
	NodeTypes        []types.NodeType
	RequiredTags     []string
	ForbiddenTags    []string
	MinConfidence    float64
	MinImpact        float64
	LayerID          string
	KnowledgeGapOnly bool
}

// Statement is a single graph operation, backend-agnostic. Exactly the
// fields relevant to Op are populated; the rest are zero.
type Statement struct {
	Op        StatementOp
	Node      *types.Node
	Edge      *types.Edge
	Labels    []string
	ID        string
	Criterion *Criterion
	SeedIDs   []string
	Depth     int
}

// Record is a single row returned by ExecuteQuery: a node, an edge, a bare
// ID list, or a scalar count, depending on the Statement that produced it.
type Record struct {
	Node  *types.Node
	Edge  *types.Edge
	IDs   []string
	Count int
}

// Transaction scopes a sequence of statements to one underlying driver
// transaction.
type Transaction interface {
	Execute(ctx context.Context, stmt Statement) ([]Record, error)
}

// Repository is the graph-store contract every pipeline stage is written
// against. Both ExecuteBatch and ExecuteInTransaction exist because the
// write protocol (upsert-by-id plus label add) needs all-or-nothing
// semantics when several nodes and edges land together, while
// ExecuteInTransaction additionally lets a caller branch mid-transaction
// (e.g. the pruning stage's combined delete-then-recount).
type Repository interface {
	ExecuteQuery(ctx context.Context, stmt Statement, mode Mode) ([]Record, error)
	ExecuteInTransaction(ctx context.Context, mode Mode, fn func(tx Transaction) error) error
	ExecuteBatch(ctx context.Context, stmts []Statement, mode Mode) error
	HealthCheck(ctx context.Context) bool
	Close(ctx context.Context) error
}

// Sentinel errors the Repository implementations wrap; stages and the
// orchestrator match against these with errors.Is rather than inspecting
// driver-specific error strings.
var (
	ErrNotFound         = errors.New("graphstore: record not found")
	ErrInvalidStatement = errors.New("graphstore: invalid statement for this operation")
	ErrUnavailable      = errors.New("graphstore: backend unavailable")
)

// wrapOpError annotates a driver error with the operation that produced it
// without embedding connection strings or credentials, which live only in
// the Config passed to NewRepositoryFromConfig and are never formatted into
// an error value.
func wrapOpError(op StatementOp, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("graphstore: %s: %w", op, err)
}
