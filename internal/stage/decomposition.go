package stage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// DecompositionStage upserts one DECOMPOSITION_DIMENSION node per resolved
// dimension and links it to the root.
type DecompositionStage struct {
	repo graphstore.Repository
	cfg  *config.Config
}

func NewDecompositionStage(repo graphstore.Repository, cfg *config.Config) *DecompositionStage {
	return &DecompositionStage{repo: repo, cfg: cfg}
}

func (s *DecompositionStage) Name() string   { return "decomposition" }
func (s *DecompositionStage) Cleanup() error { return nil }

// Execute upserts one dimension node per resolved decomposition dimension
// and links each back to the root.
func (s *DecompositionStage) Execute(ctx context.Context, sess *session.Session) StageOutput {
	initRaw, ok := sess.ContextSlot("initialization")
	if !ok {
		return Failure("decomposition: initialization context missing")
	}
	initCtx, ok := initRaw.(map[string]interface{})
	if !ok {
		return Failure("decomposition: initialization context malformed")
	}
	rootID, _ := initCtx["root_node_id"].(string)
	if rootID == "" {
		return Failure("decomposition: missing root_node_id")
	}
	rootTags, _ := initCtx["initial_disciplinary_tags"].([]string)

	dimensions := s.resolveDimensions(sess)
	if len(dimensions) == 0 {
		return Failure("decomposition: no dimensions resolved")
	}

	confidence := s.cfg.Defaults.DimensionConfidenceVector().Clamped()
	now := time.Now()

	nodes := make([]*types.Node, 0, len(dimensions))
	ids := make([]string, 0, len(dimensions))
	for _, dim := range dimensions {
		n := &types.Node{
			ID:         uuid.NewString(),
			Label:      dim,
			Type:       types.NodeDecompositionDimension,
			Confidence: confidence,
			Metadata: types.NodeMetadata{
				Description: dim,
				ImpactScore: 0.7,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		n.Metadata.UnionTags(rootTags)
		nodes = append(nodes, n)
		ids = append(ids, n.ID)
	}

	nodeStmts := make([]graphstore.Statement, 0, len(nodes))
	for _, n := range nodes {
		nodeStmts = append(nodeStmts, graphstore.Statement{
			Op:     graphstore.OpUpsertNode,
			Node:   n,
			Labels: []string{string(types.NodeDecompositionDimension)},
		})
	}
	if err := s.repo.ExecuteBatch(ctx, nodeStmts, graphstore.ModeWrite); err != nil {
		return Failure("decomposition: failed to upsert dimensions: " + err.Error())
	}

	edgeStmts := make([]graphstore.Statement, 0, len(nodes))
	for _, n := range nodes {
		edgeStmts = append(edgeStmts, graphstore.Statement{
			Op: graphstore.OpUpsertEdge,
			Edge: &types.Edge{
				ID:         uuid.NewString(),
				SourceID:   n.ID,
				TargetID:   rootID,
				Type:       types.EdgeDecompositionOf,
				Confidence: 0.95,
				Metadata:   types.EdgeMetadata{Weight: 0.95, CreatedAt: now},
			},
		})
	}
	if err := s.repo.ExecuteBatch(ctx, edgeStmts, graphstore.ModeWrite); err != nil {
		return Failure("decomposition: failed to link dimensions to root: " + err.Error())
	}

	results := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		results = append(results, map[string]interface{}{"id": n.ID, "label": n.Label})
	}

	return StageOutput{
		Success: true,
		Summary: "decomposed into dimensions",
		ContextUpdate: contextSlot("decomposition", map[string]interface{}{
			"dimension_node_ids":  ids,
			"decomposition_results": results,
		}),
	}
}

func (s *DecompositionStage) resolveDimensions(sess *session.Session) []string {
	if sess.Params != nil && wellFormedStrings(sess.Params.DecompositionDimensions) {
		return sess.Params.DecompositionDimensions
	}
	return s.cfg.Defaults.DefaultDecompositionDimensions
}

func wellFormedStrings(vs []string) bool {
	if len(vs) == 0 {
		return false
	}
	for _, v := range vs {
		if v == "" {
			return false
		}
	}
	return true
}
