package stage

import (
	"context"
	"fmt"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// SubgraphExtractionStage applies an ordered list of named criteria to seed
// and expand a subgraph for each, emitting only non-empty results.
type SubgraphExtractionStage struct {
	repo graphstore.Repository
	cfg  *config.Config
}

func NewSubgraphExtractionStage(repo graphstore.Repository, cfg *config.Config) *SubgraphExtractionStage {
	return &SubgraphExtractionStage{repo: repo, cfg: cfg}
}

func (s *SubgraphExtractionStage) Name() string   { return "subgraph_extraction" }
func (s *SubgraphExtractionStage) Cleanup() error { return nil }

// ExtractedSubgraphData is one emitted subgraph.
type ExtractedSubgraphData struct {
	Criterion string        `json:"criterion"`
	Nodes     []*types.Node `json:"nodes"`
	Edges     []*types.Edge `json:"edges"`
}

// Execute applies each resolved criterion in order, expanding every
// non-empty seed set into an induced subgraph.
func (s *SubgraphExtractionStage) Execute(ctx context.Context, sess *session.Session) StageOutput {
	criteria := s.resolveCriteria(sess)

	var subgraphs []ExtractedSubgraphData
	for _, criterionName := range criteria {
		criterion := s.criterionFor(criterionName)

		seedRecords, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{
			Op: graphstore.OpSeedByCriterion, Criterion: criterion,
		}, graphstore.ModeRead)
		if err != nil {
			continue
		}
		var seedIDs []string
		for _, r := range seedRecords {
			seedIDs = append(seedIDs, r.IDs...)
		}
		if len(seedIDs) == 0 {
			continue
		}

		expanded, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{
			Op: graphstore.OpExpandSubgraph, SeedIDs: seedIDs, Depth: s.cfg.Defaults.IncludeNeighborsDepth,
		}, graphstore.ModeRead)
		if err != nil {
			continue
		}

		nodeSet := make(map[string]*types.Node)
		var edges []*types.Edge
		for _, r := range expanded {
			if r.Node != nil {
				nodeSet[r.Node.ID] = r.Node
			}
		}
		for _, r := range expanded {
			if r.Edge != nil {
				if _, ok1 := nodeSet[r.Edge.SourceID]; ok1 {
					if _, ok2 := nodeSet[r.Edge.TargetID]; ok2 {
						edges = append(edges, r.Edge)
					}
				}
			}
		}

		if len(nodeSet) == 0 {
			continue
		}
		var nodes []*types.Node
		for _, n := range nodeSet {
			nodes = append(nodes, n)
		}

		subgraphs = append(subgraphs, ExtractedSubgraphData{Criterion: criterionName, Nodes: nodes, Edges: edges})
	}

	return StageOutput{
		Success: true,
		Summary: fmt.Sprintf("extracted %d subgraphs", len(subgraphs)),
		ContextUpdate: contextSlot("subgraph_extraction", map[string]interface{}{
			"subgraphs": subgraphs,
		}),
	}
}

func (s *SubgraphExtractionStage) resolveCriteria(sess *session.Session) []string {
	if sess.Params != nil && wellFormedStrings(sess.Params.SubgraphExtractionCriteria) {
		return sess.Params.SubgraphExtractionCriteria
	}
	return s.cfg.Defaults.SubgraphExtractionCriteria
}

// criterionFor maps a named criterion to the concrete filter it applies.
// An unrecognized name falls back to the high_confidence_core filter rather
// than failing the stage.
func (s *SubgraphExtractionStage) criterionFor(name string) *graphstore.Criterion {
	switch name {
	case "high_confidence_core":
		return &graphstore.Criterion{MinConfidence: s.cfg.Defaults.SubgraphMinConfidenceThreshold}
	case "key_hypotheses_and_support":
		return &graphstore.Criterion{
			NodeTypes: []types.NodeType{types.NodeHypothesis, types.NodeEvidence},
			MinImpact: s.cfg.Defaults.SubgraphMinImpactThreshold,
		}
	case "knowledge_gaps_focus":
		return &graphstore.Criterion{KnowledgeGapOnly: true}
	default:
		return &graphstore.Criterion{MinConfidence: s.cfg.Defaults.SubgraphMinConfidenceThreshold}
	}
}
