package stage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// PruningMergingStage deletes low-confidence/low-impact nodes and isolated
// nodes, prunes weak edges, and merges near-duplicate hypothesis/evidence
// pairs.
type PruningMergingStage struct {
	repo graphstore.Repository
	cfg  *config.Config
}

func NewPruningMergingStage(repo graphstore.Repository, cfg *config.Config) *PruningMergingStage {
	return &PruningMergingStage{repo: repo, cfg: cfg}
}

func (s *PruningMergingStage) Name() string   { return "pruning_merging" }
func (s *PruningMergingStage) Cleanup() error { return nil }

var prunableTypes = map[types.NodeType]bool{
	types.NodeHypothesis:              true,
	types.NodeEvidence:                true,
	types.NodeInterdisciplinaryBridge: true,
}

// Execute prunes low-confidence nodes and edges, then merges near-duplicate
// hypothesis and evidence nodes.
func (s *PruningMergingStage) Execute(ctx context.Context, sess *session.Session) StageOutput {
	nodesDeleted := 0
	edgesDeleted := 0
	merged := 0

	allNodes, err := s.allNodes(ctx)
	if err != nil {
		return Failure("pruning_merging: failed to read nodes: " + err.Error())
	}
	allEdges, err := s.allEdges(ctx, allNodes)
	if err != nil {
		return Failure("pruning_merging: failed to read edges: " + err.Error())
	}

	degree := make(map[string]int, len(allNodes))
	for _, e := range allEdges {
		degree[e.SourceID]++
		degree[e.TargetID]++
	}

	var toDelete []string
	for _, n := range allNodes {
		if n.Type == types.NodeRoot || n.Type == types.NodeDecompositionDimension {
			continue
		}
		lowConfidenceAndImpact := prunableTypes[n.Type] && n.Confidence.Min() < s.cfg.Defaults.PruningConfidenceThreshold &&
			n.Metadata.ImpactScore < s.cfg.Defaults.PruningImpactThreshold
		isolated := degree[n.ID] == 0
		if lowConfidenceAndImpact || isolated {
			toDelete = append(toDelete, n.ID)
		}
	}
	for _, id := range toDelete {
		if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpDeleteNode, ID: id}}, graphstore.ModeWrite); err == nil {
			nodesDeleted++
		}
	}
	deletedSet := make(map[string]bool, len(toDelete))
	for _, id := range toDelete {
		deletedSet[id] = true
	}

	// liveEdges tracks the edges that actually survive this stage's own
	// node- and edge-prune passes; the merge scan below rewires relationships
	// using this set rather than the pre-prune allEdges snapshot, so it never
	// resurrects an edge that was just deleted for being below
	// PruningEdgeConfidenceThreshold or for pointing at a node this same run
	// deleted — either way leaving an edge with a dangling endpoint.
	liveEdges := make([]*types.Edge, 0, len(allEdges))
	for _, e := range allEdges {
		if deletedSet[e.SourceID] || deletedSet[e.TargetID] || e.Confidence < s.cfg.Defaults.PruningEdgeConfidenceThreshold {
			if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpDeleteEdge, ID: e.ID}}, graphstore.ModeWrite); err == nil {
				edgesDeleted++
			}
			continue
		}
		liveEdges = append(liveEdges, e)
	}

	var survivors []*types.Node
	for _, n := range allNodes {
		if !deletedSet[n.ID] {
			survivors = append(survivors, n)
		}
	}

	scanLimit := s.cfg.Defaults.MergePairScanLimit
	if sess.Params != nil && sess.Params.MergePairScanLimit != nil && *sess.Params.MergePairScanLimit > 0 {
		scanLimit = *sess.Params.MergePairScanLimit
	}

	scanned := 0
	mergedAway := make(map[string]bool)
	for i := 0; i < len(survivors) && scanned < scanLimit; i++ {
		n1 := survivors[i]
		if mergedAway[n1.ID] {
			continue
		}
		if n1.Type != types.NodeHypothesis && n1.Type != types.NodeEvidence {
			continue
		}
		for j := i + 1; j < len(survivors) && scanned < scanLimit; j++ {
			n2 := survivors[j]
			scanned++
			if mergedAway[n2.ID] || n2.Type != n1.Type {
				continue
			}
			// Each unordered pair is scanned once; the node with the smaller
			// id survives and the other is merged into it.
			keep, drop := n1, n2
			if n2.ID < n1.ID {
				keep, drop = n2, n1
			}
			similarity := 0.7*wordJaccard(n1.Label, n2.Label) + 0.3*tagJaccard(n1.Metadata.TagSlice(), n2.Metadata.TagSlice())
			if similarity >= s.cfg.Defaults.MergingSemanticOverlapThreshold {
				if ok, updated := s.mergeInto(ctx, keep, drop, liveEdges); ok {
					mergedAway[drop.ID] = true
					merged++
					liveEdges = updated
					if drop == n1 {
						break
					}
				}
			}
		}
	}

	remainingNodes, _ := s.allNodes(ctx)
	remainingEdges, _ := s.allEdges(ctx, remainingNodes)
	nodeCount, edgeCount := len(remainingNodes), len(remainingEdges)

	return StageOutput{
		Success: true,
		Summary: fmt.Sprintf("pruned %d nodes, %d edges, merged %d pairs", nodesDeleted, edgesDeleted, merged),
		ContextUpdate: contextSlot("pruning_merging", map[string]interface{}{
			"nodes_deleted":      nodesDeleted,
			"edges_deleted":      edgesDeleted,
			"pairs_merged":       merged,
			"remaining_nodes":    nodeCount,
			"remaining_edges":    edgeCount,
		}),
	}
}

func (s *PruningMergingStage) allNodes(ctx context.Context) ([]*types.Node, error) {
	records, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{
		Op:        graphstore.OpSeedByCriterion,
		Criterion: &graphstore.Criterion{MinConfidence: 0},
	}, graphstore.ModeRead)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range records {
		ids = append(ids, r.IDs...)
	}
	var nodes []*types.Node
	for _, id := range ids {
		recs, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{Op: graphstore.OpGetNode, ID: id}, graphstore.ModeRead)
		if err == nil && len(recs) > 0 && recs[0].Node != nil {
			nodes = append(nodes, recs[0].Node)
		}
	}
	return nodes, nil
}

func (s *PruningMergingStage) allEdges(ctx context.Context, nodes []*types.Node) ([]*types.Edge, error) {
	var ids []string
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	records, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{Op: graphstore.OpExpandSubgraph, SeedIDs: ids, Depth: 1}, graphstore.ModeRead)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var edges []*types.Edge
	for _, r := range records {
		if r.Edge != nil && !seen[r.Edge.ID] {
			seen[r.Edge.ID] = true
			edges = append(edges, r.Edge)
		}
	}
	return edges, nil
}

// mergeInto merges n2 into n1: averages confidence, keeps the longer label,
// copies n2's inbound/outbound relationships onto n1 (deduplicated by
// endpoint+type against n1's existing edges), then detach-deletes n2. edges must already reflect this run's own node- and
// edge-prune passes (the caller's liveEdges, never the pre-prune snapshot),
// since nothing here re-checks that an edge or its other endpoint still
// exists before rewiring it onto n1. It returns the edge set as it stands
// after this merge, for the caller to thread into the next merge in the same
// scan.
func (s *PruningMergingStage) mergeInto(ctx context.Context, n1, n2 *types.Node, edges []*types.Edge) (bool, []*types.Edge) {
	priorConfidence := n1.Confidence
	priorTags := n1.Metadata.TagSlice()
	n1.Confidence = types.ConfidenceVector{
		EmpiricalSupport:    (n1.Confidence.EmpiricalSupport + n2.Confidence.EmpiricalSupport) / 2,
		TheoreticalBasis:    (n1.Confidence.TheoreticalBasis + n2.Confidence.TheoreticalBasis) / 2,
		MethodologicalRigor: (n1.Confidence.MethodologicalRigor + n2.Confidence.MethodologicalRigor) / 2,
		ConsensusAlignment:  (n1.Confidence.ConsensusAlignment + n2.Confidence.ConsensusAlignment) / 2,
	}.Clamped()
	if len(n2.Label) > len(n1.Label) {
		n1.Label = n2.Label
	}
	n1.Metadata.Revise("confidence", priorConfidence.String(), n1.Confidence.String())
	if tagsChanged := n1.Metadata.UnionTags(n2.Metadata.TagSlice()); tagsChanged {
		n1.Metadata.Revise("disciplinary_tags", strings.Join(priorTags, ","), strings.Join(n1.Metadata.TagSlice(), ","))
	}
	n1.UpdatedAt = time.Now()

	if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertNode, Node: n1}}, graphstore.ModeWrite); err != nil {
		return false, edges
	}

	existing := make(map[string]bool, len(edges))
	for _, e := range edges {
		if e.SourceID == n1.ID {
			existing[string(e.Type)+"|"+e.TargetID] = true
		}
		if e.TargetID == n1.ID {
			existing[string(e.Type)+"|"+e.SourceID] = true
		}
	}

	remaining := make([]*types.Edge, 0, len(edges))
	for _, e := range edges {
		if e.SourceID != n2.ID && e.TargetID != n2.ID {
			remaining = append(remaining, e)
			continue
		}
		other := e.TargetID
		if e.SourceID != n2.ID {
			other = e.SourceID
		}
		if other == n1.ID {
			continue // a direct n1<->n2 edge is dropped, not rewired to a self-loop
		}
		key := string(e.Type) + "|" + other
		if existing[key] {
			continue // n1 already has an equivalent edge; n2's copy is dropped, not carried forward
		}
		existing[key] = true
		rewired := *e
		if e.SourceID == n2.ID {
			rewired.SourceID = n1.ID
		} else {
			rewired.TargetID = n1.ID
		}
		if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertEdge, Edge: &rewired}}, graphstore.ModeWrite); err == nil {
			remaining = append(remaining, &rewired)
		}
	}

	if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpDeleteNode, ID: n2.ID}}, graphstore.ModeWrite); err != nil {
		return false, remaining
	}
	return true, remaining
}

func wordJaccard(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	return setJaccard(wordsA, wordsB)
}

func tagJaccard(a, b []string) float64 {
	return setJaccard(a, b)
}

func setJaccard(a, b []string) float64 {
	setA := make(map[string]bool, len(a))
	for _, w := range a {
		setA[w] = true
	}
	setB := make(map[string]bool, len(b))
	for _, w := range b {
		setB[w] = true
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}
	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA)
	for w := range setB {
		if !setA[w] {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
