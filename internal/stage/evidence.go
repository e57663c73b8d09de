package stage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"graphmind/internal/analysis"
	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/reasoning"
	"graphmind/internal/retrieval"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// EvidenceStage is the hardest single stage: for up to evidence_max_iterations
// rounds it selects a hypothesis, retrieves candidate evidence in parallel
// from every adapter, classifies support, persists EVIDENCE nodes, runs a
// Bayesian confidence update, and opportunistically creates interdisciplinary
// bridge and hyperedge center nodes. A hypothesis that comes away from its one
// processing turn with no persisted evidence gets a PLACEHOLDER_GAP node
// instead, surfacing it to SubgraphExtraction's knowledge_gaps_focus
// criterion and Reflection's knowledge-gap coverage check.
type EvidenceStage struct {
	repo     graphstore.Repository
	cfg      *config.Config
	adapters *retrieval.AdapterSet
	updater  *reasoning.ConfidenceUpdater
}

// NewEvidenceStage constructs the stage with its own adapter set and
// confidence updater; adapters are never shared across stage instances.
func NewEvidenceStage(repo graphstore.Repository, cfg *config.Config, adapters *retrieval.AdapterSet) *EvidenceStage {
	return &EvidenceStage{repo: repo, cfg: cfg, adapters: adapters, updater: reasoning.NewConfidenceUpdater()}
}

func (s *EvidenceStage) Name() string { return "evidence" }

// Cleanup always closes every retrieval adapter, whether Execute succeeded
// or raised.
func (s *EvidenceStage) Cleanup() error {
	if s.adapters == nil {
		return nil
	}
	return s.adapters.Close()
}

type evidenceCandidate struct {
	node  *types.Node
	score float64
}

// Execute runs the iterative evidence loop: select the most promising
// hypothesis, retrieve articles for it across all adapters, classify and
// persist each result, and fold it into the hypothesis confidence.
func (s *EvidenceStage) Execute(ctx context.Context, sess *session.Session) StageOutput {
	hypRaw, ok := sess.ContextSlot("hypothesis")
	if !ok {
		return Failure("evidence: hypothesis context missing")
	}
	hypCtx, ok := hypRaw.(map[string]interface{})
	if !ok {
		return Failure("evidence: hypothesis context malformed")
	}
	hypIDs, _ := hypCtx["hypothesis_node_ids"].([]string)
	if len(hypIDs) == 0 {
		return Failure("evidence: no hypotheses available")
	}

	maxIterations := s.cfg.Defaults.EvidenceMaxIterations
	if sess.Params != nil && sess.Params.EvidenceMaxIterations != nil && *sess.Params.EvidenceMaxIterations > 0 {
		maxIterations = *sess.Params.EvidenceMaxIterations
	}

	processed := make(map[string]bool)
	evidenceCreated := 0
	iterationsCompleted := 0
	var ibnCreated, hyperedgesCreated, knowledgeGapsCreated int
	var supportiveCreated int

	for iter := 0; iter < maxIterations; iter++ {
		iterationsCompleted++

		hyp := s.selectHypothesis(ctx, hypIDs, processed)
		if hyp == nil {
			break
		}
		processed[hyp.ID] = true

		query := hyp.Label
		if hyp.Metadata.Plan != nil && hyp.Metadata.Plan.Query != "" {
			query = hyp.Metadata.Plan.Query
		}

		articles := s.retrieveAll(ctx, query)
		if len(articles) == 0 {
			if s.createKnowledgeGap(ctx, hyp) {
				knowledgeGapsCreated++
			}
			continue
		}

		createdThisIteration := 0
		now := time.Now()

		for _, art := range articles {
			text := art.Title + ". " + art.Snippet
			classification := analysis.ClassifySupport(text, hyp.Label)

			power := statisticalPowerFor(classification, art.CitedByCount)
			status := types.StatusEvidenceSupported
			edgeType := types.EdgeSupportive
			if !classification.Supports {
				status = types.StatusEvidenceContradicted
				edgeType = types.EdgeContradictory
			}

			evNode := &types.Node{
				ID:    uuid.NewString(),
				Label: art.Title,
				Type:  types.NodeEvidence,
				Confidence: types.ConfidenceVector{
					EmpiricalSupport:    classification.Confidence,
					TheoreticalBasis:    0.5,
					MethodologicalRigor: classification.Confidence * 0.8,
					ConsensusAlignment:  0.5,
				}.Clamped(),
				Metadata: types.NodeMetadata{
					Description:       art.Snippet,
					SourceDescription: art.URL,
					EpistemicStatus:   status,
					ImpactScore:       clamp01(classification.Confidence * power.Value),
					DOI:               art.DOI,
					Authors:           art.Authors,
					PublicationDate:   art.PublicationDate,
					StatisticalPower:  power,
				},
				CreatedAt: now,
				UpdatedAt: now,
			}
			evNode.Metadata.UnionTags(hyp.Metadata.TagSlice())

			if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{
				{Op: graphstore.OpUpsertNode, Node: evNode, Labels: []string{string(types.NodeEvidence)}},
			}, graphstore.ModeWrite); err != nil {
				continue
			}

			if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{
				{Op: graphstore.OpUpsertEdge, Edge: &types.Edge{
					ID:         uuid.NewString(),
					SourceID:   evNode.ID,
					TargetID:   hyp.ID,
					Type:       edgeType,
					Confidence: classification.Confidence,
					Metadata:   types.EdgeMetadata{Weight: classification.Confidence, CreatedAt: now},
				}},
			}, graphstore.ModeWrite); err != nil {
				continue
			}

			evidenceCreated++
			createdThisIteration++
			if classification.Supports {
				supportiveCreated++
			}

			priorConfidence := hyp.Confidence
			update := s.updater.UpdateConfidence(hyp.Confidence, classification.Confidence, classification.Supports,
				reasoning.EvidenceEmpirical, power.SampleSize)
			hyp.Confidence = update.Posterior
			hyp.Metadata.Revise("confidence", priorConfidence.String(), hyp.Confidence.String())
			hyp.UpdatedAt = now
			_ = s.repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertNode, Node: hyp}}, graphstore.ModeWrite)

			if ibn := s.maybeCreateBridge(ctx, hyp, evNode); ibn {
				ibnCreated++
			}
		}

		if createdThisIteration >= s.cfg.Defaults.MinNodesForHyperedge {
			if s.createHyperedge(ctx, hyp) {
				hyperedgesCreated++
			}
		} else if createdThisIteration == 0 {
			if s.createKnowledgeGap(ctx, hyp) {
				knowledgeGapsCreated++
			}
		}
	}

	// The temporal-decay and topology-adaptation steps are deliberate
	// no-ops that only report their status.
	metrics := map[string]interface{}{
		"evidence_nodes_created_in_neo4j": evidenceCreated,
		"iterations_completed":            iterationsCompleted,
		"ibn_created":                     ibnCreated,
		"hyperedges_created":              hyperedgesCreated,
		"knowledge_gaps_created":          knowledgeGapsCreated,
		"temporal_decay":                  map[string]string{"stage": "evidence", "action": "temporal_decay", "status": "not_run"},
		"topology_adaptation":             map[string]string{"stage": "evidence", "action": "topology_adaptation", "status": "not_run"},
	}
	if evidenceCreated > 0 {
		// Shannon entropy of the supportive/contradictory split: 0 when
		// every item points one way, 1 bit when the run is evenly torn.
		pSupport := float64(supportiveCreated) / float64(evidenceCreated)
		metrics["evidence_direction_entropy"] = reasoning.Entropy([]float64{pSupport, 1 - pSupport})
	}

	return StageOutput{
		Success: true,
		Summary: fmt.Sprintf("gathered %d evidence items over %d iterations", evidenceCreated, iterationsCompleted),
		ContextUpdate: contextSlot("evidence", map[string]interface{}{
			"evidence_nodes_created_in_neo4j": evidenceCreated,
			"iterations_completed":            iterationsCompleted,
		}),
		Metrics: metrics,
	}
}

// selectHypothesis picks up to 10 unprocessed candidates ordered by
// impact_score DESC, empirical_support ASC, then re-ranks in memory by
// impact + variance(confidence components centered at 0.5).
func (s *EvidenceStage) selectHypothesis(ctx context.Context, hypIDs []string, processed map[string]bool) *types.Node {
	var candidates []evidenceCandidate
	for _, id := range hypIDs {
		if processed[id] {
			continue
		}
		records, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{Op: graphstore.OpGetNode, ID: id}, graphstore.ModeRead)
		if err != nil || len(records) == 0 || records[0].Node == nil {
			continue
		}
		n := records[0].Node
		score := n.Metadata.ImpactScore + confidenceVariance(n.Confidence)
		candidates = append(candidates, evidenceCandidate{node: n, score: score})
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i].node, candidates[j].node
		if a.Metadata.ImpactScore != b.Metadata.ImpactScore {
			return a.Metadata.ImpactScore > b.Metadata.ImpactScore
		}
		return a.Confidence.EmpiricalSupport < b.Confidence.EmpiricalSupport
	})
	if len(candidates) > 10 {
		candidates = candidates[:10]
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}
	return best.node
}

func confidenceVariance(c types.ConfidenceVector) float64 {
	values := []float64{c.EmpiricalSupport, c.TheoreticalBasis, c.MethodologicalRigor, c.ConsensusAlignment}
	var sum float64
	for _, v := range values {
		d := v - 0.5
		sum += d * d
	}
	return sum / float64(len(values))
}

// retrieveAll fans out the query to every available adapter under the
// shared bounded semaphore, collecting up to 2 results per adapter;
// per-adapter failures are skipped, not fatal to the stage.
func (s *EvidenceStage) retrieveAll(ctx context.Context, query string) []retrieval.ArticleRecord {
	if s.adapters == nil || len(s.adapters.Adapters) == 0 {
		return nil
	}

	results := make(chan []retrieval.ArticleRecord, len(s.adapters.Adapters))
	for _, adapter := range s.adapters.Adapters {
		adapter := adapter
		go func() {
			if err := s.adapters.Semaphore.Acquire(ctx); err != nil {
				results <- nil
				return
			}
			defer s.adapters.Semaphore.Release()
			articles, err := adapter.Search(ctx, query, 2)
			if err != nil {
				results <- nil
				return
			}
			results <- articles
		}()
	}

	var out []retrieval.ArticleRecord
	for range s.adapters.Adapters {
		batch := <-results
		out = append(out, batch...)
	}
	return out
}

// maybeCreateBridge creates an interdisciplinary bridge node between a
// hypothesis and one piece of evidence when their tag sets are non-empty,
// share at least one tag, and the labels are similar enough.
func (s *EvidenceStage) maybeCreateBridge(ctx context.Context, hyp, evidence *types.Node) bool {
	hypTags := hyp.Metadata.TagSlice()
	evTags := evidence.Metadata.TagSlice()
	if len(hypTags) == 0 || len(evTags) == 0 {
		return false
	}
	if !sharesAtLeastOneTag(hypTags, evTags) {
		return false
	}
	similarity := labelSimilarity(hyp.Label, evidence.Label)
	if similarity < s.cfg.Defaults.IBNSimilarityThreshold {
		return false
	}

	now := time.Now()
	ibn := &types.Node{
		ID:    uuid.NewString(),
		Label: "Bridge: " + hyp.Label + " <-> " + evidence.Label,
		Type:  types.NodeInterdisciplinaryBridge,
		Confidence: types.ConfidenceVector{
			EmpiricalSupport:    similarity,
			TheoreticalBasis:    0.4,
			MethodologicalRigor: 0.5,
			ConsensusAlignment:  0.3,
		}.Clamped(),
		Metadata:  types.NodeMetadata{EpistemicStatus: types.StatusInferred},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{
		{Op: graphstore.OpUpsertNode, Node: ibn, Labels: []string{string(types.NodeInterdisciplinaryBridge)}},
	}, graphstore.ModeWrite); err != nil {
		return false
	}

	edges := []graphstore.Statement{
		{Op: graphstore.OpUpsertEdge, Edge: &types.Edge{
			ID: uuid.NewString(), SourceID: evidence.ID, TargetID: ibn.ID,
			Type: types.EdgeIBNSourceLink, Confidence: similarity,
			Metadata: types.EdgeMetadata{Weight: similarity, CreatedAt: now},
		}},
		{Op: graphstore.OpUpsertEdge, Edge: &types.Edge{
			ID: uuid.NewString(), SourceID: ibn.ID, TargetID: hyp.ID,
			Type: types.EdgeIBNTargetLink, Confidence: similarity,
			Metadata: types.EdgeMetadata{Weight: similarity, CreatedAt: now},
		}},
	}
	return s.repo.ExecuteBatch(ctx, edges, graphstore.ModeWrite) == nil
}

// createHyperedge reifies a hyperedge center over a hypothesis and its
// evidence. It only fires after the evidence-count threshold check in
// Execute, so it re-reads the hypothesis's
// current evidence neighborhood via expandSubgraph to gather members.
func (s *EvidenceStage) createHyperedge(ctx context.Context, hyp *types.Node) bool {
	records, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{
		Op: graphstore.OpExpandSubgraph, SeedIDs: []string{hyp.ID}, Depth: 1,
	}, graphstore.ModeRead)
	if err != nil {
		return false
	}

	var members []*types.Node
	var empiricalSum float64
	empiricalSum += hyp.Confidence.EmpiricalSupport
	count := 1
	for _, r := range records {
		if r.Node != nil && r.Node.Type == types.NodeEvidence {
			members = append(members, r.Node)
			empiricalSum += r.Node.Confidence.EmpiricalSupport
			count++
		}
	}
	if len(members) < s.cfg.Defaults.MinNodesForHyperedge-1 {
		return false
	}

	now := time.Now()
	center := &types.Node{
		ID:    uuid.NewString(),
		Label: "Hyperedge: " + hyp.Label,
		Type:  types.NodeHyperedgeCenter,
		Confidence: types.ConfidenceVector{
			EmpiricalSupport: empiricalSum / float64(count),
		}.Clamped(),
		Metadata:  types.NodeMetadata{EpistemicStatus: types.StatusInferred},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{
		{Op: graphstore.OpUpsertNode, Node: center, Labels: []string{string(types.NodeHyperedgeCenter)}},
	}, graphstore.ModeWrite); err != nil {
		return false
	}

	memberEdges := []graphstore.Statement{
		{Op: graphstore.OpUpsertEdge, Edge: &types.Edge{
			ID: uuid.NewString(), SourceID: center.ID, TargetID: hyp.ID,
			Type: types.EdgeHasMember, Confidence: 1.0, Metadata: types.EdgeMetadata{Weight: 1.0, CreatedAt: now},
		}},
	}
	for _, m := range members {
		memberEdges = append(memberEdges, graphstore.Statement{Op: graphstore.OpUpsertEdge, Edge: &types.Edge{
			ID: uuid.NewString(), SourceID: center.ID, TargetID: m.ID,
			Type: types.EdgeHasMember, Confidence: 1.0, Metadata: types.EdgeMetadata{Weight: 1.0, CreatedAt: now},
		}})
	}
	return s.repo.ExecuteBatch(ctx, memberEdges, graphstore.ModeWrite) == nil
}

// createKnowledgeGap persists a PLACEHOLDER_GAP node marking a hypothesis
// that came away from this run with no supporting or contradicting evidence,
// linking it back to the hypothesis via IDENTIFIES_GAP. Consumed downstream
// by SubgraphExtraction's knowledge_gaps_focus criterion and Reflection's
// knowledge-gap coverage check.
func (s *EvidenceStage) createKnowledgeGap(ctx context.Context, hyp *types.Node) bool {
	now := time.Now()
	gap := &types.Node{
		ID:    uuid.NewString(),
		Label: "Knowledge gap: " + hyp.Label,
		Type:  types.NodePlaceholderGap,
		Confidence: types.ConfidenceVector{
			EmpiricalSupport:    0.1,
			TheoreticalBasis:    hyp.Confidence.TheoreticalBasis,
			MethodologicalRigor: 0.1,
			ConsensusAlignment:  0.1,
		}.Clamped(),
		Metadata: types.NodeMetadata{
			Description:     "no evidence retrieved or persisted for this hypothesis",
			EpistemicStatus: types.StatusUnknown,
			ImpactScore:     hyp.Metadata.ImpactScore,
			IsKnowledgeGap:  true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	gap.Metadata.UnionTags(hyp.Metadata.TagSlice())

	if err := s.repo.ExecuteBatch(ctx, []graphstore.Statement{
		{Op: graphstore.OpUpsertNode, Node: gap, Labels: []string{string(types.NodePlaceholderGap)}},
	}, graphstore.ModeWrite); err != nil {
		return false
	}

	return s.repo.ExecuteBatch(ctx, []graphstore.Statement{
		{Op: graphstore.OpUpsertEdge, Edge: &types.Edge{
			ID: uuid.NewString(), SourceID: hyp.ID, TargetID: gap.ID,
			Type: types.EdgeIdentifiesGap, Confidence: 0.5,
			Metadata: types.EdgeMetadata{Weight: 0.5, CreatedAt: now},
		}},
	}, graphstore.ModeWrite) == nil
}

func sharesAtLeastOneTag(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	for _, t := range b {
		if set[t] {
			return true
		}
	}
	return false
}

// labelSimilarity is a Jaccard word-overlap proxy for cosine similarity
// between two labels.
func labelSimilarity(a, b string) float64 {
	wordsA := splitWords(a)
	wordsB := splitWords(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	intersection := 0
	for _, w := range wordsB {
		if setA[w] {
			intersection++
		}
	}
	union := len(setA)
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		if !setA[w] && !setB[w] {
			union++
		}
		setB[w] = true
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	for _, r := range s {
		lower := r
		if lower >= 'A' && lower <= 'Z' {
			lower += 'a' - 'A'
		}
		if lower >= 'a' && lower <= 'z' {
			cur = append(cur, lower)
		} else if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

// statisticalPowerFor grades how decisively the classifier's indicator-term
// evidence points one way: the Wilson interval around the dominant-direction
// hit proportion narrows as hits accumulate, and one minus its width is the
// recorded power. A record with no term hits at all (overlap-only
// classification) keeps a weak floor. The sample size is the article's
// citation count, standing in for study size when the record carries one.
func statisticalPowerFor(c analysis.Classification, citedByCount int) *types.StatisticalPower {
	sample := citedByCount
	if sample < 1 {
		sample = 1
	}
	total := c.SupportHits + c.ContradictHits
	if total == 0 {
		return &types.StatisticalPower{Value: 0.3, SampleSize: sample}
	}
	dominant := c.SupportHits
	if c.ContradictHits > dominant {
		dominant = c.ContradictHits
	}
	lower, upper := reasoning.ProportionConfidenceInterval(dominant, total, 1.96)
	return &types.StatisticalPower{Value: clamp01(1 - (upper - lower)), SampleSize: sample}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
