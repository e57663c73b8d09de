package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// HypothesisStage generates a random number of testable HYPOTHESIS nodes per
// decomposition dimension.
type HypothesisStage struct {
	repo graphstore.Repository
	cfg  *config.Config
}

func NewHypothesisStage(repo graphstore.Repository, cfg *config.Config) *HypothesisStage {
	return &HypothesisStage{repo: repo, cfg: cfg}
}

func (s *HypothesisStage) Name() string   { return "hypothesis" }
func (s *HypothesisStage) Cleanup() error { return nil }

var biasTypes = []types.BiasType{types.BiasConfirmation, types.BiasSelection, types.BiasAnchoring}
var biasSeverities = []types.BiasSeverity{types.BiasSeverityLow, types.BiasSeverityMedium}
var requiredResources = []string{"lab_equipment", "compute_cluster", "field_team", "survey_panel"}

// Execute generates hypotheses for each decomposition dimension.
func (s *HypothesisStage) Execute(ctx context.Context, sess *session.Session) StageOutput {
	decompRaw, ok := sess.ContextSlot("decomposition")
	if !ok {
		return Failure("hypothesis: decomposition context missing")
	}
	decompCtx, ok := decompRaw.(map[string]interface{})
	if !ok {
		return Failure("hypothesis: decomposition context malformed")
	}
	dimensionIDs, _ := decompCtx["dimension_node_ids"].([]string)
	if len(dimensionIDs) == 0 {
		return Failure("hypothesis: no dimension ids available")
	}

	kMin, kMax := s.resolveRange(sess)
	confidence := s.cfg.Defaults.HypothesisConfidenceVector().Clamped()
	planTypes := s.cfg.Defaults.DefaultPlanTypes
	tags := s.cfg.Defaults.DefaultDisciplinaryTags
	now := time.Now()

	var allNodes []*types.Node
	var allEdges []*types.Edge

	for _, dimID := range dimensionIDs {
		dimRecords, err := s.repo.ExecuteQuery(ctx, graphstore.Statement{Op: graphstore.OpGetNode, ID: dimID}, graphstore.ModeRead)
		if err != nil || len(dimRecords) == 0 || dimRecords[0].Node == nil {
			continue
		}
		dim := dimRecords[0].Node

		k := kMin
		if kMax > kMin {
			k = kMin + sess.RNG.Intn(kMax-kMin+1)
		}

		for i := 0; i < k; i++ {
			plan := &types.Plan{
				Type:             types.PlanType(pickString(sess, planTypes)),
				EstimatedCost:    0.2 + sess.RNG.Float64()*0.6,
				DurationDays:     1 + sess.RNG.Float64()*4,
				RequiredResource: pickString(sess, requiredResources),
			}
			falsification := &types.FalsificationCriteria{
				Conditions: []string{
					fmt.Sprintf("observed effect size in %s falls below the minimal detectable threshold", dim.Label),
					fmt.Sprintf("replication attempts in an independent %s cohort fail to reproduce the effect", dim.Label),
				},
			}
			var bias *types.BiasFlag
			if sess.RNG.Float64() < 0.15 {
				bias = &types.BiasFlag{
					Type:     biasTypes[sess.RNG.Intn(len(biasTypes))],
					Severity: biasSeverities[sess.RNG.Intn(len(biasSeverities))],
				}
			}

			n := &types.Node{
				ID:    uuid.NewString(),
				Label: fmt.Sprintf("Hypothesis %d on %s regarding: %s", i+1, dim.Label, sess.Query),
				Type:  types.NodeHypothesis,
				Confidence: confidence,
				Metadata: types.NodeMetadata{
					EpistemicStatus:        types.StatusHypothesis,
					ImpactScore:            0.2 + sess.RNG.Float64()*0.7,
					FalsificationCriteria:  falsification,
					Plan:                   plan,
					Bias:                   bias,
				},
				CreatedAt: now,
				UpdatedAt: now,
			}
			n.Metadata.UnionTags(randomSubset(sess, tags))
			n.Metadata.UnionTags(dim.Metadata.TagSlice())

			allNodes = append(allNodes, n)
			allEdges = append(allEdges, &types.Edge{
				ID:         uuid.NewString(),
				SourceID:   dim.ID,
				TargetID:   n.ID,
				Type:       types.EdgeGeneratesHypothesis,
				Confidence: 0.95,
				Metadata:   types.EdgeMetadata{Weight: 0.95, CreatedAt: now},
			})
		}
	}

	if len(allNodes) == 0 {
		return Failure("hypothesis: no hypotheses generated")
	}

	nodeStmts := make([]graphstore.Statement, 0, len(allNodes))
	for _, n := range allNodes {
		nodeStmts = append(nodeStmts, graphstore.Statement{Op: graphstore.OpUpsertNode, Node: n, Labels: []string{string(types.NodeHypothesis)}})
	}
	if err := s.repo.ExecuteBatch(ctx, nodeStmts, graphstore.ModeWrite); err != nil {
		return Failure("hypothesis: failed to upsert hypotheses: " + err.Error())
	}

	edgeStmts := make([]graphstore.Statement, 0, len(allEdges))
	for _, e := range allEdges {
		edgeStmts = append(edgeStmts, graphstore.Statement{Op: graphstore.OpUpsertEdge, Edge: e})
	}
	if err := s.repo.ExecuteBatch(ctx, edgeStmts, graphstore.ModeWrite); err != nil {
		return Failure("hypothesis: failed to link hypotheses: " + err.Error())
	}

	ids := make([]string, 0, len(allNodes))
	results := make([]map[string]interface{}, 0, len(allNodes))
	for _, n := range allNodes {
		ids = append(ids, n.ID)
		results = append(results, map[string]interface{}{"id": n.ID, "label": n.Label})
	}

	return StageOutput{
		Success: true,
		Summary: fmt.Sprintf("generated %d hypotheses", len(allNodes)),
		ContextUpdate: contextSlot("hypothesis", map[string]interface{}{
			"hypothesis_node_ids": ids,
			"hypotheses_results":  results,
		}),
	}
}

func (s *HypothesisStage) resolveRange(sess *session.Session) (int, int) {
	kMin, kMax := s.cfg.Defaults.HypothesesPerDimensionMin, s.cfg.Defaults.HypothesesPerDimensionMax
	if sess.Params != nil && sess.Params.HypothesesPerDimensionMin != nil && sess.Params.HypothesesPerDimensionMax != nil {
		paramMin := *sess.Params.HypothesesPerDimensionMin
		paramMax := *sess.Params.HypothesesPerDimensionMax
		if paramMin > 0 && paramMax >= paramMin {
			return paramMin, paramMax
		}
	}
	return kMin, kMax
}

func pickString(sess *session.Session, options []string) string {
	if len(options) == 0 {
		return ""
	}
	return options[sess.RNG.Intn(len(options))]
}

func randomSubset(sess *session.Session, options []string) []string {
	if len(options) == 0 {
		return nil
	}
	var out []string
	for _, o := range options {
		if sess.RNG.Float64() < 0.5 {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = append(out, options[sess.RNG.Intn(len(options))])
	}
	return out
}
