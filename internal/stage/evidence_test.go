package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmind/internal/analysis"
	"graphmind/internal/graphstore"
	"graphmind/internal/retrieval"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// fakeRetrievalAdapter is a network-free stand-in for retrieval.Adapter,
// used to drive EvidenceStage without any real HTTP adapter.
type fakeRetrievalAdapter struct {
	name string
	recs []retrieval.ArticleRecord
}

func (f fakeRetrievalAdapter) Name() string { return f.name }
func (f fakeRetrievalAdapter) Close() error { return nil }
func (f fakeRetrievalAdapter) Search(ctx context.Context, query string, limit int) ([]retrieval.ArticleRecord, error) {
	return f.recs, nil
}

func newTestAdapterSet(adapters ...retrieval.Adapter) *retrieval.AdapterSet {
	return &retrieval.AdapterSet{Adapters: adapters, Semaphore: retrieval.NewSemaphore(3)}
}

func TestEvidenceRequiresHypothesisContext(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	st := NewEvidenceStage(repo, cfg, newTestAdapterSet())

	sess := session.New("s1", "query", nil)
	out := st.Execute(context.Background(), sess)
	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorMessage, "hypothesis context missing")
}

func TestEvidenceCreatesNodesFromRetrievedArticlesAndUpdatesHypothesisConfidence(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	ctx := context.Background()
	now := time.Now()

	hyp := &types.Node{
		ID: "h1", Type: types.NodeHypothesis, Label: "caffeine improves alertness", CreatedAt: now, UpdatedAt: now,
		Confidence: types.ConfidenceVector{EmpiricalSupport: 0.5, TheoreticalBasis: 0.5, MethodologicalRigor: 0.5, ConsensusAlignment: 0.5},
	}
	require.NoError(t, repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertNode, Node: hyp}}, graphstore.ModeWrite))

	adapter := fakeRetrievalAdapter{name: "biomedical", recs: []retrieval.ArticleRecord{
		{Title: "RCT shows caffeine improves alertness", Snippet: "a randomized controlled trial found strong support", URL: "https://example.org/a"},
	}}

	st := NewEvidenceStage(repo, cfg, newTestAdapterSet(adapter))
	sess := session.New("s1", "does caffeine improve alertness?", &session.OperationalParams{})
	one := 1
	sess.Params.EvidenceMaxIterations = &one
	sess.AccumulatedContext["hypothesis"] = map[string]interface{}{"hypothesis_node_ids": []string{"h1"}}

	out := st.Execute(ctx, sess)
	require.True(t, out.Success)

	evCtx := out.ContextUpdate["evidence"].(map[string]interface{})
	assert.Equal(t, 1, evCtx["evidence_nodes_created_in_neo4j"])

	recs, err := repo.ExecuteQuery(ctx, graphstore.Statement{Op: graphstore.OpGetNode, ID: "h1"}, graphstore.ModeRead)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotEqual(t, 0.5, recs[0].Node.Confidence.EmpiricalSupport, "a Bayesian update from new evidence must move the hypothesis's confidence off its prior")
}

func TestEvidenceSkipsIterationWithNoRetrievedArticles(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	ctx := context.Background()
	now := time.Now()

	hyp := &types.Node{ID: "h1", Type: types.NodeHypothesis, Label: "untested hypothesis", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertNode, Node: hyp}}, graphstore.ModeWrite))

	st := NewEvidenceStage(repo, cfg, newTestAdapterSet(fakeRetrievalAdapter{name: "biomedical"}))
	sess := session.New("s1", "query", &session.OperationalParams{})
	one := 1
	sess.Params.EvidenceMaxIterations = &one
	sess.AccumulatedContext["hypothesis"] = map[string]interface{}{"hypothesis_node_ids": []string{"h1"}}

	out := st.Execute(ctx, sess)
	require.True(t, out.Success)
	evCtx := out.ContextUpdate["evidence"].(map[string]interface{})
	assert.Equal(t, 0, evCtx["evidence_nodes_created_in_neo4j"])
}

func TestEvidenceCreatesKnowledgeGapWhenNoArticlesRetrieved(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	ctx := context.Background()
	now := time.Now()

	hyp := &types.Node{ID: "h1", Type: types.NodeHypothesis, Label: "untested hypothesis", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.ExecuteBatch(ctx, []graphstore.Statement{{Op: graphstore.OpUpsertNode, Node: hyp}}, graphstore.ModeWrite))

	st := NewEvidenceStage(repo, cfg, newTestAdapterSet(fakeRetrievalAdapter{name: "biomedical"}))
	sess := session.New("s1", "query", &session.OperationalParams{})
	one := 1
	sess.Params.EvidenceMaxIterations = &one
	sess.AccumulatedContext["hypothesis"] = map[string]interface{}{"hypothesis_node_ids": []string{"h1"}}

	out := st.Execute(ctx, sess)
	require.True(t, out.Success)
	assert.Equal(t, 1, out.Metrics["knowledge_gaps_created"])

	all, err := repo.ExecuteQuery(ctx, graphstore.Statement{
		Op: graphstore.OpSeedByCriterion, Criterion: &graphstore.Criterion{NodeTypes: []types.NodeType{types.NodePlaceholderGap}},
	}, graphstore.ModeRead)
	require.NoError(t, err)
	require.Len(t, all, 1)
	var ids []string
	for _, r := range all {
		ids = append(ids, r.IDs...)
	}
	require.Len(t, ids, 1)

	gapRecs, err := repo.ExecuteQuery(ctx, graphstore.Statement{Op: graphstore.OpGetNode, ID: ids[0]}, graphstore.ModeRead)
	require.NoError(t, err)
	require.Len(t, gapRecs, 1)
	assert.True(t, gapRecs[0].Node.Metadata.IsKnowledgeGap)
}

func TestEvidenceCleanupClosesAdapterSet(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	st := NewEvidenceStage(repo, cfg, newTestAdapterSet(fakeRetrievalAdapter{name: "biomedical"}))
	assert.NoError(t, st.Cleanup())
}

func TestStatisticalPowerGrowsWithIndicatorHits(t *testing.T) {
	none := statisticalPowerFor(analysis.Classification{}, 0)
	assert.InDelta(t, 0.3, none.Value, 1e-9, "overlap-only classifications keep the weak floor")
	assert.Equal(t, 1, none.SampleSize)

	weak := statisticalPowerFor(analysis.Classification{SupportHits: 1}, 0)
	strong := statisticalPowerFor(analysis.Classification{SupportHits: 5}, 40)
	assert.Greater(t, strong.Value, weak.Value, "more concordant hits narrow the interval and raise the power")
	assert.Equal(t, 40, strong.SampleSize)

	split := statisticalPowerFor(analysis.Classification{SupportHits: 3, ContradictHits: 3}, 1)
	oneway := statisticalPowerFor(analysis.Classification{SupportHits: 6}, 1)
	assert.Greater(t, oneway.Value, split.Value, "an evenly split signal is weaker than a unanimous one")
}
