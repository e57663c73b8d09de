package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmind/internal/session"
)

func TestHypothesisGeneratesWithinConfiguredRange(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()

	seed := int64(7)
	sess := session.New("s1", "does sleep affect memory", &session.OperationalParams{RandomSeed: &seed})

	initOut := NewInitializationStage(repo, cfg).Execute(context.Background(), sess)
	require.True(t, initOut.Success)
	sess.MergeContextUpdate(initOut.ContextUpdate)

	decompOut := NewDecompositionStage(repo, cfg).Execute(context.Background(), sess)
	require.True(t, decompOut.Success)
	sess.MergeContextUpdate(decompOut.ContextUpdate)

	numDimensions := len(cfg.Defaults.DefaultDecompositionDimensions)

	hypOut := NewHypothesisStage(repo, cfg).Execute(context.Background(), sess)
	require.True(t, hypOut.Success)

	hypCtx := hypOut.ContextUpdate["hypothesis"].(map[string]interface{})
	ids := hypCtx["hypothesis_node_ids"].([]string)

	minTotal := numDimensions * cfg.Defaults.HypothesesPerDimensionMin
	maxTotal := numDimensions * cfg.Defaults.HypothesesPerDimensionMax
	assert.GreaterOrEqual(t, len(ids), minTotal)
	assert.LessOrEqual(t, len(ids), maxTotal)
}

func TestHypothesisReproducibleWithFixedSeed(t *testing.T) {
	seed := int64(123)

	run := func() []string {
		repo := newTestRepo(t)
		cfg := newTestConfig()
		sess := session.New("s1", "identical query for reproducibility", &session.OperationalParams{RandomSeed: &seed})

		initOut := NewInitializationStage(repo, cfg).Execute(context.Background(), sess)
		require.True(t, initOut.Success)
		sess.MergeContextUpdate(initOut.ContextUpdate)

		decompOut := NewDecompositionStage(repo, cfg).Execute(context.Background(), sess)
		require.True(t, decompOut.Success)
		sess.MergeContextUpdate(decompOut.ContextUpdate)

		hypOut := NewHypothesisStage(repo, cfg).Execute(context.Background(), sess)
		require.True(t, hypOut.Success)

		hypCtx := hypOut.ContextUpdate["hypothesis"].(map[string]interface{})
		results := hypCtx["hypotheses_results"].([]map[string]interface{})
		labels := make([]string, len(results))
		for i, r := range results {
			labels[i] = r["label"].(string)
		}
		return labels
	}

	first := run()
	second := run()
	assert.Equal(t, first, second, "identical seed and query must produce identical hypothesis labels")
}

func TestHypothesisFailsWithoutDecompositionContext(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	st := NewHypothesisStage(repo, cfg)

	sess := session.New("s1", "query", nil)
	out := st.Execute(context.Background(), sess)
	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorMessage, "decomposition context missing")
}
