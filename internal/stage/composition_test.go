package stage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmind/internal/session"
	"graphmind/internal/types"
)

func TestCompositionRequiresSubgraphExtractionContext(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	st := NewCompositionStage(repo, cfg)

	sess := session.New("s1", "query", nil)
	out := st.Execute(context.Background(), sess)
	assert.False(t, out.Success)
	assert.Contains(t, out.ErrorMessage, "subgraph_extraction context missing")
}

func TestCompositionSelectsKeyNodesAndDeduplicatesCitations(t *testing.T) {
	repo := newTestRepo(t)
	cfg := newTestConfig()
	st := NewCompositionStage(repo, cfg)

	now := time.Now()
	highConf := types.ConfidenceVector{EmpiricalSupport: 0.8, TheoreticalBasis: 0.8, MethodologicalRigor: 0.8, ConsensusAlignment: 0.8}
	shared := &types.Node{ID: "h1", Type: types.NodeHypothesis, Label: "shared hypothesis", Confidence: highConf, CreatedAt: now, UpdatedAt: now}
	lowImpact := &types.Node{ID: "h2", Type: types.NodeHypothesis, Label: "weak hypothesis", Confidence: types.ConfidenceVector{}, CreatedAt: now, UpdatedAt: now}

	subgraphs := []ExtractedSubgraphData{
		{Criterion: "high_confidence_core", Nodes: []*types.Node{shared, lowImpact}},
		{Criterion: "key_hypotheses_and_support", Nodes: []*types.Node{shared}},
	}

	sess := session.New("s1", "what is the effect", nil)
	sess.AccumulatedContext["subgraph_extraction"] = map[string]interface{}{"subgraphs": subgraphs}

	out := st.Execute(context.Background(), sess)
	require.True(t, out.Success)

	composedRaw := out.ContextUpdate["composition"].(map[string]interface{})
	composed := composedRaw["composed_output"].(ComposedOutput)

	require.Len(t, composed.Sections, 2)
	assert.Contains(t, composed.Title, "what is the effect")

	// "shared" appears in both subgraphs but must only be cited once.
	sharedCitations := 0
	for _, c := range composed.Citations {
		if c.ID == "Node-h1" {
			sharedCitations++
		}
	}
	assert.Equal(t, 1, sharedCitations)

	for _, sec := range composed.Sections {
		for _, claim := range sec.Claims {
			assert.NotContains(t, claim, "weak hypothesis", "a low-confidence/low-impact node must not be selected as a key node")
		}
	}
}
