package graphstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmind/internal/types"
)

func sampleNode() *types.Node {
	n := &types.Node{
		ID:   "n1",
		Type: types.NodeHypothesis,
		Confidence: types.ConfidenceVector{
			EmpiricalSupport:    0.5,
			TheoreticalBasis:    0.4,
			MethodologicalRigor: 0.3,
			ConsensusAlignment:  0.2,
		},
		Metadata: types.NodeMetadata{
			Description:  "a hypothesis",
			ImpactScore:  0.7,
			QueryContext: "ctx",
			Plan: &types.Plan{
				Type:          "experiment",
				EstimatedCost: 100,
			},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	n.Metadata.UnionTags([]string{"biology", "chemistry"})
	return n
}

func TestNodePropertiesRoundTrip(t *testing.T) {
	n := sampleNode()
	props, err := NodeProperties(n)
	require.NoError(t, err)

	back, err := NodeFromProperties(props)
	require.NoError(t, err)

	assert.Equal(t, n.ID, back.ID)
	assert.Equal(t, n.Type, back.Type)
	assert.InDelta(t, n.Confidence.EmpiricalSupport, back.Confidence.EmpiricalSupport, 1e-9)
	assert.Equal(t, n.Metadata.Description, back.Metadata.Description)
	assert.ElementsMatch(t, []string{"biology", "chemistry"}, back.Metadata.TagSlice())
	require.NotNil(t, back.Metadata.Plan)
	assert.Equal(t, n.Metadata.Plan.EstimatedCost, back.Metadata.Plan.EstimatedCost)
}

func TestEdgePropertiesRoundTrip(t *testing.T) {
	e := &types.Edge{
		ID:         "e1",
		SourceID:   "n1",
		TargetID:   "n2",
		Type:       types.EdgeSupportive,
		Confidence: 0.8,
		Metadata: types.EdgeMetadata{
			Description: "supports",
			Weight:      0.9,
			CreatedAt:   time.Now(),
		},
	}
	props := EdgeProperties(e)
	back := EdgeFromProperties(props)

	assert.Equal(t, e.ID, back.ID)
	assert.Equal(t, e.Type, back.Type)
	assert.InDelta(t, e.Confidence, back.Confidence, 1e-9)
	assert.InDelta(t, e.Metadata.Weight, back.Metadata.Weight, 1e-9)
}

func TestValidateEdgeTypeRejectsUnknown(t *testing.T) {
	err := ValidateEdgeType(types.EdgeType("NOT_A_REAL_TYPE"))
	assert.ErrorIs(t, err, ErrInvalidStatement)
}

func TestValidateEdgeTypeAcceptsAllowListed(t *testing.T) {
	for et := range types.AllowedEdgeTypes {
		assert.NoError(t, ValidateEdgeType(et))
	}
}
