package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphmind/internal/types"
)

func neutralPrior() types.ConfidenceVector {
	return types.ConfidenceVector{
		EmpiricalSupport:    0.5,
		TheoreticalBasis:    0.5,
		MethodologicalRigor: 0.5,
		ConsensusAlignment:  0.5,
	}
}

func TestUpdateConfidenceClampsEveryComponent(t *testing.T) {
	u := NewConfidenceUpdater()
	for _, strength := range []float64{0, 0.2, 0.5, 0.8, 1.0} {
		for _, supports := range []bool{true, false} {
			res := u.UpdateConfidence(neutralPrior(), strength, supports, EvidenceExperimental, 50)
			p := res.Posterior
			for _, c := range []float64{p.EmpiricalSupport, p.TheoreticalBasis, p.MethodologicalRigor, p.ConsensusAlignment} {
				require.GreaterOrEqual(t, c, 0.0)
				require.LessOrEqual(t, c, 1.0)
			}
		}
	}
}

func TestUpdateConfidenceMonotonicity(t *testing.T) {
	u := NewConfidenceUpdater()
	prior := neutralPrior()

	supportive := u.UpdateConfidence(prior, 0.6, true, EvidenceObservational, 20)
	assert.Greater(t, supportive.Posterior.EmpiricalSupport, prior.EmpiricalSupport)

	contradictory := u.UpdateConfidence(prior, 0.6, false, EvidenceObservational, 20)
	assert.Less(t, contradictory.Posterior.EmpiricalSupport, prior.EmpiricalSupport)
}

func TestUpdateConfidenceZeroStrengthIsIdempotent(t *testing.T) {
	u := NewConfidenceUpdater()
	prior := neutralPrior()
	res := u.UpdateConfidence(prior, 0, true, EvidenceEmpirical, 10)
	assert.InDelta(t, prior.EmpiricalSupport, res.Posterior.EmpiricalSupport, 1e-9)
}

func TestUpdateConfidenceDeterministicExample(t *testing.T) {
	// prior [0.5,0.5,0.5,0.5], strength 0.8, experimental, n=1.
	u := NewConfidenceUpdater()
	prior := neutralPrior()

	supports := u.UpdateConfidence(prior, 0.8, true, EvidenceExperimental, 1)
	require.Greater(t, supports.Posterior.EmpiricalSupport, 0.5)
	require.Less(t, supports.Posterior.EmpiricalSupport, 1.0)

	refutes := u.UpdateConfidence(prior, 0.8, false, EvidenceExperimental, 1)
	require.Less(t, refutes.Posterior.EmpiricalSupport, 0.5)
}

func TestUpdateConfidenceInformationGainNonNegativeWhenInformative(t *testing.T) {
	u := NewConfidenceUpdater()
	res := u.UpdateConfidence(neutralPrior(), 0.9, true, EvidenceExperimental, 100)
	assert.Greater(t, res.InformationGain, 0.0)
}

func TestBaseLikelihoodRatioOrdering(t *testing.T) {
	// At equal strength, experimental evidence should carry a stronger
	// likelihood ratio than expert opinion.
	s := 0.5
	assert.Greater(t, baseLikelihoodRatio(EvidenceExperimental, s), baseLikelihoodRatio(EvidenceExpertOpinion, s))
}

func TestTheoreticalEvidenceMovesTheoreticalBasisFurther(t *testing.T) {
	u := NewConfidenceUpdater()
	prior := neutralPrior()

	byType := u.UpdateConfidence(prior, 0.5, true, EvidenceTheoretical, 1).Posterior.TheoreticalBasis
	byOther := u.UpdateConfidence(prior, 0.5, true, EvidenceEmpirical, 1).Posterior.TheoreticalBasis

	assert.InDelta(t, prior.TheoreticalBasis+0.5*0.3, byType, 1e-9)
	assert.InDelta(t, prior.TheoreticalBasis+0.5*0.1, byOther, 1e-9)
	assert.Greater(t, byType, byOther)
}
