package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySupportClearSupport(t *testing.T) {
	c := ClassifySupport(
		"This large randomized study confirms and demonstrates that the intervention supports the proposed mechanism.",
		"the intervention supports the proposed mechanism",
	)
	assert.True(t, c.Supports)
	assert.Greater(t, c.NetScore, 1.5)
	assert.LessOrEqual(t, c.Confidence, 0.9)
}

func TestClassifySupportClearContradiction(t *testing.T) {
	c := ClassifySupport(
		"The trial refutes and disproves the hypothesis, directly contradicting earlier claims.",
		"hypothesis about the mechanism",
	)
	assert.False(t, c.Supports)
	assert.Less(t, c.NetScore, -1.5)
}

func TestClassifySupportNegationFlipsDirection(t *testing.T) {
	c := ClassifySupport(
		"The data does not support the proposed relationship between these factors.",
		"proposed relationship between factors",
	)
	assert.Less(t, c.NetScore, 0.0)
}

func TestClassifySupportNeutralFloorsConfidence(t *testing.T) {
	c := ClassifySupport("An unrelated passage about something else entirely.", "a specific testable hypothesis")
	assert.GreaterOrEqual(t, c.Confidence, 0.1)
}

func TestClassifySupportConfidenceNeverBelowFloor(t *testing.T) {
	for _, text := range []string{"", "irrelevant", "refutes"} {
		c := ClassifySupport(text, "hypothesis label")
		assert.GreaterOrEqual(t, c.Confidence, 0.1)
	}
}

func TestClassifySupportCountsIndicatorTermHits(t *testing.T) {
	c := ClassifySupport(
		"This study confirms the mechanism and supports the downstream effect.",
		"the downstream effect",
	)
	assert.Equal(t, 2, c.SupportHits)
	assert.Equal(t, 0, c.ContradictHits)

	c = ClassifySupport(
		"The replication does not support the claim and directly contradicts it.",
		"the claim",
	)
	assert.Equal(t, 2, c.ContradictHits, "one indicator term plus one negation pattern")
	assert.Equal(t, 0, c.SupportHits)
}
