package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbabilisticMetricsTracksCountsAcrossCategories(t *testing.T) {
	m := NewProbabilisticMetrics()
	m.RecordUpdate("experimental")
	m.RecordUpdate("experimental")
	m.RecordUninformative("experimental")
	m.RecordError()
	m.RecordBeliefCreated()
	m.RecordBeliefsCombined()

	stats := m.GetStats()
	assert.Equal(t, int64(3), stats["updates_total"], "RecordUninformative must also count toward updates_total")
	assert.Equal(t, int64(1), stats["updates_uninformative"])
	assert.Equal(t, int64(1), stats["updates_error"])
	assert.Equal(t, int64(1), stats["beliefs_created"])
	assert.Equal(t, int64(1), stats["beliefs_combined"])
}

func TestGetUninformativeRateIsZeroWithNoUpdates(t *testing.T) {
	m := NewProbabilisticMetrics()
	assert.Equal(t, 0.0, m.GetUninformativeRate())
}

func TestGetUninformativeRateComputesRatio(t *testing.T) {
	m := NewProbabilisticMetrics()
	m.RecordUpdate("experimental")
	m.RecordUpdate("experimental")
	m.RecordUpdate("experimental")
	m.RecordUninformative("experimental")

	assert.InDelta(t, 1.0/4.0, m.GetUninformativeRate(), 1e-9, "RecordUninformative itself adds to the total, so the denominator is 4, not 3")
}

func TestGetErrorRateComputesRatioAcrossSuccessAndErrorCounts(t *testing.T) {
	m := NewProbabilisticMetrics()
	m.RecordUpdate("experimental")
	m.RecordError()

	assert.Equal(t, 0.5, m.GetErrorRate())
}

func TestGetErrorRateIsZeroWithNoActivity(t *testing.T) {
	m := NewProbabilisticMetrics()
	assert.Equal(t, 0.0, m.GetErrorRate())
}
