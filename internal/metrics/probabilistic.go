package metrics

import "sync"

// ProbabilisticMetrics tracks outcomes of reasoning.ConfidenceUpdater's
// Bayesian confidence updates, with a per-evidence-type count of updates.
// The per-type count adds informative and uninformative updates together;
// the uninformative count is kept only in aggregate.
type ProbabilisticMetrics struct {
	mu sync.Mutex

	updatesTotal          int64
	updatesUninformative  int64
	updatesError          int64
	beliefsCreated        int64
	beliefsCombined       int64
	updatesByEvidenceType map[string]int64
}

// NewProbabilisticMetrics creates a new probabilistic metrics tracker.
func NewProbabilisticMetrics() *ProbabilisticMetrics {
	return &ProbabilisticMetrics{
		updatesByEvidenceType: make(map[string]int64),
	}
}

// RecordUpdate records a successful belief update for the given evidence
// type (reasoning.EvidenceType, passed as a string to avoid an import cycle
// with the reasoning package).
func (m *ProbabilisticMetrics) RecordUpdate(evidenceType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatesTotal++
	m.updatesByEvidenceType[evidenceType]++
}

// RecordUninformative records an update where evidence strength was zero and
// the prior passed through unchanged. It still counts toward updates_total,
// matching RecordUpdate's accounting, since "uninformative" describes the
// evidence, not a rejected update.
func (m *ProbabilisticMetrics) RecordUninformative(evidenceType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatesTotal++
	m.updatesUninformative++
	m.updatesByEvidenceType[evidenceType]++
}

// RecordError records a failed update attempt (validation errors, etc.).
func (m *ProbabilisticMetrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatesError++
}

// RecordBeliefCreated records a new belief/hypothesis confidence vector
// being seeded for the first time.
func (m *ProbabilisticMetrics) RecordBeliefCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beliefsCreated++
}

// RecordBeliefsCombined records a belief-combination operation, e.g. two
// hypothesis nodes merging their confidence vectors during pruning/merging.
func (m *ProbabilisticMetrics) RecordBeliefsCombined() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beliefsCombined++
}

// GetStats returns the aggregate counters, independent of evidence type.
func (m *ProbabilisticMetrics) GetStats() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int64{
		"updates_total":         m.updatesTotal,
		"updates_uninformative": m.updatesUninformative,
		"updates_error":         m.updatesError,
		"beliefs_created":       m.beliefsCreated,
		"beliefs_combined":      m.beliefsCombined,
	}
}

// GetUpdatesByEvidenceType returns a copy of the per-evidence-type update
// counts accumulated so far.
func (m *ProbabilisticMetrics) GetUpdatesByEvidenceType() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.updatesByEvidenceType))
	for k, v := range m.updatesByEvidenceType {
		out[k] = v
	}
	return out
}

// GetUninformativeRate returns the fraction of updates that carried zero
// evidence strength.
func (m *ProbabilisticMetrics) GetUninformativeRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updatesTotal == 0 {
		return 0.0
	}
	return float64(m.updatesUninformative) / float64(m.updatesTotal)
}

// GetErrorRate returns the fraction of attempted updates (successful plus
// failed) that failed.
func (m *ProbabilisticMetrics) GetErrorRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.updatesTotal + m.updatesError
	if total == 0 {
		return 0.0
	}
	return float64(m.updatesError) / float64(total)
}
