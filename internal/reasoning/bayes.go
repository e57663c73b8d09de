// Package reasoning provides the confidence/Bayesian mechanics that turn a
// piece of evidence into an updated ConfidenceVector, plus the statistical
// primitives consumed by the Evidence and Reflection stages.
package reasoning

import (
	"math"

	"graphmind/internal/metrics"
	"graphmind/internal/types"
)

// EvidenceType is the closed set of evidence kinds a Bayesian update accepts.
type EvidenceType string

const (
	EvidenceExperimental EvidenceType = "experimental"
	EvidenceObservational EvidenceType = "observational"
	EvidenceTheoretical   EvidenceType = "theoretical"
	EvidenceExpertOpinion EvidenceType = "expert_opinion"
	EvidenceEmpirical     EvidenceType = "empirical"
)

// UpdateResult is the outcome of a single confidence update.
type UpdateResult struct {
	Posterior       types.ConfidenceVector
	LogLikelihood   float64
	PosteriorOdds   float64
	InformationGain float64
}

// ConfidenceUpdater wraps the Bayesian update with metrics instrumentation,
// the way ProbabilisticReasoner wraps belief updates with a
// *metrics.ProbabilisticMetrics.
type ConfidenceUpdater struct {
	metrics *metrics.ProbabilisticMetrics
}

// NewConfidenceUpdater creates an updater with its own metrics tracker.
func NewConfidenceUpdater() *ConfidenceUpdater {
	return &ConfidenceUpdater{metrics: metrics.NewProbabilisticMetrics()}
}

// Metrics exposes the updater's running counters: the update total, the
// error rate, and the per-evidence-type update counts (which count
// informative and uninformative updates together).
func (u *ConfidenceUpdater) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"updates_total":   u.metrics.GetStats()["updates_total"],
		"error_rate":      u.metrics.GetErrorRate(),
		"updates_by_type": u.metrics.GetUpdatesByEvidenceType(),
	}
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

// baseLikelihoodRatio returns the supportive-direction likelihood ratio for
// an evidence type at the given strength.
func baseLikelihoodRatio(t EvidenceType, s float64) float64 {
	switch t {
	case EvidenceExperimental:
		return 2 + 8*s
	case EvidenceObservational:
		return 1.5 + 4*s
	case EvidenceTheoretical:
		return 1.2 + 2*s
	case EvidenceExpertOpinion:
		return 1.1 + 1.5*s
	default: // empirical and any unrecognized type fall back to empirical
		return 1.5 + 3*s
	}
}

// UpdateConfidence applies a single piece of evidence to a prior confidence
// vector and returns the posterior plus the Bayesian diagnostics.
//
// evidenceStrength must be in [0,1]; sampleSize must be >= 1.
func (u *ConfidenceUpdater) UpdateConfidence(
	prior types.ConfidenceVector,
	evidenceStrength float64,
	supports bool,
	evidenceType EvidenceType,
	sampleSize int,
) UpdateResult {
	s := clamp01(evidenceStrength)
	if sampleSize < 1 {
		sampleSize = 1
	}

	// Zero-strength evidence carries no information: every base likelihood
	// ratio has a nonzero y-intercept (e.g. experimental's 2+8s is 2 at
	// s=0), so applying the formula unconditionally would still move
	// empirical_support even though no evidence was actually supplied.
	// Treat s=0 as a pure no-op rather than plugging it through the ratio.
	if s == 0 {
		u.metrics.RecordUninformative(string(evidenceType))
		return UpdateResult{
			Posterior:       prior.Clamped(),
			LogLikelihood:   0,
			PosteriorOdds:   oddsFromProbability(prior.EmpiricalSupport),
			InformationGain: 0,
		}
	}

	// Step 1: map empirical_support to a probability strictly inside (0,1)
	// so the odds ratio and its logarithm stay finite.
	p := prior.EmpiricalSupport
	if p < 0.001 {
		p = 0.001
	}
	if p > 0.999 {
		p = 0.999
	}
	priorOdds := p / (1 - p)

	// Step 2-4: likelihood ratio, sample-size amplifier, direction.
	ratio := baseLikelihoodRatio(evidenceType, s)
	amplifier := 1 + 0.2*math.Log10(float64(sampleSize)+1)
	ratio *= amplifier
	if !supports {
		ratio = 1 / ratio
	}

	posteriorOdds := priorOdds * ratio
	posteriorP := posteriorOdds / (1 + posteriorOdds)
	posteriorP = clamp01(posteriorP)

	// Step 6: update the remaining components additively. Theoretical
	// evidence speaks to theoretical basis directly and moves it three
	// times as far as any other evidence type.
	theoreticalDelta := 0.1
	if evidenceType == EvidenceTheoretical {
		theoreticalDelta = 0.3
	}
	theoretical := clamp01(prior.TheoreticalBasis + s*theoreticalDelta)

	methodological := clamp01(prior.MethodologicalRigor +
		s*math.Min(1, math.Log(float64(sampleSize)+1)/math.Log(1000))*0.2)

	consensusDelta := 0.15 * s
	if !supports {
		consensusDelta = -consensusDelta
	}
	consensus := clamp01(prior.ConsensusAlignment + consensusDelta)

	posterior := types.ConfidenceVector{
		EmpiricalSupport:    posteriorP,
		TheoreticalBasis:    theoretical,
		MethodologicalRigor: methodological,
		ConsensusAlignment:  consensus,
	}.Clamped()

	gain := binaryKLDivergence(p, posteriorP)

	u.metrics.RecordUpdate(string(evidenceType))

	return UpdateResult{
		Posterior:       posterior,
		LogLikelihood:   math.Log(ratio),
		PosteriorOdds:   posteriorOdds,
		InformationGain: gain,
	}
}

// binaryKLDivergence computes the KL divergence between two Bernoulli
// distributions with parameters p (prior) and q (posterior): the
// information gain exposed alongside every confidence update.
func binaryKLDivergence(p, q float64) float64 {
	p = clampOpen(p)
	q = clampOpen(q)
	return p*math.Log(p/q) + (1-p)*math.Log((1-p)/(1-q))
}

func oddsFromProbability(p float64) float64 {
	if p < 0.001 {
		p = 0.001
	}
	if p > 0.999 {
		p = 0.999
	}
	return p / (1 - p)
}

func clampOpen(v float64) float64 {
	const eps = 1e-6
	if v < eps {
		return eps
	}
	if v > 1-eps {
		return 1 - eps
	}
	return v
}
