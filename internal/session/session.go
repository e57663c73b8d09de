// Package session defines the per-query mutable state that is threaded
// through the eight reasoning stages and owned by the orchestrator.
//
// A session is a single mutable run record carried between operations.
package session

import (
	"math/rand"
	"time"

	"graphmind/internal/types"
)

// TraceRecord is one entry of a session's stage_outputs_trace.
type TraceRecord struct {
	StageNumber    int                    `json:"stage_number"`
	StageName      string                 `json:"stage_name"`
	DurationMS     int64                  `json:"duration_ms"`
	Summary        string                 `json:"summary"`
	Timestamp      time.Time              `json:"timestamp"`
	Error          string                 `json:"error,omitempty"`
	Metrics        map[string]interface{} `json:"metrics,omitempty"`
	RecoveryAction string                 `json:"recovery_action,omitempty"`
}

// OperationalParams is the optional per-query override bag. A nil or
// zero-value field means "use the configured default"; stages must treat a
// malformed override (e.g. min > max) the same as an absent one.
type OperationalParams struct {
	InitialDisciplinaryTags      []string `json:"initial_disciplinary_tags,omitempty"`
	InitialLayer                 string   `json:"initial_layer,omitempty"`
	DecompositionDimensions      []string `json:"decomposition_dimensions,omitempty"`
	HypothesesPerDimensionMin    *int     `json:"hypotheses_per_dimension_min,omitempty"`
	HypothesesPerDimensionMax    *int     `json:"hypotheses_per_dimension_max,omitempty"`
	RandomSeed                   *int64   `json:"random_seed,omitempty"`
	EvidenceMaxIterations        *int     `json:"evidence_max_iterations,omitempty"`
	MergePairScanLimit           *int     `json:"merge_pair_scan_limit,omitempty"`
	SubgraphExtractionCriteria   []string `json:"subgraph_extraction_criteria,omitempty"`
}

// Session is the per-query state record. Stages read and mutate it in
// place; the orchestrator owns checkpointing (via Clone) and rollback.
type Session struct {
	ID                  string                 `json:"session_id"`
	Query               string                 `json:"query"`
	FinalAnswer         string                 `json:"final_answer"`
	FinalConfidence     types.ConfidenceVector `json:"final_confidence_vector"`
	Finalized           bool                   `json:"-"`
	AccumulatedContext  map[string]interface{} `json:"accumulated_context"`
	Trace               []TraceRecord          `json:"stage_outputs_trace"`
	Params              *OperationalParams     `json:"-"`
	RNG                 *rand.Rand             `json:"-"`
	CreatedAt           time.Time              `json:"created_at"`
}

// New constructs an empty session for the given query, seeding its random
// generator from params.RandomSeed when present or from the current time
// otherwise. Carrying the seed on the session keeps hypothesis generation
// reproducible in tests.
func New(id, query string, params *OperationalParams) *Session {
	if params == nil {
		params = &OperationalParams{}
	}
	var seed int64
	if params.RandomSeed != nil {
		seed = *params.RandomSeed
	} else {
		seed = time.Now().UnixNano()
	}
	s := &Session{
		ID:                 id,
		Query:              query,
		AccumulatedContext: map[string]interface{}{},
		Trace:              []TraceRecord{},
		Params:             params,
		RNG:                rand.New(rand.NewSource(seed)),
		CreatedAt:          time.Now(),
	}
	s.AccumulatedContext["operational_params"] = params
	return s
}

// ContextSlot returns the payload a given stage wrote, if any.
func (s *Session) ContextSlot(stageName string) (interface{}, bool) {
	v, ok := s.AccumulatedContext[stageName]
	return v, ok
}

// MergeContextUpdate merges a stage's contextUpdate into accumulated_context:
// arrays concat, objects shallow-merge, scalars keep the old value under
// "<key>_previous" then overwrite.
func (s *Session) MergeContextUpdate(update map[string]interface{}) {
	for k, newVal := range update {
		oldVal, existed := s.AccumulatedContext[k]
		if !existed {
			s.AccumulatedContext[k] = newVal
			continue
		}
		switch nv := newVal.(type) {
		case []interface{}:
			if ov, ok := oldVal.([]interface{}); ok {
				s.AccumulatedContext[k] = append(append([]interface{}{}, ov...), nv...)
				continue
			}
			s.AccumulatedContext[k] = nv
		case map[string]interface{}:
			if ov, ok := oldVal.(map[string]interface{}); ok {
				merged := make(map[string]interface{}, len(ov)+len(nv))
				for mk, mv := range ov {
					merged[mk] = mv
				}
				for mk, mv := range nv {
					merged[mk] = mv
				}
				s.AccumulatedContext[k] = merged
				continue
			}
			s.AccumulatedContext[k] = nv
		default:
			s.AccumulatedContext[k+"_previous"] = oldVal
			s.AccumulatedContext[k] = newVal
		}
	}
}

// AppendTrace records a stage's trace entry.
func (s *Session) AppendTrace(rec TraceRecord) {
	s.Trace = append(s.Trace, rec)
}

// Valid checks the integrity predicate the orchestrator runs before each
// stage: non-empty id, non-empty query, context map present, trace is a
// sequence (never nil after New), confidence vector components in [0,1].
func (s *Session) Valid() bool {
	if s.ID == "" || s.Query == "" {
		return false
	}
	if s.AccumulatedContext == nil || s.Trace == nil {
		return false
	}
	for _, c := range []float64{
		s.FinalConfidence.EmpiricalSupport,
		s.FinalConfidence.TheoreticalBasis,
		s.FinalConfidence.MethodologicalRigor,
		s.FinalConfidence.ConsensusAlignment,
	} {
		if c < 0 || c > 1 {
			return false
		}
	}
	return true
}

// Clone deep-copies the session for use as an orchestrator checkpoint.
// Deep-copy rather than a persistent structure: sessions have a small fixed
// shape.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:              s.ID,
		Query:           s.Query,
		FinalAnswer:     s.FinalAnswer,
		FinalConfidence: s.FinalConfidence,
		Finalized:       s.Finalized,
		CreatedAt:       s.CreatedAt,
		Params:          s.Params,
		RNG:             s.RNG,
	}
	clone.AccumulatedContext = deepCopyValue(s.AccumulatedContext).(map[string]interface{})
	clone.Trace = make([]TraceRecord, len(s.Trace))
	copy(clone.Trace, s.Trace)
	return clone
}

// Restore overwrites every top-level field of s from other, per the
// orchestrator's rollback discipline ("restores every top-level field of the
// session by deep copy").
func (s *Session) Restore(other *Session) {
	restored := other.Clone()
	*s = *restored
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			out[k] = deepCopyValue(inner)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = deepCopyValue(inner)
		}
		return out
	default:
		return v
	}
}

// WireConfidence renders the final confidence vector in the comma-joined
// "e,t,m,c" wire form.
func (s *Session) WireConfidence() string {
	return formatConfidence(s.FinalConfidence)
}

func formatConfidence(c types.ConfidenceVector) string {
	return formatFloat(c.EmpiricalSupport) + "," + formatFloat(c.TheoreticalBasis) + "," +
		formatFloat(c.MethodologicalRigor) + "," + formatFloat(c.ConsensusAlignment)
}

func formatFloat(f float64) string {
	// Fixed two-decimal form, so the wire string always parses to four
	// floats and an aborted run renders "0.00,0.00,0.00,0.00".
	buf := make([]byte, 0, 8)
	if f < 0 {
		buf = append(buf, '-')
		f = -f
	}
	whole := int64(f)
	frac := int64((f-float64(whole))*100 + 0.5)
	if frac >= 100 {
		whole++
		frac -= 100
	}
	buf = appendInt(buf, whole)
	buf = append(buf, '.')
	if frac < 10 {
		buf = append(buf, '0')
	}
	buf = appendInt(buf, frac)
	return string(buf)
}

func appendInt(buf []byte, v int64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for v > 0 {
		buf = append(buf, byte('0'+v%10))
		v /= 10
	}
	// reverse the digits just appended
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}
