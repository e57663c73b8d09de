package graphstore

import (
	"encoding/json"
	"fmt"
	"time"

	"graphmind/internal/types"
)

// nodeExtras is the JSON-encoded sidecar for the Node.Metadata fields that
// don't fit a flat property bag (Neo4j properties are scalars and arrays of
// scalars only; SQLite's property-bag schema stores the whole thing as one
// JSON blob anyway, so both backends share this shape).
type nodeExtras struct {
	RevisionHistory       []types.RevisionEntry         `json:"revision_history,omitempty"`
	FalsificationCriteria *types.FalsificationCriteria  `json:"falsification_criteria,omitempty"`
	StatisticalPower      *types.StatisticalPower       `json:"statistical_power,omitempty"`
	Plan                  *types.Plan                   `json:"plan,omitempty"`
	Bias                  *types.BiasFlag               `json:"bias,omitempty"`
}

// NodeProperties flattens a Node into a parameter map suitable for a Cypher
// UNWIND upsert or a SQLite property-bag row: scalar metadata fields become
// top-level properties, the tag set becomes a sorted string array, and the
// handful of nested value objects are packed into one "extras_json" string.
func NodeProperties(n *types.Node) (map[string]interface{}, error) {
	extras := nodeExtras{
		RevisionHistory:       n.Metadata.RevisionHistory,
		FalsificationCriteria: n.Metadata.FalsificationCriteria,
		StatisticalPower:      n.Metadata.StatisticalPower,
		Plan:                  n.Metadata.Plan,
		Bias:                  n.Metadata.Bias,
	}
	extrasJSON, err := json.Marshal(extras)
	if err != nil {
		return nil, fmt.Errorf("graphstore: marshal node extras: %w", err)
	}

	return map[string]interface{}{
		"id":                     n.ID,
		"label":                  n.Label,
		"type":                   string(n.Type),
		"empirical_support":      n.Confidence.EmpiricalSupport,
		"theoretical_basis":      n.Confidence.TheoreticalBasis,
		"methodological_rigor":   n.Confidence.MethodologicalRigor,
		"consensus_alignment":    n.Confidence.ConsensusAlignment,
		"description":            n.Metadata.Description,
		"query_context":          n.Metadata.QueryContext,
		"source_description":     n.Metadata.SourceDescription,
		"epistemic_status":       string(n.Metadata.EpistemicStatus),
		"disciplinary_tags":      n.Metadata.TagSlice(),
		"layer_id":               n.Metadata.LayerID,
		"impact_score":           n.Metadata.ImpactScore,
		"is_knowledge_gap":       n.Metadata.IsKnowledgeGap,
		"doi":                    n.Metadata.DOI,
		"authors":                n.Metadata.Authors,
		"publication_date":       n.Metadata.PublicationDate,
		"extras_json":            string(extrasJSON),
		"created_at":             n.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":             n.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

// NodeFromProperties rebuilds a Node from the flattened property map a
// backend handed back, the inverse of NodeProperties.
func NodeFromProperties(props map[string]interface{}) (*types.Node, error) {
	n := &types.Node{
		ID:    stringProp(props, "id"),
		Label: stringProp(props, "label"),
		Type:  types.NodeType(stringProp(props, "type")),
		Confidence: types.ConfidenceVector{
			EmpiricalSupport:    floatProp(props, "empirical_support"),
			TheoreticalBasis:    floatProp(props, "theoretical_basis"),
			MethodologicalRigor: floatProp(props, "methodological_rigor"),
			ConsensusAlignment:  floatProp(props, "consensus_alignment"),
		},
		Metadata: types.NodeMetadata{
			Description:       stringProp(props, "description"),
			QueryContext:      stringProp(props, "query_context"),
			SourceDescription: stringProp(props, "source_description"),
			EpistemicStatus:   types.EpistemicStatus(stringProp(props, "epistemic_status")),
			LayerID:           stringProp(props, "layer_id"),
			ImpactScore:       floatProp(props, "impact_score"),
			IsKnowledgeGap:    boolProp(props, "is_knowledge_gap"),
			DOI:               stringProp(props, "doi"),
			Authors:           stringSliceProp(props, "authors"),
			PublicationDate:   stringProp(props, "publication_date"),
		},
	}
	n.Metadata.UnionTags(stringSliceProp(props, "disciplinary_tags"))

	if raw := stringProp(props, "extras_json"); raw != "" {
		var extras nodeExtras
		if err := json.Unmarshal([]byte(raw), &extras); err != nil {
			return nil, fmt.Errorf("graphstore: unmarshal node extras: %w", err)
		}
		n.Metadata.RevisionHistory = extras.RevisionHistory
		n.Metadata.FalsificationCriteria = extras.FalsificationCriteria
		n.Metadata.StatisticalPower = extras.StatisticalPower
		n.Metadata.Plan = extras.Plan
		n.Metadata.Bias = extras.Bias
	}

	if t, err := time.Parse(time.RFC3339Nano, stringProp(props, "created_at")); err == nil {
		n.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, stringProp(props, "updated_at")); err == nil {
		n.UpdatedAt = t
	}
	return n, nil
}

// EdgeProperties flattens an Edge into a parameter map.
func EdgeProperties(e *types.Edge) map[string]interface{} {
	return map[string]interface{}{
		"id":          e.ID,
		"source_id":   e.SourceID,
		"target_id":   e.TargetID,
		"type":        string(e.Type),
		"confidence":  e.Confidence,
		"description": e.Metadata.Description,
		"weight":      e.Metadata.Weight,
		"created_at":  e.Metadata.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// EdgeFromProperties rebuilds an Edge from a flattened property map.
func EdgeFromProperties(props map[string]interface{}) *types.Edge {
	e := &types.Edge{
		ID:         stringProp(props, "id"),
		SourceID:   stringProp(props, "source_id"),
		TargetID:   stringProp(props, "target_id"),
		Type:       types.EdgeType(stringProp(props, "type")),
		Confidence: floatProp(props, "confidence"),
		Metadata: types.EdgeMetadata{
			Description: stringProp(props, "description"),
			Weight:      floatProp(props, "weight"),
		},
	}
	if t, err := time.Parse(time.RFC3339Nano, stringProp(props, "created_at")); err == nil {
		e.Metadata.CreatedAt = t
	}
	return e
}

func stringProp(props map[string]interface{}, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func floatProp(props map[string]interface{}, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

func boolProp(props map[string]interface{}, key string) bool {
	v, _ := props[key].(bool)
	return v
}

func stringSliceProp(props map[string]interface{}, key string) []string {
	switch v := props[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// ValidateEdgeType rejects relationship types outside the allow-list before
// any write reaches the backend.
func ValidateEdgeType(t types.EdgeType) error {
	if !types.AllowedEdgeTypes[t] {
		return fmt.Errorf("%w: edge type %q is not in the allow-list", ErrInvalidStatement, t)
	}
	return nil
}
