package stage

import (
	"context"
	"fmt"
	"sort"

	"graphmind/internal/config"
	"graphmind/internal/graphstore"
	"graphmind/internal/session"
	"graphmind/internal/types"
)

// CompositionStage produces a human-readable report from the extracted
// subgraphs plus a citation list and a formatted reasoning-trace appendix.
type CompositionStage struct {
	repo graphstore.Repository
	cfg  *config.Config
}

func NewCompositionStage(repo graphstore.Repository, cfg *config.Config) *CompositionStage {
	return &CompositionStage{repo: repo, cfg: cfg}
}

func (s *CompositionStage) Name() string   { return "composition" }
func (s *CompositionStage) Cleanup() error { return nil }

// Citation is one entry of ComposedOutput.Citations.
type Citation struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Section is one ComposedOutput.Sections entry.
type Section struct {
	Criterion string   `json:"criterion"`
	Claims    []string `json:"claims"`
}

// ComposedOutput is the Composition stage's emitted payload.
type ComposedOutput struct {
	Title                         string     `json:"title"`
	ExecutiveSummary              string     `json:"executive_summary"`
	Sections                      []Section  `json:"sections"`
	Citations                     []Citation `json:"citations"`
	ReasoningTraceAppendixSummary string     `json:"reasoning_trace_appendix_summary,omitempty"`
}

var keyNodeTypes = map[types.NodeType]bool{
	types.NodeHypothesis:              true,
	types.NodeEvidence:                true,
	types.NodeInterdisciplinaryBridge: true,
}

// Execute composes the final report from the extracted subgraphs.
func (s *CompositionStage) Execute(ctx context.Context, sess *session.Session) StageOutput {
	subgraphRaw, ok := sess.ContextSlot("subgraph_extraction")
	if !ok {
		return Failure("composition: subgraph_extraction context missing")
	}
	subgraphCtx, ok := subgraphRaw.(map[string]interface{})
	if !ok {
		return Failure("composition: subgraph_extraction context malformed")
	}
	subgraphs, _ := subgraphCtx["subgraphs"].([]ExtractedSubgraphData)

	var sections []Section
	citationSeen := make(map[string]bool)
	var citations []Citation

	for _, sg := range subgraphs {
		keyNodes := selectKeyNodes(sg.Nodes)

		var claims []string
		for _, n := range keyNodes {
			claims = append(claims, fmt.Sprintf("%s (%s)", n.Label, n.Type))
			id := "Node-" + n.ID
			if !citationSeen[id] {
				citationSeen[id] = true
				citations = append(citations, Citation{ID: id, Label: n.Label})
			}
		}
		if len(claims) == 0 {
			continue
		}
		sections = append(sections, Section{Criterion: sg.Criterion, Claims: claims})
	}

	title := "Research Synthesis: " + sess.Query
	summary := fmt.Sprintf("Synthesized %d section(s) across %d extracted subgraph(s).", len(sections), len(subgraphs))

	appendix := formatTraceAppendix(sess)

	output := ComposedOutput{
		Title:                         title,
		ExecutiveSummary:              summary,
		Sections:                      sections,
		Citations:                     citations,
		ReasoningTraceAppendixSummary: appendix,
	}

	return StageOutput{
		Success: true,
		Summary: "composed report",
		ContextUpdate: contextSlot("composition", map[string]interface{}{
			"composed_output": output,
		}),
	}
}

// selectKeyNodes picks up to 3 nodes of a key type with avg confidence > 0.6
// or impact > 0.6, sorted by impact then avg confidence descending.
func selectKeyNodes(nodes []*types.Node) []*types.Node {
	var candidates []*types.Node
	for _, n := range nodes {
		if !keyNodeTypes[n.Type] {
			continue
		}
		avg := n.Confidence.Mean()
		if avg > 0.6 || n.Metadata.ImpactScore > 0.6 {
			candidates = append(candidates, n)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Metadata.ImpactScore != candidates[j].Metadata.ImpactScore {
			return candidates[i].Metadata.ImpactScore > candidates[j].Metadata.ImpactScore
		}
		return candidates[i].Confidence.Mean() > candidates[j].Confidence.Mean()
	})
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}
	return candidates
}

func formatTraceAppendix(sess *session.Session) string {
	var out string
	for _, t := range sess.Trace {
		out += fmt.Sprintf("[%d] %s: %s (%dms)\n", t.StageNumber, t.StageName, t.Summary, t.DurationMS)
	}
	return out
}
