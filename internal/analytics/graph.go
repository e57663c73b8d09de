// Package analytics implements the graph analytics consumed by the
// auxiliary direct-query path: community detection, centralities,
// strongly-connected components, density, and shortest path over an
// in-memory github.com/dominikbraun/graph snapshot built from a repository
// subgraph read.
package analytics

import (
	"sort"

	"github.com/dominikbraun/graph"

	"graphmind/internal/types"
)

// AnalyticsNode is the vertex payload analytics operates over: just enough
// of types.Node to drive ranking and grouping without carrying the full
// metadata bag.
type AnalyticsNode struct {
	ID         string
	Label      string
	NodeType   types.NodeType
	Confidence types.ConfidenceVector
}

func vertexHash(n *AnalyticsNode) string { return n.ID }

// Graph is the in-memory analytics graph plus the plain adjacency it was
// built from, which every pure analytics function below operates on
// directly (dominikbraun/graph has no native community-detection or
// centrality algorithms; this package supplies them over its AdjacencyMap).
type Graph struct {
	g         graph.Graph[string, *AnalyticsNode]
	nodes     map[string]*AnalyticsNode
	adjacency map[string]map[string]struct{} // undirected, symmetric
	order     []string                       // deterministic iteration order
}

// BuildFromSubgraph constructs an undirected analytics graph from a
// repository subgraph read's node and edge lists. Edges whose endpoints
// aren't both present are skipped (the repository's subgraph expansion
// already guarantees this, but the graph stays defensive).
func BuildFromSubgraph(nodes []*types.Node, edges []*types.Edge) (*Graph, error) {
	dg := graph.New(vertexHash, graph.Directed())

	ag := &Graph{
		g:         dg,
		nodes:     make(map[string]*AnalyticsNode, len(nodes)),
		adjacency: make(map[string]map[string]struct{}, len(nodes)),
	}

	for _, n := range nodes {
		an := &AnalyticsNode{ID: n.ID, Label: n.Label, NodeType: n.Type, Confidence: n.Confidence}
		if err := dg.AddVertex(an); err != nil {
			continue // duplicate vertex; keep first occurrence
		}
		ag.nodes[n.ID] = an
		ag.adjacency[n.ID] = make(map[string]struct{})
		ag.order = append(ag.order, n.ID)
	}
	sort.Strings(ag.order)

	for _, e := range edges {
		if _, ok := ag.nodes[e.SourceID]; !ok {
			continue
		}
		if _, ok := ag.nodes[e.TargetID]; !ok {
			continue
		}
		_ = dg.AddEdge(e.SourceID, e.TargetID)
		ag.adjacency[e.SourceID][e.TargetID] = struct{}{}
		ag.adjacency[e.TargetID][e.SourceID] = struct{}{}
	}

	return ag, nil
}

// Order returns the number of nodes.
func (g *Graph) Order() int { return len(g.order) }

// Neighbors returns the (deterministically sorted) neighbor ids of id.
func (g *Graph) Neighbors(id string) []string {
	neighbors := make([]string, 0, len(g.adjacency[id]))
	for n := range g.adjacency[id] {
		neighbors = append(neighbors, n)
	}
	sort.Strings(neighbors)
	return neighbors
}

// Density returns 2m/(n(n-1)), the ratio of present to possible undirected
// edges.
func (g *Graph) Density() float64 {
	n := len(g.order)
	if n < 2 {
		return 0
	}
	m := g.edgeCount()
	return 2 * float64(m) / float64(n*(n-1))
}

func (g *Graph) edgeCount() int {
	seen := make(map[[2]string]struct{})
	for a, neighbors := range g.adjacency {
		for b := range neighbors {
			key := [2]string{a, b}
			if a > b {
				key = [2]string{b, a}
			}
			seen[key] = struct{}{}
		}
	}
	return len(seen)
}

// ShortestPath runs BFS from source and returns the node sequence to
// target, or nil if unreachable.
func (g *Graph) ShortestPath(source, target string) []string {
	if source == target {
		return []string{source}
	}
	if _, ok := g.nodes[source]; !ok {
		return nil
	}
	prev := map[string]string{source: ""}
	queue := []string{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.Neighbors(cur) {
			if _, visited := prev[next]; visited {
				continue
			}
			prev[next] = cur
			if next == target {
				return reconstructPath(prev, source, target)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func reconstructPath(prev map[string]string, source, target string) []string {
	var path []string
	for at := target; ; at = prev[at] {
		path = append([]string{at}, path...)
		if at == source {
			break
		}
	}
	return path
}
