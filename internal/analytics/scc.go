package analytics

import "sort"

// TarjanSCC computes strongly connected components over the directed edge
// relation (as opposed to the undirected adjacency the other analytics
// functions use). Components are returned in the order Tarjan's algorithm
// completes them, so a component comes after every component reachable from
// it; the ids inside a component are in stack-pop order and are not sorted.
func (g *Graph) TarjanSCC() [][]string {
	t := &tarjanState{
		graph:   g,
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
		next:    0,
	}

	for _, id := range g.order {
		if _, visited := t.index[id]; !visited {
			t.strongConnect(id)
		}
	}

	return t.components
}

type tarjanState struct {
	graph      *Graph
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	next       int
	components [][]string
}

func (t *tarjanState) strongConnect(v string) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.directedSuccessors(v) {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var component []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			component = append(component, w)
			if w == v {
				break
			}
		}
		t.components = append(t.components, component)
	}
}

// directedSuccessors walks the graph's original directed adjacency via the
// dominikbraun/graph AdjacencyMap rather than this package's undirected
// mirror, since SCC is only meaningful on the directed relation.
func (t *tarjanState) directedSuccessors(id string) []string {
	adj, err := t.graph.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	edges, ok := adj[id]
	if !ok {
		return nil
	}
	successors := make([]string, 0, len(edges))
	for target := range edges {
		successors = append(successors, target)
	}
	sort.Strings(successors)
	return successors
}
