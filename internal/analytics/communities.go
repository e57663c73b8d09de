package analytics

import "sort"

// DetectCommunities runs a single-level Louvain-style local search: each
// node repeatedly moves to whichever neighboring community yields the
// largest modularity gain, stopping after no node moves in a pass or after
// 100 iterations.
func (g *Graph) DetectCommunities() map[string]int {
	community := make(map[string]int, len(g.order))
	for i, id := range g.order {
		community[id] = i
	}

	m := float64(g.edgeCount())
	if m == 0 {
		return community
	}
	degree := g.DegreeCentrality()

	for iter := 0; iter < 100; iter++ {
		moved := false
		for _, id := range g.order {
			current := community[id]
			best := current
			bestGain := 0.0

			candidates := map[int]struct{}{current: {}}
			for _, n := range g.Neighbors(id) {
				candidates[community[n]] = struct{}{}
			}

			for c := range candidates {
				if c == current {
					continue
				}
				gain := g.modularityGain(id, c, community, degree, m)
				if gain > bestGain {
					bestGain = gain
					best = c
				}
			}

			if best != current {
				community[id] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	return normalizeLabels(community, g.order)
}

// modularityGain approximates the change in modularity from moving node id
// into community target: the fraction of id's edges landing inside target
// minus the expected fraction under the configuration-model null, scaled by
// target's total degree.
func (g *Graph) modularityGain(id string, target int, community map[string]int, degree map[string]int, m float64) float64 {
	var edgesToTarget float64
	var targetDegree float64
	for _, n := range g.Neighbors(id) {
		if community[n] == target {
			edgesToTarget++
		}
	}
	for other, c := range community {
		if c == target && other != id {
			targetDegree += float64(degree[other])
		}
	}
	ki := float64(degree[id])
	return edgesToTarget/m - (targetDegree*ki)/(2*m*m)
}

// normalizeLabels remaps community ids to a dense 0..k-1 range ordered by
// first appearance in the deterministic node ordering.
func normalizeLabels(community map[string]int, order []string) map[string]int {
	relabel := make(map[int]int)
	next := 0
	out := make(map[string]int, len(community))
	for _, id := range order {
		c := community[id]
		relabelled, ok := relabel[c]
		if !ok {
			relabelled = next
			relabel[c] = relabelled
			next++
		}
		out[id] = relabelled
	}
	return out
}

// CommunityMembers groups node ids by their detected community label,
// returning a map from label to members with the members sorted within
// each community; the map itself carries no ordering of communities.
func CommunityMembers(community map[string]int) map[int][]string {
	out := make(map[int][]string)
	for id, c := range community {
		out[c] = append(out[c], id)
	}
	for c := range out {
		sort.Strings(out[c])
	}
	return out
}
