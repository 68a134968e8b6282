package graph

import (
	"sort"

	dgraph "github.com/dominikbraun/graph"
)

// Downstream returns the set of symbols reachable from id within depth
// hops, excluding id itself.
func (gr *Graph) Downstream(id string, depth int) map[string]int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	adjacency, err := gr.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	return boundedBFS(id, depth, adjacency)
}

// Upstream returns the set of symbols that reach id within depth hops,
// excluding id itself.
func (gr *Graph) Upstream(id string, depth int) map[string]int {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	predecessors, err := gr.g.PredecessorMap()
	if err != nil {
		return nil
	}
	return boundedBFS(id, depth, predecessors)
}

// Neighbors returns symbols within depth hops in either direction, mapped
// to their minimum distance.
func (gr *Graph) Neighbors(id string, depth int) map[string]int {
	down := gr.Downstream(id, depth)
	up := gr.Upstream(id, depth)

	merged := make(map[string]int, len(down)+len(up))
	for sym, d := range down {
		merged[sym] = d
	}
	for sym, d := range up {
		if existing, ok := merged[sym]; !ok || d < existing {
			merged[sym] = d
		}
	}
	return merged
}

// boundedBFS walks an adjacency map breadth-first up to depth hops.
func boundedBFS(start string, depth int, adjacency map[string]map[string]dgraph.Edge[string]) map[string]int {
	if depth <= 0 {
		return map[string]int{}
	}
	if _, ok := adjacency[start]; !ok {
		return map[string]int{}
	}

	visited := map[string]int{start: 0}
	frontier := []string{start}

	for d := 1; d <= depth && len(frontier) > 0; d++ {
		var next []string
		for _, node := range frontier {
			// Sorted expansion keeps traversal deterministic.
			targets := make([]string, 0, len(adjacency[node]))
			for t := range adjacency[node] {
				targets = append(targets, t)
			}
			sort.Strings(targets)

			for _, t := range targets {
				if _, seen := visited[t]; !seen {
					visited[t] = d
					next = append(next, t)
				}
			}
		}
		frontier = next
	}

	delete(visited, start)
	return visited
}

// DetectCycles returns the strongly connected components with more than
// one member, each sorted ascending, ordered by their smallest member.
func (gr *Graph) DetectCycles() [][]string {
	gr.mu.RLock()
	defer gr.mu.RUnlock()

	sccs, err := dgraph.StronglyConnectedComponents(gr.g)
	if err != nil {
		return nil
	}

	var cycles [][]string
	for _, scc := range sccs {
		if len(scc) > 1 {
			sorted := append([]string(nil), scc...)
			sort.Strings(sorted)
			cycles = append(cycles, sorted)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i][0] < cycles[j][0]
	})
	return cycles
}
