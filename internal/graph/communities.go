package graph

import (
	"sort"

	"github.com/locus-dev/locus/internal/store"
)

// DetectCommunities clusters symbols by greedy modularity maximization
// over the undirected projection of the graph: every node starts in its
// own community, then nodes repeatedly move to the neighboring community
// with the highest modularity gain until no move improves Q. Ties break
// by ascending community id; nodes are visited in ascending id order, so
// the result is deterministic.
func (gr *Graph) DetectCommunities() []store.Community {
	gr.mu.RLock()

	// Undirected weighted projection: weight = number of distinct kinds
	// between the pair, both directions merged.
	weights := make(map[string]map[string]float64, len(gr.nodes))
	nodes := make([]string, 0, len(gr.nodes))
	for id := range gr.nodes {
		nodes = append(nodes, id)
		weights[id] = make(map[string]float64)
	}
	var totalWeight float64
	for key, kinds := range gr.kinds {
		if key.source == key.target {
			continue
		}
		w := float64(len(kinds))
		weights[key.source][key.target] += w
		weights[key.target][key.source] += w
		totalWeight += w
	}
	gr.mu.RUnlock()

	sort.Strings(nodes)

	if len(nodes) == 0 || totalWeight == 0 {
		return nil
	}

	// degree per node in the projection
	degree := make(map[string]float64, len(nodes))
	for id, nbrs := range weights {
		for _, w := range nbrs {
			degree[id] += w
		}
	}

	m2 := 2 * totalWeight

	// community assignment, seeded one community per node in id order
	community := make(map[string]int, len(nodes))
	for i, id := range nodes {
		community[id] = i
	}

	// communityDegree tracks the summed degree per community.
	communityDegree := make(map[int]float64, len(nodes))
	for id, d := range degree {
		communityDegree[community[id]] += d
	}

	improved := true
	for improved {
		improved = false

		for _, id := range nodes {
			current := community[id]

			// weight from id to each neighboring community
			toCommunity := make(map[int]float64)
			for nbr, w := range weights[id] {
				toCommunity[community[nbr]] += w
			}

			// Remove id from its community while evaluating moves.
			communityDegree[current] -= degree[id]

			bestCommunity := current
			bestGain := modularityGain(toCommunity[current], communityDegree[current], degree[id], m2)

			candidates := make([]int, 0, len(toCommunity))
			for c := range toCommunity {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)

			for _, c := range candidates {
				if c == current {
					continue
				}
				gain := modularityGain(toCommunity[c], communityDegree[c], degree[id], m2)
				if gain > bestGain || (gain == bestGain && c < bestCommunity) {
					bestGain = gain
					bestCommunity = c
				}
			}

			communityDegree[bestCommunity] += degree[id]
			if bestCommunity != current {
				community[id] = bestCommunity
				improved = true
			}
		}
	}

	return gr.assembleCommunities(nodes, weights, community, totalWeight)
}

// modularityGain is the gain of moving an isolated node into a community:
// edges into the community minus the expected edges under the null model.
func modularityGain(weightTo, communityDegree, nodeDegree, m2 float64) float64 {
	return weightTo/m2 - communityDegree*nodeDegree/(m2*m2)
}

// assembleCommunities renumbers communities densely in ascending order of
// their smallest member and computes per-community modularity.
func (gr *Graph) assembleCommunities(nodes []string, weights map[string]map[string]float64, community map[string]int, totalWeight float64) []store.Community {
	members := make(map[int][]string)
	for _, id := range nodes {
		members[community[id]] = append(members[community[id]], id)
	}

	ids := make([]int, 0, len(members))
	for c := range members {
		ids = append(ids, c)
	}
	sort.Slice(ids, func(i, j int) bool {
		return members[ids[i]][0] < members[ids[j]][0]
	})

	m2 := 2 * totalWeight
	var result []store.Community
	for denseID, c := range ids {
		group := members[c]
		sort.Strings(group)

		inSet := make(map[string]bool, len(group))
		for _, id := range group {
			inSet[id] = true
		}

		// Q_c = internal/2m - (degree_c/2m)^2
		var internal, degreeSum float64
		for _, id := range group {
			for nbr, w := range weights[id] {
				degreeSum += w
				if inSet[nbr] {
					internal += w
				}
			}
		}

		modularity := internal/m2 - (degreeSum/m2)*(degreeSum/m2)
		result = append(result, store.Community{
			ID:         denseID,
			Modularity: modularity,
			Members:    group,
		})
	}
	return result
}
