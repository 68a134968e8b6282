package search

import (
	"sort"
)

// fusedCandidate accumulates a chunk's recall signals.
type fusedCandidate struct {
	ChunkID     string
	RRFScore    float64
	KeywordRank int
	VectorRank  int
	SymbolRank  int
}

// fuseRRF combines the three recall lists with Reciprocal Rank Fusion:
//
//	rrf(c) = sum over signals of 1 / (k + rank_s(c))
//
// Candidates absent from a list contribute nothing for that signal, which
// makes fusion monotone: appearing in an additional list can only raise a
// candidate's score.
//
// Results are sorted by RRF score descending, ties broken by ascending
// chunk id for determinism.
func fuseRRF(k int, keyword, vector, symbol []string) []*fusedCandidate {
	if k <= 0 {
		k = DefaultRRFK
	}

	candidates := make(map[string]*fusedCandidate)
	get := func(id string) *fusedCandidate {
		if c, ok := candidates[id]; ok {
			return c
		}
		c := &fusedCandidate{ChunkID: id}
		candidates[id] = c
		return c
	}

	for rank, id := range keyword {
		c := get(id)
		c.KeywordRank = rank + 1
		c.RRFScore += 1.0 / float64(k+rank+1)
	}
	for rank, id := range vector {
		c := get(id)
		c.VectorRank = rank + 1
		c.RRFScore += 1.0 / float64(k+rank+1)
	}
	for rank, id := range symbol {
		c := get(id)
		c.SymbolRank = rank + 1
		c.RRFScore += 1.0 / float64(k+rank+1)
	}

	fused := make([]*fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		fused = append(fused, c)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].RRFScore != fused[j].RRFScore {
			return fused[i].RRFScore > fused[j].RRFScore
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})
	return fused
}
