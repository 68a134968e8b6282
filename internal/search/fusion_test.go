package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rankOf(fused []*fusedCandidate, id string) int {
	for i, c := range fused {
		if c.ChunkID == id {
			return i
		}
	}
	return -1
}

func TestFuseRRF_AgreementWins(t *testing.T) {
	keyword := []string{"a", "b", "c"}
	vector := []string{"b", "d", "a"}

	fused := fuseRRF(60, keyword, vector, nil)
	require.NotEmpty(t, fused)

	// "a" (ranks 1,3) and "b" (ranks 2,1) appear in both lists and must
	// outrank "c" and "d" which appear once.
	assert.Less(t, rankOf(fused, "a"), rankOf(fused, "c"))
	assert.Less(t, rankOf(fused, "b"), rankOf(fused, "d"))
}

func TestFuseRRF_ScoresFollowSpecFormula(t *testing.T) {
	fused := fuseRRF(60, []string{"a"}, []string{"a"}, []string{"a"})
	require.Len(t, fused, 1)
	assert.InDelta(t, 3.0/61.0, fused[0].RRFScore, 1e-12)

	only := fuseRRF(60, []string{"b"}, nil, nil)
	require.Len(t, only, 1)
	assert.InDelta(t, 1.0/61.0, only[0].RRFScore, 1e-12,
		"absence from a list contributes nothing")
}

func TestFuseRRF_Monotone(t *testing.T) {
	// Adding a candidate to one more list never lowers it relative to
	// others.
	before := fuseRRF(60, []string{"a", "b"}, nil, nil)
	after := fuseRRF(60, []string{"a", "b"}, []string{"b"}, nil)

	beforeGap := rankOf(before, "b") - rankOf(before, "a")
	afterGap := rankOf(after, "b") - rankOf(after, "a")
	assert.LessOrEqual(t, afterGap, beforeGap)
}

func TestFuseRRF_DeterministicTieBreak(t *testing.T) {
	// Symmetric candidates tie; ascending chunk id decides.
	fused := fuseRRF(60, []string{"z", "m"}, []string{"m", "z"}, nil)
	require.Len(t, fused, 2)
	assert.Equal(t, "m", fused[0].ChunkID)
	assert.Equal(t, "z", fused[1].ChunkID)
}

func TestFuseRRF_RanksRecorded(t *testing.T) {
	fused := fuseRRF(60, []string{"a", "b"}, []string{"b"}, []string{"c"})

	byID := make(map[string]*fusedCandidate)
	for _, c := range fused {
		byID[c.ChunkID] = c
	}

	assert.Equal(t, 1, byID["a"].KeywordRank)
	assert.Equal(t, 0, byID["a"].VectorRank)
	assert.Equal(t, 2, byID["b"].KeywordRank)
	assert.Equal(t, 1, byID["b"].VectorRank)
	assert.Equal(t, 1, byID["c"].SymbolRank)
}

func TestFuseRRF_Empty(t *testing.T) {
	assert.Empty(t, fuseRRF(60, nil, nil, nil))
}
