// Package search implements hybrid two-stage retrieval: fused keyword,
// semantic, and symbol recall followed by reranking and structural, graph,
// and recency boosting.
package search

import (
	"time"

	"github.com/locus-dev/locus/internal/store"
)

// DefaultRRFK is the standard RRF smoothing parameter, empirically
// validated across domains.
const DefaultRRFK = 60

// RecallLimit caps stage-one candidates.
const RecallLimit = 100

// Options configures a search query.
type Options struct {
	// Limit is the maximum number of results to return (default 10).
	Limit int

	// Deadline bounds the whole query. Zero means no deadline. A query
	// exceeding it returns partial results from completed stages.
	Deadline time.Duration
}

// Result is one ranked search hit with its component scores.
type Result struct {
	// Chunk is the full chunk record.
	Chunk *store.Chunk

	// Rank is the 1-indexed final position.
	Rank int

	// Score is the final combined score after boosting.
	Score float64

	// RRFScore is the fused recall score before precision stages.
	RRFScore float64

	// KeywordRank, VectorRank, SymbolRank are the 1-indexed positions in
	// each recall list, 0 when absent.
	KeywordRank int
	VectorRank  int
	SymbolRank  int

	// RerankScore is the cross-encoder relevance in [0,1], negative when
	// the reranker did not score this candidate.
	RerankScore float64

	// StructuralBoost, GraphBoost, RecencyBoost are the applied
	// multipliers.
	StructuralBoost float64
	GraphBoost      float64
	RecencyBoost    float64
}

// Response is a completed search.
type Response struct {
	Results []*Result
	// Partial is set when the query deadline cut one or more stages.
	Partial bool
}

// Config tunes the engine.
type Config struct {
	// RRFK is the reciprocal rank fusion smoothing constant.
	RRFK int
	// RRFWeight is the fused-score share kept by RRF vs rerank.
	RRFWeight float64
	// UnrankedDemotion applies to candidates the reranker did not score.
	UnrankedDemotion float64
	// RecencyBoostEnabled toggles the recency multiplier.
	RecencyBoostEnabled bool
	// DefaultLimit is the result count when Options.Limit is zero.
	DefaultLimit int
}

// DefaultConfig returns sensible engine defaults.
func DefaultConfig() Config {
	return Config{
		RRFK:             DefaultRRFK,
		RRFWeight:        0.7,
		UnrankedDemotion: 0.5,
		DefaultLimit:     10,
	}
}
