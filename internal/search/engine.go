package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/locus-dev/locus/internal/embed"
	"github.com/locus-dev/locus/internal/graph"
	"github.com/locus-dev/locus/internal/store"
)

// anchorCount is the number of top fused candidates used as graph
// proximity anchors.
const anchorCount = 10

// Engine runs hybrid two-stage retrieval over a frozen index state.
type Engine struct {
	meta     *store.MetadataStore
	keyword  store.KeywordIndex
	vectors  store.VectorIndex
	embedder *embed.CoverageEmbedder
	graph    *graph.Graph
	reranker Reranker // nil disables the rerank stage
	cfg      Config

	// now is injectable for recency tests.
	now func() time.Time
}

// NewEngine builds a search engine over the shared stores.
func NewEngine(meta *store.MetadataStore, keyword store.KeywordIndex, vectors store.VectorIndex,
	embedder *embed.CoverageEmbedder, depGraph *graph.Graph, reranker Reranker, cfg Config) *Engine {
	if cfg.RRFK <= 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	return &Engine{
		meta:     meta,
		keyword:  keyword,
		vectors:  vectors,
		embedder: embedder,
		graph:    depGraph,
		reranker: reranker,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Search executes a query. Results are deterministic given a frozen index
// state; equivalent queries differing only in whitespace rank identically.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Response, error) {
	query = normalizeQuery(query)
	if query == "" {
		return &Response{Results: []*Result{}}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	// Stage 1: recall.
	fused, err := e.recall(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(fused) == 0 {
		return &Response{Results: []*Result{}}, nil
	}

	results, err := e.materialize(ctx, fused)
	if err != nil {
		return nil, err
	}
	normalizeRRF(results)

	partial := false

	// Stage 2: precision. Each boundary checks cancellation; a deadline
	// returns what completed so far, flagged partial.
	if ctx.Err() == nil {
		if err := e.rerank(ctx, query, results); err != nil {
			if ctx.Err() == nil {
				return nil, err
			}
			partial = true
		}
	} else {
		partial = true
	}

	if ctx.Err() == nil {
		e.boost(ctx, results)
	} else {
		partial = true
	}

	sort.Slice(results, func(i, j int) bool {
		return compareResults(results[i], results[j])
	})

	if limit < len(results) {
		results = results[:limit]
	}
	for i, r := range results {
		r.Rank = i + 1
	}

	return &Response{Results: results, Partial: partial}, nil
}

// recall gathers keyword, semantic, and symbol candidates and fuses them.
func (e *Engine) recall(ctx context.Context, query string) ([]*fusedCandidate, error) {
	var keywordIDs, vectorIDs, symbolIDs []string

	keywordResults, err := e.keyword.Search(ctx, query, RecallLimit)
	if err != nil {
		slog.Warn("keyword recall failed", slog.String("error", err.Error()))
	}
	for _, r := range keywordResults {
		keywordIDs = append(keywordIDs, r.ChunkID)
	}

	if ctx.Err() != nil {
		return fuseRRF(e.cfg.RRFK, keywordIDs, nil, nil), nil
	}

	// Semantic signal: embed the query, search the vector index.
	if e.vectors != nil && e.vectors.Count() > 0 {
		queryVec, err := e.embedder.EmbedQuery(ctx, query)
		if err == nil {
			vectorResults, verr := e.vectors.Search(ctx, queryVec.Values, RecallLimit)
			if verr != nil {
				slog.Warn("vector recall failed", slog.String("error", verr.Error()))
			}
			for _, r := range vectorResults {
				vectorIDs = append(vectorIDs, r.ID)
			}
		}
	}

	if ctx.Err() != nil {
		return fuseRRF(e.cfg.RRFK, keywordIDs, vectorIDs, nil), nil
	}

	// Symbol signal: exact and prefix match on name/FQN.
	symbols, err := e.meta.SearchSymbols(ctx, strings.Fields(query)[0], RecallLimit/4)
	if err == nil {
		for _, sym := range symbols {
			if sym.ChunkID != "" {
				symbolIDs = append(symbolIDs, sym.ChunkID)
			}
		}
	}

	fused := fuseRRF(e.cfg.RRFK, keywordIDs, vectorIDs, symbolIDs)
	if len(fused) > RecallLimit {
		fused = fused[:RecallLimit]
	}
	return fused, nil
}

// materialize loads chunk records for fused candidates, dropping ids whose
// chunks vanished under a concurrent delete.
func (e *Engine) materialize(ctx context.Context, fused []*fusedCandidate) ([]*Result, error) {
	ids := make([]string, len(fused))
	byID := make(map[string]*fusedCandidate, len(fused))
	for i, c := range fused {
		ids[i] = c.ChunkID
		byID[c.ChunkID] = c
	}

	chunks, err := e.meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, 0, len(chunks))
	for _, chunk := range chunks {
		c := byID[chunk.ID]
		results = append(results, &Result{
			Chunk:           chunk,
			Score:           c.RRFScore,
			RRFScore:        c.RRFScore,
			KeywordRank:     c.KeywordRank,
			VectorRank:      c.VectorRank,
			SymbolRank:      c.SymbolRank,
			RerankScore:     -1,
			StructuralBoost: 1,
			GraphBoost:      1,
			RecencyBoost:    1,
		})
	}
	return results, nil
}

// rerank applies the cross-encoder stage. With the reranker absent or
// unreachable the stage is skipped gracefully; candidates it did not score
// blend a demoted copy of their fused score instead.
func (e *Engine) rerank(ctx context.Context, query string, results []*Result) error {
	w := e.cfg.RRFWeight

	demote := func() {
		for _, r := range results {
			r.Score = w*r.Score + (1-w)*e.cfg.UnrankedDemotion*r.Score
		}
	}

	if e.reranker == nil || !e.reranker.Available(ctx) {
		demote()
		return nil
	}

	docs := make([]string, len(results))
	for i, r := range results {
		docs[i] = r.Chunk.Content
	}

	scores, err := e.reranker.Rerank(ctx, query, docs)
	if err != nil {
		slog.Warn("rerank stage skipped", slog.String("error", err.Error()))
		demote()
		return nil
	}

	for i, r := range results {
		r.RerankScore = scores[i]
		r.Score = w*r.Score + (1-w)*scores[i]
	}
	return nil
}

// normalizeRRF scales fused scores so the best candidate is 1.0, putting
// RRF on the reranker's [0,1] scale.
func normalizeRRF(results []*Result) {
	max := 0.0
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	if max == 0 {
		return
	}
	for _, r := range results {
		r.Score /= max
		r.RRFScore = r.Score
	}
}

// boost applies structural, graph, and recency multipliers.
func (e *Engine) boost(ctx context.Context, results []*Result) {
	// Resolve candidate symbols for graph signals.
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	symbols, err := e.meta.SymbolsByChunkIDs(ctx, ids)
	if err != nil {
		symbols = map[string]*store.Symbol{}
	}

	// Top-k anchors by current score; their 2-hop neighborhoods grant
	// proximity bonuses.
	anchors := make([]*Result, len(results))
	copy(anchors, results)
	sort.Slice(anchors, func(i, j int) bool { return anchors[i].Score > anchors[j].Score })
	if len(anchors) > anchorCount {
		anchors = anchors[:anchorCount]
	}

	proximity := make(map[string]int) // symbol id -> min distance to any anchor
	for _, anchor := range anchors {
		sym, ok := symbols[anchor.Chunk.ID]
		if !ok {
			continue
		}
		for nbr, dist := range e.graph.Neighbors(sym.ID, 2) {
			if existing, seen := proximity[nbr]; !seen || dist < existing {
				proximity[nbr] = dist
			}
		}
	}

	now := e.now()
	for _, r := range results {
		r.StructuralBoost = structuralBoost(r.Chunk.Weight)

		indegree, distance := 0, 0
		if sym, ok := symbols[r.Chunk.ID]; ok {
			indegree = e.graph.Indegree(sym.ID)
			distance = proximity[sym.ID]
		}
		r.GraphBoost = graphBoost(indegree, distance)

		if e.cfg.RecencyBoostEnabled {
			r.RecencyBoost = recencyBoost(r.Chunk.UpdatedAt, now)
		}

		r.Score *= r.StructuralBoost * r.GraphBoost * r.RecencyBoost
	}
}

// normalizeQuery collapses whitespace so equivalent queries rank
// identically.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
