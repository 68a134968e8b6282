package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	lerrors "github.com/locus-dev/locus/internal/errors"
	"github.com/locus-dev/locus/internal/store"
)

// Status reports engine health and index contents.
type Status struct {
	InstanceID string    `json:"instance_id"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"started_at"`

	Files       int `json:"files"`
	Chunks      int `json:"chunks"`
	Symbols     int `json:"symbols"`
	Edges       int `json:"edges"`
	Communities int `json:"communities"`
	FailedFiles int `json:"failed_files"`

	// EmbeddingCoveragePercent is always 100 when any chunks exist: the
	// coverage invariant guarantees every chunk a vector, degraded or not.
	EmbeddingCoveragePercent float64 `json:"embedding_coverage_percent"`
	EmbedderDegraded         bool    `json:"embedder_degraded"`
	DegradedChunks           int     `json:"degraded_chunks"`
	GraphDegraded            bool    `json:"graph_degraded"`
	VectorsRebuilt           bool    `json:"vectors_rebuilt"`
	Fatal                    string  `json:"fatal,omitempty"`

	RecoverableFailures int64  `json:"recoverable_failures"`
	LastFullScan        string `json:"last_full_scan,omitempty"`
}

// Status reports current engine state under the reader lock.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats, err := e.meta.Stats(ctx)
	if err != nil {
		return nil, err
	}

	lastScan, _ := e.meta.GetState(ctx, store.StateKeyLastFullScan)

	st := &Status{
		InstanceID:          e.instanceID,
		Root:                e.root,
		StartedAt:           e.startedAt,
		Files:               stats.Files,
		Chunks:              stats.Chunks,
		Symbols:             stats.Symbols,
		Edges:               stats.Edges,
		Communities:         stats.Communities,
		FailedFiles:         stats.FailedFiles,
		DegradedChunks:      stats.DegradedChunks,
		EmbedderDegraded:    e.embedder.DegradedPrimary() || !e.embedder.Available(ctx),
		GraphDegraded:       e.graphDegraded,
		VectorsRebuilt:      e.vectorsRebuilt,
		RecoverableFailures: e.pipeline.RecoverableFailures(),
		LastFullScan:        lastScan,
	}
	if stats.Chunks > 0 {
		st.EmbeddingCoveragePercent = 100 * float64(stats.ChunksWithVector) / float64(stats.Chunks)
	}
	if e.fatal != nil {
		st.Fatal = e.fatal.Error()
	}
	return st, nil
}

// SymbolInfo is the GetSymbol contract: the symbol plus its chunk.
type SymbolInfo struct {
	Symbol *store.Symbol `json:"symbol"`
	Chunk  *store.Chunk  `json:"chunk,omitempty"`
}

// GetSymbol resolves a name or FQN to its best-matching symbol.
func (e *Engine) GetSymbol(ctx context.Context, nameOrFQN string) (*SymbolInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sym, err := e.meta.SymbolByFQN(ctx, nameOrFQN)
	if err != nil {
		return nil, err
	}
	if sym == nil {
		sym, err = e.meta.FuzzySymbolByName(ctx, nameOrFQN)
		if err != nil {
			return nil, err
		}
	}
	if sym == nil {
		return nil, lerrors.New(lerrors.ErrCodeSymbolMissing,
			"symbol not found: "+nameOrFQN, nil)
	}

	info := &SymbolInfo{Symbol: sym}
	if sym.ChunkID != "" {
		info.Chunk, _ = e.meta.GetChunk(ctx, sym.ChunkID)
	}
	return info, nil
}

// Direction selects the traversal orientation for GetDependencies.
type Direction string

const (
	DirectionUpstream   Direction = "upstream"
	DirectionDownstream Direction = "downstream"
	DirectionBoth       Direction = "both"
)

// Dependency is one related symbol with its distance.
type Dependency struct {
	Symbol   *store.Symbol `json:"symbol"`
	Distance int           `json:"distance"`
}

// GetDependencies returns symbols within depth hops of the named symbol.
func (e *Engine) GetDependencies(ctx context.Context, nameOrFQN string, depth int, direction Direction) ([]Dependency, error) {
	info, err := e.GetSymbol(ctx, nameOrFQN)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var related map[string]int
	switch direction {
	case DirectionUpstream:
		related = e.graph.Upstream(info.Symbol.ID, depth)
	case DirectionDownstream:
		related = e.graph.Downstream(info.Symbol.ID, depth)
	default:
		related = e.graph.Neighbors(info.Symbol.ID, depth)
	}
	if len(related) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(related))
	for id := range related {
		ids = append(ids, id)
	}
	symbols, err := e.meta.SymbolsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	deps := make([]Dependency, 0, len(symbols))
	for _, sym := range symbols {
		deps = append(deps, Dependency{Symbol: sym, Distance: related[sym.ID]})
	}
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Distance != deps[j].Distance {
			return deps[i].Distance < deps[j].Distance
		}
		return deps[i].Symbol.FQN < deps[j].Symbol.FQN
	})
	return deps, nil
}

// FileSummary is the GetFileSummary contract.
type FileSummary struct {
	File    *store.File     `json:"file"`
	Symbols []*store.Symbol `json:"symbols"`
	Chunks  int             `json:"chunks"`
}

// GetFileSummary describes one indexed file.
func (e *Engine) GetFileSummary(ctx context.Context, path string) (*FileSummary, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	file, err := e.meta.GetFileByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, lerrors.New(lerrors.ErrCodeFileNotFound, "file not indexed: "+path, nil)
	}

	symbols, err := e.meta.SymbolsByFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	chunks, err := e.meta.ChunksByFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	return &FileSummary{File: file, Symbols: symbols, Chunks: len(chunks)}, nil
}

// Architecture is the GetArchitecture contract: community clusters plus
// per-language volume.
type Architecture struct {
	Communities []store.Community `json:"communities"`
	Languages   map[string]int    `json:"languages"` // language -> file count
}

// GetArchitecture summarizes the codebase structure.
func (e *Engine) GetArchitecture(ctx context.Context) (*Architecture, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	communities, err := e.meta.Communities(ctx)
	if err != nil {
		return nil, err
	}

	files, err := e.meta.AllFiles(ctx)
	if err != nil {
		return nil, err
	}
	languages := make(map[string]int)
	for _, f := range files {
		if f.Language != "" {
			languages[f.Language]++
		}
	}

	return &Architecture{Communities: communities, Languages: languages}, nil
}

// GetRecentChanges returns files modified within the window, most recent
// first, optionally filtered by a topic substring on the path.
func (e *Engine) GetRecentChanges(ctx context.Context, topic string, days int) ([]*store.File, error) {
	if days <= 0 {
		days = 7
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	files, err := e.meta.AllFiles(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	topic = strings.ToLower(topic)

	var recent []*store.File
	for _, f := range files {
		if f.LastModified.Before(cutoff) {
			continue
		}
		if topic != "" && !strings.Contains(strings.ToLower(f.Path), topic) {
			continue
		}
		recent = append(recent, f)
	}

	sort.Slice(recent, func(i, j int) bool {
		if !recent[i].LastModified.Equal(recent[j].LastModified) {
			return recent[i].LastModified.After(recent[j].LastModified)
		}
		return recent[i].Path < recent[j].Path
	})
	return recent, nil
}

// FindPatterns returns symbols whose name or FQN matches the pattern
// prefix, for structure-oriented queries.
func (e *Engine) FindPatterns(ctx context.Context, pattern string) ([]*store.Symbol, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.meta.SearchSymbols(ctx, pattern, 50)
}

// CodebaseOverview is the ExplainCodebase contract.
type CodebaseOverview struct {
	Stats       *store.Stats   `json:"stats"`
	Languages   map[string]int `json:"languages"`
	Communities int            `json:"communities"`
	Cycles      [][]string     `json:"cycles,omitempty"`
}

// ExplainCodebase assembles the structural overview an agent needs to
// orient itself; it returns data, not prose.
func (e *Engine) ExplainCodebase(ctx context.Context) (*CodebaseOverview, error) {
	arch, err := e.GetArchitecture(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	stats, err := e.meta.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &CodebaseOverview{
		Stats:       stats,
		Languages:   arch.Languages,
		Communities: len(arch.Communities),
		Cycles:      e.graph.DetectCycles(),
	}, nil
}
