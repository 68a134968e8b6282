// Package engine assembles the core subsystems into one shared instance:
// stores, graph, embedder, search, and the reindex pipeline, guarded by an
// outer reader-writer lock. Readers (search, context assembly, status) run
// in parallel; writers (reindex, hydration, community recompute) are
// exclusive.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/locus-dev/locus/internal/assemble"
	"github.com/locus-dev/locus/internal/chunk"
	"github.com/locus-dev/locus/internal/config"
	"github.com/locus-dev/locus/internal/embed"
	lerrors "github.com/locus-dev/locus/internal/errors"
	"github.com/locus-dev/locus/internal/graph"
	"github.com/locus-dev/locus/internal/index"
	"github.com/locus-dev/locus/internal/parser"
	"github.com/locus-dev/locus/internal/scanner"
	"github.com/locus-dev/locus/internal/search"
	"github.com/locus-dev/locus/internal/store"
	"github.com/locus-dev/locus/internal/watcher"
)

// Engine is the shared core instance. One engine owns one repository's
// index; consumers hold shared handles and the engine serializes writers
// through mu.
type Engine struct {
	mu sync.RWMutex

	root     string
	stateDir string
	cfg      *config.Config

	fileLock *flock.Flock

	meta     *store.MetadataStore
	vectors  store.VectorIndex
	keyword  store.KeywordIndex
	embedder *embed.CoverageEmbedder
	graph    *graph.Graph
	searcher *search.Engine
	pipeline *index.Pipeline
	scanner  *scanner.Scanner
	watch    *watcher.Watcher

	instanceID string
	startedAt  time.Time

	// degraded state flags
	graphDegraded  bool
	vectorsRebuilt bool
	fatal          error

	cancel context.CancelFunc
}

// Open builds an engine for the repository at root. The state directory is
// locked for a single local owner; a second owner fails fast.
func Open(ctx context.Context, root string, cfg *config.Config) (*Engine, error) {
	stateDir, err := config.StateDir(root)
	if err != nil {
		return nil, lerrors.ConfigError("resolve state directory", err)
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, lerrors.StoreError("create state directory", err)
	}

	fileLock := flock.New(filepath.Join(stateDir, "engine.lock"))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, lerrors.StoreError("acquire engine lock", err)
	}
	if !locked {
		return nil, lerrors.New(lerrors.ErrCodeLocked,
			"index is locked by another engine instance", nil)
	}

	e := &Engine{
		root:       root,
		stateDir:   stateDir,
		cfg:        cfg,
		fileLock:   fileLock,
		instanceID: uuid.NewString(),
		startedAt:  time.Now(),
	}

	if err := e.openStores(ctx); err != nil {
		_ = fileLock.Unlock()
		return nil, err
	}

	e.hydrateGraph(ctx)
	e.buildPipeline()
	return e, nil
}

// openStores opens the metadata store, embedder, vector index, and keyword
// backend, handling dimension and model changes by dropping vectors for
// re-embedding.
func (e *Engine) openStores(ctx context.Context) error {
	meta, err := store.OpenMetadataStore(filepath.Join(e.stateDir, "metadata.db"))
	if err != nil {
		return lerrors.StoreError("open metadata store", err)
	}
	e.meta = meta

	e.embedder = embed.NewEmbedder(ctx, embed.FactoryConfig{
		Endpoint:         e.cfg.Embedding.Endpoint,
		Model:            e.cfg.Embedding.Model,
		Dimensions:       e.cfg.Embedding.Dimensions,
		BatchSize:        e.cfg.Embedding.BatchSize,
		MaxSeqLength:     e.cfg.Embedding.MaxSeqLength,
		InferenceTimeout: embed.DefaultInferenceTimeout,
	})

	vectorPath := filepath.Join(e.stateDir, "vectors.hnsw")
	dims := e.embedder.Dimensions()
	modelID := e.embedder.ModelID()

	// A changed dimension or model invalidates persisted vectors.
	storedDims, _ := e.meta.GetState(ctx, store.StateKeyVectorDim)
	storedModel, _ := e.meta.GetState(ctx, store.StateKeyEmbeddingModel)
	if storedDims != "" && (storedDims != strconv.Itoa(dims) || storedModel != modelID) {
		slog.Warn("embedding configuration changed, dropping vector index",
			slog.String("stored_model", storedModel),
			slog.String("model", modelID),
		)
		_ = os.Remove(vectorPath)
		_ = os.Remove(vectorPath + ".meta")
		e.vectorsRebuilt = true
	}

	vectors, err := store.OpenHNSWIndex(vectorPath, dims, modelID)
	if err != nil {
		// Corrupt or mismatched index: drop and re-embed in background
		// while keyword search keeps serving.
		slog.Warn("vector index unusable, rebuilding",
			slog.String("error", err.Error()),
		)
		_ = os.Remove(vectorPath)
		_ = os.Remove(vectorPath + ".meta")
		e.vectorsRebuilt = true
		vectors, err = store.NewHNSWIndex(dims, modelID)
		if err != nil {
			return lerrors.StoreError("create vector index", err)
		}
	}
	e.vectors = vectors

	_ = e.meta.SetState(ctx, store.StateKeyVectorDim, strconv.Itoa(dims))
	_ = e.meta.SetState(ctx, store.StateKeyEmbeddingModel, modelID)

	keyword, err := store.NewKeywordIndex(e.cfg.Search.KeywordBackend, e.stateDir, e.meta)
	if err != nil {
		return lerrors.StoreError("open keyword index", err)
	}
	e.keyword = keyword

	sc, err := scanner.New(e.root, e.cfg.Indexing.ExcludedPaths, e.cfg.Indexing.MaxFileSize)
	if err != nil {
		return lerrors.ConfigError("build scanner", err)
	}
	e.scanner = sc

	return nil
}

// hydrateGraph rebuilds the in-memory graph from persisted edges. Failure
// degrades to an empty graph with a warning.
func (e *Engine) hydrateGraph(ctx context.Context) {
	e.graph = graph.New()

	edges, err := e.meta.AllDependencies(ctx)
	if err != nil {
		slog.Warn("graph hydration failed, proceeding with empty graph",
			slog.String("error", err.Error()),
		)
		e.graphDegraded = true
		return
	}
	e.graph.Hydrate(edges)
}

// buildPipeline wires the reindex pipeline and the search engine.
func (e *Engine) buildPipeline() {
	budget := parser.Budget{
		MaxFileSize:  e.cfg.Indexing.MaxFileSize,
		MaxParseTime: int64(e.cfg.Indexing.ParseTimeoutMS),
		MaxDepth:     e.cfg.Indexing.MaxASTDepth,
	}
	registry := parser.NewRegistry(budget)

	e.pipeline = index.NewPipeline(e.scanner, registry, e.embedder,
		e.meta, e.vectors, e.keyword, e.graph, index.Config{
			Chunking: chunk.Options{
				MaxTokens:             e.cfg.Indexing.MaxChunkTokens,
				BackwardOverlapTokens: e.cfg.Indexing.BackwardOverlapTokens,
				BackwardOverlapLines:  e.cfg.Indexing.BackwardOverlapLines,
				ForwardOverlapTokens:  e.cfg.Indexing.ForwardOverlapTokens,
				ForwardOverlapLines:   e.cfg.Indexing.ForwardOverlapLines,
			},
			CochangeCommits:   e.cfg.Graph.CochangeCommits,
			CochangeThreshold: e.cfg.Graph.CochangeThreshold,
		})

	var reranker search.Reranker
	if e.cfg.Search.RerankerEndpoint != "" {
		if r, err := search.NewHTTPReranker(e.cfg.Search.RerankerEndpoint, 0); err == nil {
			reranker = r
		}
	}

	e.searcher = search.NewEngine(e.meta, e.keyword, e.vectors, e.embedder,
		e.graph, reranker, search.Config{
			RRFK:                e.cfg.Search.RRFK,
			RRFWeight:           e.cfg.Search.RRFWeight,
			UnrankedDemotion:    e.cfg.Search.UnrankedDemotion,
			RecencyBoostEnabled: e.cfg.Search.RecencyBoostEnabled,
		})
}

// Index runs a full scan under the writer lock: every file (re)indexed,
// communities recomputed, co-change edges refreshed, vectors persisted.
// With force set the content-hash short circuit is disabled and every
// file is rebuilt.
func (e *Engine) Index(ctx context.Context, force bool, progress func(done, total int)) error {
	if err := e.checkFatal(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pipeline.SetForce(force)
	defer e.pipeline.SetForce(false)

	if err := e.pipeline.FullScan(ctx, progress); err != nil {
		return e.noteFatal(err)
	}
	if err := e.pipeline.RecomputeCommunities(ctx); err != nil {
		slog.Warn("community recompute failed", slog.String("error", err.Error()))
	}
	if err := e.pipeline.CochangePass(ctx); err != nil {
		slog.Warn("co-change pass failed", slog.String("error", err.Error()))
	}
	return e.persistVectors()
}

// Watch starts live reindexing: filesystem events drive per-file updates,
// and the periodic rescan recovers from missed events. Blocks until the
// context is cancelled.
func (e *Engine) Watch(ctx context.Context) error {
	if err := e.checkFatal(); err != nil {
		return err
	}

	w, err := watcher.New(e.root, e.scanner, watcher.Options{
		DebounceWindow:   e.cfg.DebounceWindow(),
		FullScanInterval: e.cfg.FullScanInterval(),
	})
	if err != nil {
		return lerrors.New(lerrors.ErrCodeInternal, "create watcher", err)
	}
	e.watch = w

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer cancel()

	if err := w.Start(runCtx); err != nil {
		return lerrors.New(lerrors.ErrCodeInternal, "start watcher", err)
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-runCtx.Done():
			return nil

		case events, ok := <-w.Events():
			if !ok {
				return nil
			}
			e.mu.Lock()
			err := e.pipeline.HandleEvents(runCtx, events)
			if err == nil {
				err = e.pipeline.RecomputeCommunities(runCtx)
			}
			if err == nil {
				err = e.persistVectors()
			}
			e.mu.Unlock()
			if err != nil && runCtx.Err() == nil {
				slog.Warn("event batch failed", slog.String("error", err.Error()))
			}

		case <-w.Rescan():
			e.mu.Lock()
			if err := e.pipeline.FullScan(runCtx, nil); err != nil && runCtx.Err() == nil {
				slog.Warn("periodic rescan failed", slog.String("error", err.Error()))
			}
			e.mu.Unlock()

		case werr, ok := <-w.Errors():
			if ok && werr != nil {
				slog.Warn("watcher error", slog.String("error", werr.Error()))
			}
		}
	}
}

// Search runs a hybrid query under the reader lock.
func (e *Engine) Search(ctx context.Context, query string, opts search.Options) (*search.Response, error) {
	if err := e.checkFatal(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.searcher.Search(ctx, query, opts)
}

// ContextWindow assembles a token-budgeted context bundle for a query.
func (e *Engine) ContextWindow(ctx context.Context, query string, budget int, activeFile string) (*assemble.ContextWindow, error) {
	if err := e.checkFatal(); err != nil {
		return nil, err
	}
	if budget <= 0 {
		budget = e.cfg.Search.TokenBudget
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	resp, err := e.searcher.Search(ctx, query, search.Options{Limit: search.RecallLimit})
	if err != nil {
		return nil, err
	}

	// Anchor neighborhoods feed priority assignment.
	strategy := assemble.StrategyFor(assemble.ClassifyIntent(query))
	neighbors := e.chunkNeighbors(ctx, resp.Results, strategy.GraphDepth)

	return assemble.Assemble(assemble.Input{
		Query:          query,
		Results:        resp.Results,
		Budget:         budget,
		ActiveFile:     activeFile,
		GraphNeighbors: neighbors,
	}), nil
}

// chunkNeighbors maps chunk ids to their graph distance from the top
// results' symbols.
func (e *Engine) chunkNeighbors(ctx context.Context, results []*search.Result, depth int) map[string]int {
	if depth <= 0 || len(results) == 0 {
		return nil
	}

	top := results
	if len(top) > 5 {
		top = top[:5]
	}
	ids := make([]string, 0, len(top))
	for _, r := range top {
		ids = append(ids, r.Chunk.ID)
	}

	symbols, err := e.meta.SymbolsByChunkIDs(ctx, ids)
	if err != nil {
		return nil
	}

	// Collect neighbor symbol ids with their minimum distance.
	neighborSymbols := make(map[string]int)
	for _, sym := range symbols {
		for nbrID, dist := range e.graph.Neighbors(sym.ID, depth) {
			if existing, ok := neighborSymbols[nbrID]; !ok || dist < existing {
				neighborSymbols[nbrID] = dist
			}
		}
	}
	if len(neighborSymbols) == 0 {
		return nil
	}

	nbrIDs := make([]string, 0, len(neighborSymbols))
	for id := range neighborSymbols {
		nbrIDs = append(nbrIDs, id)
	}
	resolved, err := e.meta.SymbolsByIDs(ctx, nbrIDs)
	if err != nil {
		return nil
	}

	neighborChunks := make(map[string]int)
	for _, nbr := range resolved {
		if nbr.ChunkID == "" {
			continue
		}
		dist := neighborSymbols[nbr.ID]
		if existing, ok := neighborChunks[nbr.ChunkID]; !ok || dist < existing {
			neighborChunks[nbr.ChunkID] = dist
		}
	}
	return neighborChunks
}

// persistVectors writes the vector index to its state file.
func (e *Engine) persistVectors() error {
	return e.vectors.Persist(filepath.Join(e.stateDir, "vectors.hnsw"))
}

// checkFatal surfaces a prior fatal condition; the engine refuses work
// until it is cleared.
func (e *Engine) checkFatal() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fatal
}

// noteFatal records fatal-severity errors; recoverable errors pass
// through.
func (e *Engine) noteFatal(err error) error {
	if lerrors.IsFatal(err) {
		e.fatal = err
	}
	return err
}

// Close shuts everything down and releases the state lock.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	note(e.persistVectors())
	note(e.keyword.Close())
	note(e.vectors.Close())
	note(e.embedder.Close())
	note(e.meta.Close())
	note(e.fileLock.Unlock())
	return firstErr
}

// Root returns the repository root.
func (e *Engine) Root() string {
	return e.root
}
