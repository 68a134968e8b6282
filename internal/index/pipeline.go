// Package index owns the reindex pipeline: it turns filesystem events into
// per-file transactional updates across the metadata store, the vector
// index, and the in-memory dependency graph.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/locus-dev/locus/internal/chunk"
	"github.com/locus-dev/locus/internal/embed"
	"github.com/locus-dev/locus/internal/gitx"
	"github.com/locus-dev/locus/internal/graph"
	"github.com/locus-dev/locus/internal/parser"
	"github.com/locus-dev/locus/internal/scanner"
	"github.com/locus-dev/locus/internal/store"
	"github.com/locus-dev/locus/internal/watcher"
)

// scanWorkers bounds concurrent parse/chunk/embed work during full scans.
// Store writes stay serialized inside the metadata store.
const scanWorkers = 4

// Config tunes the pipeline.
type Config struct {
	Chunking chunk.Options
	// CochangeCommits bounds the history walk.
	CochangeCommits int
	// CochangeThreshold is the minimum coupling to keep.
	CochangeThreshold float64
}

// Pipeline orchestrates per-file updates.
type Pipeline struct {
	scanner  *scanner.Scanner
	registry *parser.Registry
	chunker  *chunk.Chunker
	embedder *embed.CoverageEmbedder
	meta     *store.MetadataStore
	vectors  store.VectorIndex
	keyword  store.KeywordIndex
	graph    *graph.Graph
	resolve  *resolver
	cfg      Config

	// recoverableFailures counts per-unit failures absorbed by the
	// pipeline.
	recoverableFailures atomic.Int64

	// force disables the content-hash short circuit, reindexing files
	// whose bytes have not changed. Toggled only between scans, under the
	// engine's writer lock.
	force bool
}

// SetForce toggles forced reindexing for subsequent updates.
func (p *Pipeline) SetForce(force bool) {
	p.force = force
}

// NewPipeline wires the pipeline over the shared stores.
func NewPipeline(sc *scanner.Scanner, registry *parser.Registry, embedder *embed.CoverageEmbedder,
	meta *store.MetadataStore, vectors store.VectorIndex, keyword store.KeywordIndex,
	depGraph *graph.Graph, cfg Config) *Pipeline {
	return &Pipeline{
		scanner:  sc,
		registry: registry,
		chunker:  chunk.NewChunker(cfg.Chunking),
		embedder: embedder,
		meta:     meta,
		vectors:  vectors,
		keyword:  keyword,
		graph:    depGraph,
		resolve:  &resolver{meta: meta},
		cfg:      cfg,
	}
}

// RecoverableFailures returns the count of absorbed per-unit failures.
func (p *Pipeline) RecoverableFailures() int64 {
	return p.recoverableFailures.Load()
}

// HandleEvents applies a debounced event batch. Per-file failures are
// recoverable: counted, logged, the file marked for retry.
func (p *Pipeline) HandleEvents(ctx context.Context, events []watcher.Event) error {
	for _, ev := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var err error
		switch ev.Operation {
		case watcher.OpDelete:
			err = p.RemoveFile(ctx, ev.Path)
		case watcher.OpRename:
			if ev.OldPath != "" {
				if rerr := p.RemoveFile(ctx, ev.OldPath); rerr != nil {
					slog.Warn("remove renamed file failed",
						slog.String("path", ev.OldPath),
						slog.String("error", rerr.Error()))
				}
			}
			err = p.IndexFile(ctx, ev.Path)
		default:
			err = p.IndexFile(ctx, ev.Path)
		}

		if err != nil {
			p.recoverableFailures.Add(1)
			slog.Warn("file update failed",
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()),
				slog.String("error", err.Error()),
			)
			_ = p.meta.MarkFileFailed(ctx, ev.Path, err.Error())
		}
	}
	return nil
}

// IndexFile runs the per-file update: parse, chunk, embed, then an atomic
// replace of the file's chunks, symbols, and edges, followed by vector and
// graph application. Unchanged content (by hash) is skipped.
func (p *Pipeline) IndexFile(ctx context.Context, relPath string) error {
	content, err := p.scanner.ReadFile(relPath)
	if err != nil {
		if os.IsNotExist(err) {
			return p.RemoveFile(ctx, relPath)
		}
		return fmt.Errorf("read %s: %w", relPath, err)
	}

	contentHash := hashBytes(content)
	stored, err := p.meta.GetFileByPath(ctx, relPath)
	if err != nil {
		return err
	}
	if !p.force && stored != nil && stored.ContentHash == contentHash && !stored.Failed {
		return nil
	}

	language := p.registry.DetectLanguage(relPath, content)
	if language == "" {
		return nil // unsupported file type
	}

	result, err := p.registry.Analyze(ctx, relPath, content)
	if err != nil || result == nil {
		return err
	}

	update, err := p.prepare(ctx, relPath, language, content, contentHash, result)
	if err != nil {
		return err
	}

	return p.apply(ctx, stored, update)
}

// fileUpdate is a fully prepared per-file replacement.
type fileUpdate struct {
	file    *store.File
	chunks  []*store.Chunk
	symbols []*store.Symbol
	edges   []store.DependencyEdge
	vectors [][]float32
}

// prepare builds the replacement entities for a file: chunks with
// embeddings, symbols with FQNs, and resolved edges.
func (p *Pipeline) prepare(ctx context.Context, relPath, language string, content []byte, contentHash string, result *parser.Result) (*fileUpdate, error) {
	now := time.Now()
	fileID := hashString(relPath)

	info, _ := os.Stat(p.absPath(relPath))
	var size int64
	modTime := now
	if info != nil {
		size = info.Size()
		modTime = info.ModTime()
	}

	file := &store.File{
		ID:            fileID,
		Path:          relPath,
		Language:      language,
		ContentHash:   contentHash,
		Size:          size,
		LastModified:  modTime,
		IndexedAt:     now,
		ParseDegraded: result.Degraded,
	}

	separator := p.registry.SeparatorFor(language)
	module := parser.ModuleName(relPath, separator)

	// Symbols from named elements.
	symbols := make([]*store.Symbol, 0, len(result.Elements))
	symbolByPath := make(map[string]*store.Symbol)
	for _, elem := range result.Elements {
		if elem.Name == "" {
			continue
		}
		fqn := parser.FQN(module, elem.ScopePath, elem.Name, separator)
		sym := &store.Symbol{
			ID:     hashString(fqn),
			Name:   elem.Name,
			FQN:    fqn,
			Kind:   store.ChunkKind(elem.Kind),
			FileID: fileID,
			Line:   elem.StartLine,
		}
		symbols = append(symbols, sym)
		symbolByPath[parser.SymbolPath(elem.ScopePath, elem.Name, ".")] = sym
	}

	// Chunks, linked to their owning symbols.
	drafts := p.chunker.Chunk(&chunk.File{
		Path:     relPath,
		Language: language,
		Source:   content,
		Elements: result.Elements,
	})

	importPaths := make([]string, 0, len(result.Imports))
	for _, imp := range result.Imports {
		importPaths = append(importPaths, imp.Path)
	}

	chunks := make([]*store.Chunk, 0, len(drafts))
	texts := make([]string, 0, len(drafts))
	for _, d := range drafts {
		id := hashString(relPath + ":" + strconv.Itoa(d.StartLine) + ":" + contentHash)
		refNames := make([]string, 0, len(d.References))
		for _, r := range d.References {
			refNames = append(refNames, r.Name)
		}
		c := &store.Chunk{
			ID:         id,
			FileID:     fileID,
			FilePath:   relPath,
			SymbolPath: d.SymbolPath,
			Kind:       store.ChunkKind(d.Kind),
			Visibility: string(d.Visibility),
			StartLine:  d.StartLine,
			EndLine:    d.EndLine,
			Content:    d.Content,
			DocComment: d.DocComment,
			References: refNames,
			Imports:    importPaths,
			TokenCount: d.TokenCount,
			Weight:     d.Weight,
			Language:   language,
			UpdatedAt:  now,
		}
		chunks = append(chunks, c)
		texts = append(texts, embed.Sanitize(d.Content))

		if sym, ok := symbolByPath[d.SymbolPath]; ok && sym.ChunkID == "" {
			sym.ChunkID = id
		}
	}

	// Embed with guaranteed coverage: one vector per chunk, degraded
	// vectors flagged.
	embedded, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", relPath, err)
	}
	vectors := make([][]float32, len(chunks))
	for i, v := range embedded {
		chunks[i].VectorID = chunks[i].ID
		chunks[i].EmbeddingDegraded = v.Degraded
		vectors[i] = v.Values
	}

	edges := p.resolveEdges(ctx, result, symbols, symbolByPath)

	return &fileUpdate{
		file:    file,
		chunks:  chunks,
		symbols: symbols,
		edges:   edges,
		vectors: vectors,
	}, nil
}

// resolveEdges produces import and reference edges via the resolution
// cascade. Misses are recoverable and only counted.
func (p *Pipeline) resolveEdges(ctx context.Context, result *parser.Result, symbols []*store.Symbol, symbolByPath map[string]*store.Symbol) []store.DependencyEdge {
	var edges []store.DependencyEdge

	owner := representative(symbols)
	if owner == nil {
		return nil
	}

	localByName := make(map[string]*store.Symbol, len(symbols))
	for _, sym := range symbols {
		if _, taken := localByName[sym.Name]; !taken {
			localByName[sym.Name] = sym
		}
	}

	// Imports attach to the file's representative symbol.
	for _, imp := range result.Imports {
		names := imp.Names
		if len(names) == 0 {
			names = []string{""}
		}
		for _, name := range names {
			target, err := p.resolve.resolveImport(ctx, imp.Path, name)
			if err != nil || target == nil {
				if err == nil {
					p.recoverableFailures.Add(1)
				}
				continue
			}
			edges = append(edges, store.DependencyEdge{
				SourceID: owner.ID,
				TargetID: target.ID,
				Kind:     store.EdgeImports,
			})
		}
	}

	// References attach to the symbol owning each element.
	for _, elem := range result.Elements {
		source := symbolByPath[parser.SymbolPath(elem.ScopePath, elem.Name, ".")]
		if source == nil {
			source = owner
		}
		for _, ref := range elem.References {
			target := localByName[terminalName(ref.Name)]
			if target == nil {
				resolved, err := p.resolve.resolveReference(ctx, ref.Name)
				if err != nil || resolved == nil {
					continue
				}
				target = resolved
			}
			if target.ID == source.ID {
				continue
			}
			edges = append(edges, store.DependencyEdge{
				SourceID: source.ID,
				TargetID: target.ID,
				Kind:     edgeKindFor(ref.Kind),
			})
		}
	}

	return dedupeEdges(edges)
}

// apply commits the replacement: vectors first, then the metadata
// transaction, then the keyword backend and the in-memory graph.
func (p *Pipeline) apply(ctx context.Context, stored *store.File, update *fileUpdate) error {
	// Old state to retire.
	var oldChunkIDs, oldSymbolIDs []string
	if stored != nil {
		oldChunks, err := p.meta.ChunksByFile(ctx, stored.ID)
		if err != nil {
			return err
		}
		for _, c := range oldChunks {
			oldChunkIDs = append(oldChunkIDs, c.ID)
		}
		oldSymbols, err := p.meta.SymbolsByFile(ctx, stored.ID)
		if err != nil {
			return err
		}
		for _, s := range oldSymbols {
			oldSymbolIDs = append(oldSymbolIDs, s.ID)
		}
	}

	newIDs := make([]string, len(update.chunks))
	for i, c := range update.chunks {
		newIDs[i] = c.ID
	}
	if err := p.vectors.Add(ctx, newIDs, update.vectors); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}

	if err := p.meta.ReplaceFileData(ctx, update.file, update.chunks, update.symbols, update.edges); err != nil {
		return err
	}

	// Retire vectors for chunks that no longer exist.
	stale := diffIDs(oldChunkIDs, newIDs)
	if len(stale) > 0 {
		_ = p.vectors.Remove(ctx, stale)
	}

	if len(oldChunkIDs) > 0 {
		_ = p.keyword.Delete(ctx, oldChunkIDs)
	}
	if err := p.keyword.Index(ctx, update.chunks); err != nil {
		slog.Warn("keyword index update failed", slog.String("error", err.Error()))
	}

	// Mirror the committed edges into the in-memory graph.
	p.graph.RemoveSymbols(diffIDs(oldSymbolIDs, symbolIDs(update.symbols)))
	for _, sym := range update.symbols {
		p.graph.AddSymbol(sym.ID)
	}
	for _, e := range update.edges {
		p.graph.AddEdge(e)
	}

	return nil
}

// RemoveFile deletes a file and its derived state everywhere.
func (p *Pipeline) RemoveFile(ctx context.Context, relPath string) error {
	stored, err := p.meta.GetFileByPath(ctx, relPath)
	if err != nil || stored == nil {
		return err
	}

	chunks, err := p.meta.ChunksByFile(ctx, stored.ID)
	if err != nil {
		return err
	}
	symbols, err := p.meta.SymbolsByFile(ctx, stored.ID)
	if err != nil {
		return err
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}

	if err := p.meta.DeleteFileData(ctx, relPath); err != nil {
		return err
	}

	_ = p.vectors.Remove(ctx, chunkIDs)
	_ = p.keyword.Delete(ctx, chunkIDs)
	p.graph.RemoveSymbols(symbolIDs(symbols))
	return nil
}

// FullScan reconciles the index with disk: every on-disk file is
// (re)indexed if its hash changed, and files that disappeared are removed.
// After a drained event queue plus one full scan, engine state equals a
// cold scan of the filesystem.
func (p *Pipeline) FullScan(ctx context.Context, progress func(done, total int)) error {
	files, err := p.scanner.Scan()
	if err != nil {
		return err
	}

	stored, err := p.meta.AllFiles(ctx)
	if err != nil {
		return err
	}

	onDisk := make(map[string]bool, len(files))
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for _, f := range files {
		onDisk[f.Path] = true
		relPath := f.Path
		g.Go(func() error {
			if err := p.IndexFile(gctx, relPath); err != nil {
				p.recoverableFailures.Add(1)
				slog.Warn("scan index failed",
					slog.String("path", relPath),
					slog.String("error", err.Error()),
				)
				_ = p.meta.MarkFileFailed(gctx, relPath, err.Error())
			}
			if progress != nil {
				progress(int(done.Add(1)), len(files))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for path := range stored {
		if !onDisk[path] {
			if err := p.RemoveFile(ctx, path); err != nil {
				slog.Warn("scan remove failed",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return p.meta.SetState(ctx, store.StateKeyLastFullScan, time.Now().UTC().Format(time.RFC3339))
}

// RecomputeCommunities refreshes the persisted community assignment from
// the current graph.
func (p *Pipeline) RecomputeCommunities(ctx context.Context) error {
	communities := p.graph.DetectCommunities()
	return p.meta.StoreCommunities(ctx, communities)
}

// CochangePass derives co-change edges from version control history.
// Edges attach to the representative (first) symbol of each file and are
// inserted bidirectionally.
func (p *Pipeline) CochangePass(ctx context.Context) error {
	pairs, err := gitx.AnalyzeCochanges(ctx, p.scanner.Root(), gitx.Options{
		MaxCommits: p.cfg.CochangeCommits,
		Threshold:  p.cfg.CochangeThreshold,
	})
	if err != nil {
		return err
	}

	for _, pair := range pairs {
		symA, err := p.representativeSymbol(ctx, pair.PathA)
		if err != nil {
			return err
		}
		symB, err := p.representativeSymbol(ctx, pair.PathB)
		if err != nil {
			return err
		}
		if symA == nil || symB == nil {
			continue
		}

		for _, e := range []store.DependencyEdge{
			{SourceID: symA.ID, TargetID: symB.ID, Kind: store.EdgeCoChanges},
			{SourceID: symB.ID, TargetID: symA.ID, Kind: store.EdgeCoChanges},
		} {
			if err := p.meta.InsertEdgeIfAbsent(ctx, e); err != nil {
				return err
			}
			p.graph.AddEdge(e)
		}
	}
	return nil
}

// representativeSymbol returns a file's first symbol by line then FQN.
func (p *Pipeline) representativeSymbol(ctx context.Context, relPath string) (*store.Symbol, error) {
	file, err := p.meta.GetFileByPath(ctx, relPath)
	if err != nil || file == nil {
		return nil, err
	}
	symbols, err := p.meta.SymbolsByFile(ctx, file.ID)
	if err != nil || len(symbols) == 0 {
		return nil, err
	}
	return symbols[0], nil
}

// representative picks the file-level owner symbol: first by line, then by
// FQN.
func representative(symbols []*store.Symbol) *store.Symbol {
	var best *store.Symbol
	for _, sym := range symbols {
		if best == nil || sym.Line < best.Line ||
			(sym.Line == best.Line && sym.FQN < best.FQN) {
			best = sym
		}
	}
	return best
}

// edgeKindFor maps reference kinds to edge kinds.
func edgeKindFor(kind parser.ReferenceKind) store.EdgeKind {
	switch kind {
	case parser.RefCall, parser.RefMacro:
		return store.EdgeCalls
	case parser.RefExtends:
		return store.EdgeExtends
	case parser.RefImplements:
		return store.EdgeImplements
	default:
		return store.EdgeUsesType
	}
}

// dedupeEdges removes duplicate triples, preserving order.
func dedupeEdges(edges []store.DependencyEdge) []store.DependencyEdge {
	seen := make(map[store.DependencyEdge]bool, len(edges))
	out := edges[:0]
	for _, e := range edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// diffIDs returns ids present in old but not in new.
func diffIDs(old, new []string) []string {
	keep := make(map[string]bool, len(new))
	for _, id := range new {
		keep[id] = true
	}
	var out []string
	for _, id := range old {
		if !keep[id] {
			out = append(out, id)
		}
	}
	return out
}

func symbolIDs(symbols []*store.Symbol) []string {
	ids := make([]string, len(symbols))
	for i, s := range symbols {
		ids[i] = s.ID
	}
	return ids
}

func (p *Pipeline) absPath(relPath string) string {
	return p.scanner.Root() + string(os.PathSeparator) + relPath
}

// hashString returns the truncated sha256 of a string.
func hashString(s string) string {
	return hashBytes([]byte(s))
}

// hashBytes returns the truncated sha256 of content.
func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}
