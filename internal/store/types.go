// Package store provides the persistence layer: SQLite metadata with an
// FTS5 full-text index, and an HNSW vector index. The metadata store
// exclusively owns files, chunks, symbols, edges, and communities; the
// vector index exclusively owns vectors.
package store

import (
	"context"
	"fmt"
	"time"
)

// State keys persisted in the state table.
const (
	// StateKeySchemaVersion gates migrations.
	StateKeySchemaVersion = "schema_version"
	// StateKeyVectorDim stores the embedding dimension used for the index.
	StateKeyVectorDim = "vector_dim"
	// StateKeyEmbeddingModel stores the embedding model id used for the index.
	StateKeyEmbeddingModel = "embedding_model_id"
	// StateKeyLastFullScan stores the RFC3339 time of the last full scan.
	StateKeyLastFullScan = "last_full_scan"
)

// CurrentSchemaVersion is the current database schema version.
const CurrentSchemaVersion = 1

// ChunkKind classifies a chunk by its source element.
type ChunkKind string

const (
	ChunkKindFunction ChunkKind = "function"
	ChunkKindClass    ChunkKind = "class"
	ChunkKindStruct   ChunkKind = "struct"
	ChunkKindTrait    ChunkKind = "trait"
	ChunkKindImpl     ChunkKind = "impl"
	ChunkKindTest     ChunkKind = "test"
	ChunkKindConst    ChunkKind = "const"
	ChunkKindType     ChunkKind = "type"
	ChunkKindModule   ChunkKind = "module"
	ChunkKindOther    ChunkKind = "other"
)

// EdgeKind classifies a dependency edge.
type EdgeKind string

const (
	EdgeImports    EdgeKind = "imports"
	EdgeCalls      EdgeKind = "calls"
	EdgeExtends    EdgeKind = "extends"
	EdgeImplements EdgeKind = "implements"
	EdgeUsesType   EdgeKind = "uses_type"
	EdgeCoChanges  EdgeKind = "co_changes"
)

// File is a tracked file in the index. Unique by path.
type File struct {
	ID            string    // sha256(path), truncated
	Path          string    // canonical, repo-relative
	Language      string    // detected language tag
	ContentHash   string    // sha256 of on-disk bytes at indexing time
	Size          int64     // bytes
	LastModified  time.Time // mtime at indexing
	IndexedAt     time.Time // when indexed
	ParseDegraded bool      // syntactic budget exceeded
	Failed        bool      // last update failed
	FailReason    string    // reason for the failure, when Failed
}

// Chunk is a retrievable unit of content. Cascades on file delete.
type Chunk struct {
	ID         string
	FileID     string
	FilePath   string // denormalized for result assembly
	SymbolPath string
	Kind       ChunkKind
	Visibility string // public, crate, private
	StartLine  int    // 1-indexed
	EndLine    int    // inclusive
	Content    string // enriched content with header and overlap
	DocComment string
	References []string // names referenced by the chunk
	Imports    []string // import paths visible to the chunk
	VectorID   string   // empty until a vector is stored
	// EmbeddingDegraded marks hashing-fallback vectors.
	EmbeddingDegraded bool
	TokenCount        int
	Weight            float64 // structural weight in [0,1]
	Language          string
	UpdatedAt         time.Time
}

// Symbol is a named declaration addressed by its FQN.
type Symbol struct {
	ID      string
	Name    string
	FQN     string // unique
	Kind    ChunkKind
	FileID  string
	Line    int
	ChunkID string // owning chunk, when known
}

// DependencyEdge is a typed directed relation between symbols.
// Unique on (SourceID, TargetID, Kind).
type DependencyEdge struct {
	SourceID string
	TargetID string
	Kind     EdgeKind
}

// Community is a modularity cluster of symbols.
type Community struct {
	ID         int
	Modularity float64
	Members    []string // symbol ids
}

// KeywordResult is a ranked keyword search hit.
type KeywordResult struct {
	ChunkID string
	Score   float64
}

// KeywordIndex ranks chunks by keyword relevance (BM25). The SQLite FTS5
// implementation is trigger-synced with the chunks table; the bleve
// implementation is fed explicitly by the pipeline.
type KeywordIndex interface {
	// Index adds or replaces documents.
	Index(ctx context.Context, chunks []*Chunk) error

	// Delete removes documents by chunk id.
	Delete(ctx context.Context, chunkIDs []string) error

	// Search returns ranked chunk ids for a query.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Close releases resources.
	Close() error
}

// VectorResult is a single ANN search hit.
type VectorResult struct {
	ID    string  // vector id (chunk id)
	Score float32 // (1 + cosine similarity) / 2, in [0,1]
}

// VectorIndex provides approximate nearest-neighbor search over unit
// vectors.
type VectorIndex interface {
	// Add inserts vectors by id, replacing existing ids.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds the k nearest neighbors by cosine similarity.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Remove deletes vectors by id.
	Remove(ctx context.Context, ids []string) error

	// Contains checks if an id exists.
	Contains(id string) bool

	// AllIDs returns all vector ids, for consistency checks.
	AllIDs() []string

	// Count returns the number of vectors.
	Count() int

	// Dimensions returns the index dimension.
	Dimensions() int

	// Persist writes the index to disk.
	Persist(path string) error

	// Close releases resources.
	Close() error
}

// Stats summarizes index contents for status reporting.
type Stats struct {
	Files            int
	Chunks           int
	Symbols          int
	Edges            int
	Communities      int
	DegradedChunks   int
	FailedFiles      int
	ChunksWithVector int
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (reindex required)", e.Expected, e.Got)
}
