package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *MetadataStore {
	t.Helper()
	s, err := OpenMetadataStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testFile(path string) *File {
	return &File{
		ID:           "f-" + path,
		Path:         path,
		Language:     "go",
		ContentHash:  "hash-" + path,
		Size:         100,
		LastModified: time.Now(),
		IndexedAt:    time.Now(),
	}
}

func TestMetadataStore_UpsertFileIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFile("a.go")
	require.NoError(t, s.UpsertFile(ctx, f))
	require.NoError(t, s.UpsertFile(ctx, f))

	got, err := s.GetFileByPath(ctx, "a.go")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, f.ContentHash, got.ContentHash)

	files, err := s.AllFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestMetadataStore_ReplaceFileDataRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFile("auth.py")
	chunks := []*Chunk{{
		ID:         "c1",
		FileID:     f.ID,
		FilePath:   f.Path,
		SymbolPath: "validate_token",
		Kind:       ChunkKindFunction,
		Visibility: "public",
		StartLine:  1,
		EndLine:    3,
		Content:    "[python] validate_token: function\ndef validate_token(t):\n    return check(t)",
		References: []string{"check"},
		Weight:     1.0,
		Language:   "python",
		UpdatedAt:  time.Now(),
	}}
	symbols := []*Symbol{{
		ID:      "s1",
		Name:    "validate_token",
		FQN:     "auth.validate_token",
		Kind:    ChunkKindFunction,
		FileID:  f.ID,
		Line:    1,
		ChunkID: "c1",
	}}

	require.NoError(t, s.ReplaceFileData(ctx, f, chunks, symbols, nil))

	got, err := s.GetChunk(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "validate_token", got.SymbolPath)
	assert.Equal(t, []string{"check"}, got.References)

	sym, err := s.SymbolByFQN(ctx, "auth.validate_token")
	require.NoError(t, err)
	require.NotNil(t, sym)
	assert.Equal(t, "c1", sym.ChunkID)
}

func TestMetadataStore_ReplaceDropsOldChunks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFile("a.go")
	old := []*Chunk{{ID: "old", FileID: f.ID, FilePath: f.Path, Content: "old content", UpdatedAt: time.Now()}}
	require.NoError(t, s.ReplaceFileData(ctx, f, old, nil, nil))

	f.ContentHash = "changed"
	next := []*Chunk{{ID: "new", FileID: f.ID, FilePath: f.Path, Content: "new content", UpdatedAt: time.Now()}}
	require.NoError(t, s.ReplaceFileData(ctx, f, next, nil, nil))

	gone, err := s.GetChunk(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := s.GetChunk(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestMetadataStore_FTSStaysInSyncThroughTriggers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFile("search.go")
	chunks := []*Chunk{{
		ID: "c-fts", FileID: f.ID, FilePath: f.Path,
		SymbolPath: "HybridSearch",
		Content:    "func HybridSearch(query string) { fuseReciprocalRanks(query) }",
		UpdatedAt:  time.Now(),
	}}
	require.NoError(t, s.ReplaceFileData(ctx, f, chunks, nil, nil))

	results, err := s.KeywordSearch(ctx, "HybridSearch", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c-fts", results[0].ChunkID)

	// Delete the file; the FTS row must disappear with the chunk.
	require.NoError(t, s.DeleteFileData(ctx, "search.go"))
	results, err = s.KeywordSearch(ctx, "HybridSearch", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMetadataStore_EdgesUniqueOnTriple(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFile("m.go")
	symbols := []*Symbol{
		{ID: "sa", Name: "A", FQN: "m.A", FileID: f.ID, Line: 1},
		{ID: "sb", Name: "B", FQN: "m.B", FileID: f.ID, Line: 2},
	}
	require.NoError(t, s.ReplaceFileData(ctx, f, nil, symbols, nil))

	edge := DependencyEdge{SourceID: "sa", TargetID: "sb", Kind: EdgeCalls}
	require.NoError(t, s.InsertEdgeIfAbsent(ctx, edge))
	require.NoError(t, s.InsertEdgeIfAbsent(ctx, edge))
	require.NoError(t, s.InsertEdgeIfAbsent(ctx, DependencyEdge{SourceID: "sa", TargetID: "sb", Kind: EdgeUsesType}))

	edges, err := s.AllDependencies(ctx)
	require.NoError(t, err)
	assert.Len(t, edges, 2, "duplicate triple ignored, different kind kept")
}

func TestMetadataStore_OrphanEdgesDeletedWithFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	fa := testFile("a.go")
	fb := testFile("b.go")
	require.NoError(t, s.ReplaceFileData(ctx, fa, nil,
		[]*Symbol{{ID: "sa", Name: "A", FQN: "a.A", FileID: fa.ID, Line: 1}}, nil))
	require.NoError(t, s.ReplaceFileData(ctx, fb, nil,
		[]*Symbol{{ID: "sb", Name: "B", FQN: "b.B", FileID: fb.ID, Line: 1}},
		[]DependencyEdge{{SourceID: "sb", TargetID: "sa", Kind: EdgeImports}}))

	edges, err := s.AllDependencies(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)

	// Deleting a.go removes sa; the edge endpoint disappears.
	require.NoError(t, s.DeleteFileData(ctx, "a.go"))
	edges, err = s.AllDependencies(ctx)
	require.NoError(t, err)
	assert.Empty(t, edges, "edges with missing endpoints must be deleted")
}

func TestMetadataStore_SymbolSearchRanking(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFile("pkg.go")
	symbols := []*Symbol{
		{ID: "s1", Name: "Store", FQN: "pkg.Store", FileID: f.ID, Line: 1},
		{ID: "s2", Name: "StoreConfig", FQN: "pkg.StoreConfig", FileID: f.ID, Line: 10},
		{ID: "s3", Name: "Store", FQN: "other.nested.deep.Store", FileID: f.ID, Line: 20},
	}
	require.NoError(t, s.ReplaceFileData(ctx, f, nil, symbols, nil))

	results, err := s.SearchSymbols(ctx, "pkg.Store", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "pkg.Store", results[0].FQN, "exact FQN ranks first")

	fuzzy, err := s.FuzzySymbolByName(ctx, "Store")
	require.NoError(t, err)
	require.NotNil(t, fuzzy)
	assert.Equal(t, "pkg.Store", fuzzy.FQN, "shortest FQN wins fuzzy match")
}

func TestMetadataStore_StateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	val, err := s.GetState(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.SetState(ctx, StateKeyVectorDim, "768"))
	require.NoError(t, s.SetState(ctx, StateKeyVectorDim, "1024"))

	val, err = s.GetState(ctx, StateKeyVectorDim)
	require.NoError(t, err)
	assert.Equal(t, "1024", val)
}

func TestMetadataStore_CommunitiesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	communities := []Community{
		{ID: 0, Modularity: 0.42, Members: []string{"s1", "s2"}},
		{ID: 1, Modularity: 0.13, Members: []string{"s3"}},
	}
	require.NoError(t, s.StoreCommunities(ctx, communities))

	got, err := s.Communities(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"s1", "s2"}, got[0].Members)
	assert.InDelta(t, 0.42, got[0].Modularity, 1e-9)

	// Recompute replaces wholesale.
	require.NoError(t, s.StoreCommunities(ctx, communities[:1]))
	got, err = s.Communities(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMetadataStore_Stats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := testFile("s.go")
	chunks := []*Chunk{
		{ID: "c1", FileID: f.ID, FilePath: f.Path, VectorID: "c1", UpdatedAt: time.Now()},
		{ID: "c2", FileID: f.ID, FilePath: f.Path, VectorID: "c2", EmbeddingDegraded: true, UpdatedAt: time.Now()},
	}
	require.NoError(t, s.ReplaceFileData(ctx, f, chunks, nil, nil))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, 2, stats.ChunksWithVector)
	assert.Equal(t, 1, stats.DegradedChunks)
}

func TestFTSQueryEscaping(t *testing.T) {
	assert.Equal(t, `"hello" OR "world"`, ftsQuery("hello world"))
	assert.Equal(t, `"a_b"`, ftsQuery("a_b"))
	assert.Empty(t, ftsQuery("!!!"))
	assert.Equal(t, `"drop" OR "table"`, ftsQuery(`drop"; table`))
}
