package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/locus-dev/locus/internal/embed"
	"github.com/locus-dev/locus/internal/graph"
	"github.com/locus-dev/locus/internal/store"
)

// newTestEngine wires an engine over a temp metadata store, a small HNSW
// index, and the hashing embedder.
func newTestEngine(t *testing.T) (*Engine, *store.MetadataStore, store.VectorIndex, *embed.CoverageEmbedder) {
	t.Helper()

	meta, err := store.OpenMetadataStore(filepath.Join(t.TempDir(), "metadata.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	embedder := embed.NewCoverageEmbedder(embed.NewHashingEmbedder(128), 2048, 8)
	t.Cleanup(func() { _ = embedder.Close() })

	vectors, err := store.NewHNSWIndex(128, embedder.ModelID())
	require.NoError(t, err)
	t.Cleanup(func() { _ = vectors.Close() })

	keyword, err := store.NewKeywordIndex("sqlite", "", meta)
	require.NoError(t, err)

	eng := NewEngine(meta, keyword, vectors, embedder, graph.New(), nil, DefaultConfig())
	return eng, meta, vectors, embedder
}

// indexFixture stores one file with one function chunk and its vector.
func indexFixture(t *testing.T, meta *store.MetadataStore, vectors store.VectorIndex, embedder *embed.CoverageEmbedder) {
	t.Helper()
	ctx := context.Background()

	file := &store.File{
		ID:           "f1",
		Path:         "auth.py",
		Language:     "python",
		ContentHash:  "h1",
		LastModified: time.Now(),
		IndexedAt:    time.Now(),
	}
	content := "[python] validate_token: function\ndef validate_token(t):\n    return verify_signature(t)"
	chunks := []*store.Chunk{{
		ID:         "c1",
		FileID:     "f1",
		FilePath:   "auth.py",
		SymbolPath: "validate_token",
		Kind:       store.ChunkKindFunction,
		Visibility: "public",
		StartLine:  1,
		EndLine:    2,
		Content:    content,
		VectorID:   "c1",
		Weight:     1.0,
		Language:   "python",
		UpdatedAt:  time.Now(),
	}}
	symbols := []*store.Symbol{{
		ID:      "s1",
		Name:    "validate_token",
		FQN:     "auth.validate_token",
		Kind:    store.ChunkKindFunction,
		FileID:  "f1",
		Line:    1,
		ChunkID: "c1",
	}}
	require.NoError(t, meta.ReplaceFileData(ctx, file, chunks, symbols, nil))

	vecs, err := embedder.EmbedBatch(ctx, []string{content})
	require.NoError(t, err)
	require.NoError(t, vectors.Add(ctx, []string{"c1"}, [][]float32{vecs[0].Values}))
}

func TestEngine_EmptyIndexReturnsEmptyResults(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)

	resp, err := eng.Search(context.Background(), "anything", Options{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Partial)
}

func TestEngine_SingleFunctionRanksFirst(t *testing.T) {
	eng, meta, vectors, embedder := newTestEngine(t)
	indexFixture(t, meta, vectors, embedder)

	resp, err := eng.Search(context.Background(), "validate token", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, "c1", top.Chunk.ID)
	assert.Greater(t, top.Score, 0.0)
	assert.Greater(t, top.StructuralBoost, 0.0, "structural component must be applied")
	assert.Positive(t, top.KeywordRank+top.VectorRank, "at least one recall signal fired")
}

func TestEngine_WhitespaceEquivalentQueriesMatch(t *testing.T) {
	eng, meta, vectors, embedder := newTestEngine(t)
	indexFixture(t, meta, vectors, embedder)

	a, err := eng.Search(context.Background(), "validate token", Options{Limit: 5})
	require.NoError(t, err)
	b, err := eng.Search(context.Background(), "  validate \t token  ", Options{Limit: 5})
	require.NoError(t, err)

	require.Equal(t, len(a.Results), len(b.Results))
	for i := range a.Results {
		assert.Equal(t, a.Results[i].Chunk.ID, b.Results[i].Chunk.ID)
	}
}

func TestEngine_LimitRespected(t *testing.T) {
	eng, meta, vectors, embedder := newTestEngine(t)
	ctx := context.Background()

	file := &store.File{ID: "f1", Path: "m.go", Language: "go", ContentHash: "h",
		LastModified: time.Now(), IndexedAt: time.Now()}
	var chunks []*store.Chunk
	var texts []string
	ids := []string{"c1", "c2", "c3", "c4"}
	for i, id := range ids {
		content := "[go] Fn: function\nfunc SharedHelperName" + id + "() {}"
		chunks = append(chunks, &store.Chunk{
			ID: id, FileID: "f1", FilePath: "m.go", SymbolPath: "Fn",
			Kind: store.ChunkKindFunction, StartLine: i*10 + 1, EndLine: i*10 + 2,
			Content: content, VectorID: id, Weight: 0.9, Language: "go", UpdatedAt: time.Now(),
		})
		texts = append(texts, content)
	}
	require.NoError(t, meta.ReplaceFileData(ctx, file, chunks, nil, nil))

	vecs, err := embedder.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	raw := make([][]float32, len(vecs))
	for i, v := range vecs {
		raw[i] = v.Values
	}
	require.NoError(t, vectors.Add(ctx, ids, raw))

	resp, err := eng.Search(ctx, "SharedHelperName", Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2, "exactly min(limit, candidates) results")
}

// fixedReranker returns canned scores.
type fixedReranker struct {
	scores map[string]float64
}

func (f *fixedReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = f.scores[d]
	}
	return out, nil
}

func (f *fixedReranker) Available(_ context.Context) bool { return true }
func (f *fixedReranker) Close() error                     { return nil }

func TestEngine_RerankerInfluencesOrdering(t *testing.T) {
	eng, meta, vectors, embedder := newTestEngine(t)
	ctx := context.Background()

	file := &store.File{ID: "f1", Path: "m.go", Language: "go", ContentHash: "h",
		LastModified: time.Now(), IndexedAt: time.Now()}
	contentA := "[go] AlphaHandler: function\nfunc AlphaHandler(parseRequest int) {}"
	contentB := "[go] BetaHandler: function\nfunc BetaHandler(parseRequest int) {}"
	chunks := []*store.Chunk{
		{ID: "ca", FileID: "f1", FilePath: "m.go", SymbolPath: "AlphaHandler",
			Kind: store.ChunkKindFunction, StartLine: 1, EndLine: 2,
			Content: contentA, VectorID: "ca", Weight: 0.9, Language: "go", UpdatedAt: time.Now()},
		{ID: "cb", FileID: "f1", FilePath: "m.go", SymbolPath: "BetaHandler",
			Kind: store.ChunkKindFunction, StartLine: 11, EndLine: 12,
			Content: contentB, VectorID: "cb", Weight: 0.9, Language: "go", UpdatedAt: time.Now()},
	}
	require.NoError(t, meta.ReplaceFileData(ctx, file, chunks, nil, nil))

	vecs, err := embedder.EmbedBatch(ctx, []string{contentA, contentB})
	require.NoError(t, err)
	require.NoError(t, vectors.Add(ctx, []string{"ca", "cb"},
		[][]float32{vecs[0].Values, vecs[1].Values}))

	eng.reranker = &fixedReranker{scores: map[string]float64{
		contentA: 0.05,
		contentB: 0.99,
	}}

	resp, err := eng.Search(ctx, "parseRequest handler", Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "cb", resp.Results[0].Chunk.ID,
		"strong rerank score should promote the second candidate")
}
