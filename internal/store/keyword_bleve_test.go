package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveKeywordIndex_IndexAndSearch(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	chunks := []*Chunk{
		{ID: "c1", Content: "func ParseConfig(path string) (*Config, error)", SymbolPath: "ParseConfig"},
		{ID: "c2", Content: "func WriteOutput(w io.Writer) error", SymbolPath: "WriteOutput"},
	}
	require.NoError(t, idx.Index(ctx, chunks))

	results, err := idx.Search(ctx, "ParseConfig", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestBleveKeywordIndex_Delete(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	defer idx.Close()

	ctx := context.Background()
	require.NoError(t, idx.Index(ctx, []*Chunk{
		{ID: "c1", Content: "the quick brown function"},
	}))
	require.NoError(t, idx.Delete(ctx, []string{"c1"}))

	results, err := idx.Search(ctx, "quick", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestKeywordFactory(t *testing.T) {
	meta, err := OpenMetadataStore("")
	require.NoError(t, err)
	defer meta.Close()

	sqlite, err := NewKeywordIndex("sqlite", t.TempDir(), meta)
	require.NoError(t, err)
	assert.NotNil(t, sqlite)

	_, err = NewKeywordIndex("lucene", t.TempDir(), meta)
	assert.Error(t, err, "unknown backend rejected")
}
