package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// BleveKeywordIndex implements KeywordIndex on a bleve index. It is the
// alternate backend to the trigger-synced SQLite FTS5 index, selected via
// search.keyword_backend, and is fed explicitly by the pipeline.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// bleveChunkDoc is the indexed document shape.
type bleveChunkDoc struct {
	Content    string `json:"content"`
	DocComment string `json:"doc_comment"`
	SymbolPath string `json:"symbol_path"`
}

// NewBleveKeywordIndex opens or creates a bleve keyword index at path.
// Empty path builds an in-memory index for tests.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	var index bleve.Index
	var err error

	if path == "" {
		index, err = bleve.NewMemOnly(buildBleveMapping())
	} else if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		index, err = bleve.New(path, buildBleveMapping())
	} else {
		index, err = bleve.Open(path)
		if err != nil {
			// Corrupted index: drop and recreate; the pipeline refills it.
			_ = os.RemoveAll(path)
			index, err = bleve.New(path, buildBleveMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	return &BleveKeywordIndex{index: index, path: path}, nil
}

// buildBleveMapping maps the three searched fields with a standard
// analyzer.
func buildBleveMapping() mapping.IndexMapping {
	textField := bleve.NewTextFieldMapping()
	textField.Store = false
	textField.IncludeTermVectors = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", textField)
	doc.AddFieldMappingsAt("doc_comment", textField)
	doc.AddFieldMappingsAt("symbol_path", textField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Index adds or replaces documents.
func (b *BleveKeywordIndex) Index(ctx context.Context, chunks []*Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := b.index.NewBatch()
	for _, c := range chunks {
		if err := batch.Index(c.ID, bleveChunkDoc{
			Content:    c.Content,
			DocComment: c.DocComment,
			SymbolPath: c.SymbolPath,
		}); err != nil {
			return fmt.Errorf("batch index chunk %s: %w", c.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Delete removes documents by chunk id.
func (b *BleveKeywordIndex) Delete(ctx context.Context, chunkIDs []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range chunkIDs {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Search returns BM25-style ranked chunk ids for a query.
func (b *BleveKeywordIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if limit <= 0 {
		limit = 50
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	results := make([]*KeywordResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, &KeywordResult{ChunkID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Close releases resources.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// Verify interface implementation at compile time.
var _ KeywordIndex = (*BleveKeywordIndex)(nil)
