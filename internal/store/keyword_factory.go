package store

import (
	"context"
	"fmt"
	"path/filepath"
)

// sqliteKeywordIndex adapts the metadata store's trigger-synced FTS5 table
// to the KeywordIndex interface. Index and Delete are no-ops: the FTS
// triggers track the chunks table, so the pipeline's writes keep it in
// exact sync.
type sqliteKeywordIndex struct {
	meta *MetadataStore
}

func (s *sqliteKeywordIndex) Index(_ context.Context, _ []*Chunk) error { return nil }

func (s *sqliteKeywordIndex) Delete(_ context.Context, _ []string) error { return nil }

func (s *sqliteKeywordIndex) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	return s.meta.KeywordSearch(ctx, query, limit)
}

func (s *sqliteKeywordIndex) Close() error { return nil }

// NewKeywordIndex selects the keyword backend. "sqlite" (default) reuses
// the metadata store's FTS5 table; "bleve" opens a standalone index under
// the state directory.
func NewKeywordIndex(backend, stateDir string, meta *MetadataStore) (KeywordIndex, error) {
	switch backend {
	case "", "sqlite":
		return &sqliteKeywordIndex{meta: meta}, nil
	case "bleve":
		return NewBleveKeywordIndex(filepath.Join(stateDir, "keyword.bleve"))
	default:
		return nil, fmt.Errorf("unknown keyword backend %q", backend)
	}
}
