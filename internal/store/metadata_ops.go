package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// UpsertFile inserts or updates a file row. Idempotent.
func (s *MetadataStore) UpsertFile(ctx context.Context, f *File) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO files (id, path, language, content_hash, size, last_modified, indexed_at, parse_degraded, failed, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			content_hash = excluded.content_hash,
			size = excluded.size,
			last_modified = excluded.last_modified,
			indexed_at = excluded.indexed_at,
			parse_degraded = excluded.parse_degraded,
			failed = excluded.failed,
			fail_reason = excluded.fail_reason`,
		f.ID, f.Path, f.Language, f.ContentHash, f.Size,
		f.LastModified.Unix(), f.IndexedAt.Unix(),
		boolToInt(f.ParseDegraded), boolToInt(f.Failed), f.FailReason,
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	return nil
}

// MarkFileFailed records a recoverable per-file failure for retry.
func (s *MetadataStore) MarkFileFailed(ctx context.Context, path, reason string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`UPDATE files SET failed = 1, fail_reason = ? WHERE path = ?`, reason, path)
	return err
}

// GetFileByPath returns a file by its repo-relative path, or nil.
func (s *MetadataStore) GetFileByPath(ctx context.Context, path string) (*File, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, language, content_hash, size, last_modified, indexed_at, parse_degraded, failed, fail_reason
		FROM files WHERE path = ?`, path)
	return scanFile(row)
}

// AllFiles returns every tracked file, keyed by path.
func (s *MetadataStore) AllFiles(ctx context.Context) (map[string]*File, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, language, content_hash, size, last_modified, indexed_at, parse_degraded, failed, fail_reason
		FROM files`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]*File)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files[f.Path] = f
	}
	return files, rows.Err()
}

// rowScanner abstracts sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	var f File
	var lastModified, indexedAt int64
	var degraded, failed int
	err := row.Scan(&f.ID, &f.Path, &f.Language, &f.ContentHash, &f.Size,
		&lastModified, &indexedAt, &degraded, &failed, &f.FailReason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	f.LastModified = time.Unix(lastModified, 0)
	f.IndexedAt = time.Unix(indexedAt, 0)
	f.ParseDegraded = degraded != 0
	f.Failed = failed != 0
	return &f, nil
}

// ReplaceFileData atomically replaces a file's chunks and symbols and
// inserts the given edges if absent. Orphaned edges whose endpoints
// disappear are deleted in the same transaction; stored edges whose
// endpoints both survive are kept. Concurrent readers see either the pre-update or
// post-update state.
func (s *MetadataStore) ReplaceFileData(ctx context.Context, f *File, chunks []*Chunk, symbols []*Symbol, edges []DependencyEdge) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin file update: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO files (id, path, language, content_hash, size, last_modified, indexed_at, parse_degraded, failed, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, '')
		ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			content_hash = excluded.content_hash,
			size = excluded.size,
			last_modified = excluded.last_modified,
			indexed_at = excluded.indexed_at,
			parse_degraded = excluded.parse_degraded,
			failed = 0,
			fail_reason = ''`,
		f.ID, f.Path, f.Language, f.ContentHash, f.Size,
		f.LastModified.Unix(), f.IndexedAt.Unix(), boolToInt(f.ParseDegraded),
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", f.Path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE file_id = ?`, f.ID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", f.Path, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols WHERE file_id = ?`, f.ID); err != nil {
		return fmt.Errorf("delete symbols for %s: %w", f.Path, err)
	}

	for _, c := range chunks {
		refs, _ := json.Marshal(c.References)
		imports, _ := json.Marshal(c.Imports)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, file_id, file_path, symbol_path, kind, visibility, line_start, line_end,
				content, doc_comment, refs, imports, vector_id, embedding_degraded, token_count, weight, language, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				doc_comment = excluded.doc_comment,
				vector_id = excluded.vector_id,
				embedding_degraded = excluded.embedding_degraded,
				updated_at = excluded.updated_at`,
			c.ID, c.FileID, c.FilePath, c.SymbolPath, string(c.Kind), c.Visibility,
			c.StartLine, c.EndLine, c.Content, c.DocComment, string(refs), string(imports),
			c.VectorID, boolToInt(c.EmbeddingDegraded), c.TokenCount, c.Weight,
			c.Language, c.UpdatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	for _, sym := range symbols {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO symbols (id, name, fqn, kind, file_id, line, chunk_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(fqn) DO UPDATE SET
				name = excluded.name,
				kind = excluded.kind,
				file_id = excluded.file_id,
				line = excluded.line,
				chunk_id = excluded.chunk_id`,
			sym.ID, sym.Name, sym.FQN, string(sym.Kind), sym.FileID, sym.Line, sym.ChunkID,
		)
		if err != nil {
			return fmt.Errorf("insert symbol %s: %w", sym.FQN, err)
		}
	}

	if err := deleteOrphanEdges(ctx, tx); err != nil {
		return err
	}

	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO dependencies (source_id, target_id, kind) VALUES (?, ?, ?)`,
			e.SourceID, e.TargetID, string(e.Kind))
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}

	return tx.Commit()
}

// DeleteFileData removes a file and everything hanging off it.
func (s *MetadataStore) DeleteFileData(ctx context.Context, path string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin file delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	if err := deleteOrphanEdges(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteOrphanEdges removes edges whose endpoints no longer exist.
func deleteOrphanEdges(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM dependencies
		WHERE source_id NOT IN (SELECT id FROM symbols)
		   OR target_id NOT IN (SELECT id FROM symbols)`)
	if err != nil {
		return fmt.Errorf("delete orphan edges: %w", err)
	}
	return nil
}

// InsertEdgeIfAbsent inserts a dependency edge, ignoring duplicates.
func (s *MetadataStore) InsertEdgeIfAbsent(ctx context.Context, e DependencyEdge) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO dependencies (source_id, target_id, kind) VALUES (?, ?, ?)`,
		e.SourceID, e.TargetID, string(e.Kind))
	return err
}

// AllDependencies returns every persisted edge in insertion order.
func (s *MetadataStore) AllDependencies(ctx context.Context) ([]DependencyEdge, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, target_id, kind FROM dependencies ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var edges []DependencyEdge
	for rows.Next() {
		var e DependencyEdge
		var kind string
		if err := rows.Scan(&e.SourceID, &e.TargetID, &kind); err != nil {
			return nil, err
		}
		e.Kind = EdgeKind(kind)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// GetChunk returns a chunk by id, or nil.
func (s *MetadataStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	chunks, err := s.GetChunks(ctx, []string{id})
	if err != nil || len(chunks) == 0 {
		return nil, err
	}
	return chunks[0], nil
}

const chunkColumns = `id, file_id, file_path, symbol_path, kind, visibility, line_start, line_end,
	content, doc_comment, refs, imports, vector_id, embedding_degraded, token_count, weight, language, updated_at`

// GetChunks batch-fetches chunks by id, preserving input order.
func (s *MetadataStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ordered := make([]*Chunk, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// ChunksByFile returns a file's chunks ordered by start line.
func (s *MetadataStore) ChunksByFile(ctx context.Context, fileID string) ([]*Chunk, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE file_id = ? ORDER BY line_start`, fileID)
	if err != nil {
		return nil, fmt.Errorf("chunks by file: %w", err)
	}
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunk(row rowScanner) (*Chunk, error) {
	var c Chunk
	var kind string
	var refs, imports string
	var degraded int
	var updatedAt int64
	err := row.Scan(&c.ID, &c.FileID, &c.FilePath, &c.SymbolPath, &kind, &c.Visibility,
		&c.StartLine, &c.EndLine, &c.Content, &c.DocComment, &refs, &imports,
		&c.VectorID, &degraded, &c.TokenCount, &c.Weight, &c.Language, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	c.Kind = ChunkKind(kind)
	c.EmbeddingDegraded = degraded != 0
	c.UpdatedAt = time.Unix(updatedAt, 0)
	_ = json.Unmarshal([]byte(refs), &c.References)
	_ = json.Unmarshal([]byte(imports), &c.Imports)
	return &c, nil
}

// KeywordSearch runs a BM25-ranked full-text query over chunk content,
// doc comments, and symbol paths.
func (s *MetadataStore) KeywordSearch(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var results []*KeywordResult
	for rows.Next() {
		var r KeywordResult
		var rank float64
		if err := rows.Scan(&r.ChunkID, &rank); err != nil {
			return nil, err
		}
		// bm25() returns lower-is-better; flip for a descending score.
		r.Score = -rank
		results = append(results, &r)
	}
	return results, rows.Err()
}

// ftsQuery escapes user input into an FTS5 match expression: each token
// becomes a quoted phrase, OR-joined.
func ftsQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return !isWordRune(r)
	})
	if len(fields) == 0 {
		return ""
	}

	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		quoted = append(quoted, `"`+f+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func isWordRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// SymbolByFQN returns the symbol with the exact FQN, or nil.
func (s *MetadataStore) SymbolByFQN(ctx context.Context, fqn string) (*Symbol, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, fqn, kind, file_id, line, chunk_id FROM symbols WHERE fqn = ?`, fqn)
	return scanSymbol(row)
}

// SearchSymbols returns symbols matching the query exactly by name or FQN,
// or by FQN/name prefix, ranked: exact FQN, exact name, then prefix by
// ascending FQN length.
func (s *MetadataStore) SearchSymbols(ctx context.Context, query string, limit int) ([]*Symbol, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 25
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, fqn, kind, file_id, line, chunk_id,
			CASE
				WHEN fqn = ?1 THEN 0
				WHEN name = ?1 THEN 1
				ELSE 2
			END AS tier
		FROM symbols
		WHERE fqn = ?1 OR name = ?1 OR fqn LIKE ?2 ESCAPE '\' OR name LIKE ?2 ESCAPE '\'
		ORDER BY tier, length(fqn), fqn
		LIMIT ?3`, query, likePrefix(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search symbols: %w", err)
	}
	defer rows.Close()

	var symbols []*Symbol
	for rows.Next() {
		var sym Symbol
		var kind string
		var tier int
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.FQN, &kind, &sym.FileID,
			&sym.Line, &sym.ChunkID, &tier); err != nil {
			return nil, err
		}
		sym.Kind = ChunkKind(kind)
		symbols = append(symbols, &sym)
	}
	return symbols, rows.Err()
}

// FuzzySymbolByName returns the symbol with the given terminal name and
// the shortest FQN, or nil. Used as the last resolution strategy.
func (s *MetadataStore) FuzzySymbolByName(ctx context.Context, name string) (*Symbol, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, fqn, kind, file_id, line, chunk_id
		FROM symbols WHERE name = ?
		ORDER BY length(fqn), fqn
		LIMIT 1`, name)
	return scanSymbol(row)
}

// SymbolsByIDs batch-fetches symbols by id.
func (s *MetadataStore) SymbolsByIDs(ctx context.Context, ids []string) ([]*Symbol, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, fqn, kind, file_id, line, chunk_id
		FROM symbols WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("symbols by ids: %w", err)
	}
	defer rows.Close()

	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// SymbolsByChunkIDs maps chunk ids to their owning symbols. Chunks without
// a symbol are absent from the result.
func (s *MetadataStore) SymbolsByChunkIDs(ctx context.Context, chunkIDs []string) (map[string]*Symbol, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if len(chunkIDs) == 0 {
		return map[string]*Symbol{}, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, fqn, kind, file_id, line, chunk_id
		FROM symbols WHERE chunk_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("symbols by chunk ids: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*Symbol)
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		if _, taken := result[sym.ChunkID]; !taken {
			result[sym.ChunkID] = sym
		}
	}
	return result, rows.Err()
}

// SymbolsByFile returns a file's symbols ordered by line.
func (s *MetadataStore) SymbolsByFile(ctx context.Context, fileID string) ([]*Symbol, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, fqn, kind, file_id, line, chunk_id
		FROM symbols WHERE file_id = ? ORDER BY line, fqn`, fileID)
	if err != nil {
		return nil, fmt.Errorf("symbols by file: %w", err)
	}
	defer rows.Close()

	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func scanSymbol(row rowScanner) (*Symbol, error) {
	var sym Symbol
	var kind string
	err := row.Scan(&sym.ID, &sym.Name, &sym.FQN, &kind, &sym.FileID, &sym.Line, &sym.ChunkID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan symbol: %w", err)
	}
	sym.Kind = ChunkKind(kind)
	return &sym, nil
}

// StoreCommunities replaces the persisted community assignment.
func (s *MetadataStore) StoreCommunities(ctx context.Context, communities []Community) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin store communities: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM communities`); err != nil {
		return fmt.Errorf("clear communities: %w", err)
	}

	for _, c := range communities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO communities (id, modularity) VALUES (?, ?)`, c.ID, c.Modularity); err != nil {
			return fmt.Errorf("insert community %d: %w", c.ID, err)
		}
		for _, member := range c.Members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO community_members (community_id, symbol_id) VALUES (?, ?)`,
				c.ID, member); err != nil {
				return fmt.Errorf("insert community member: %w", err)
			}
		}
	}

	return tx.Commit()
}

// Communities returns the persisted community assignment.
func (s *MetadataStore) Communities(ctx context.Context) ([]Community, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.modularity, m.symbol_id
		FROM communities c
		JOIN community_members m ON m.community_id = c.id
		ORDER BY c.id, m.symbol_id`)
	if err != nil {
		return nil, fmt.Errorf("list communities: %w", err)
	}
	defer rows.Close()

	byID := make(map[int]*Community)
	var order []int
	for rows.Next() {
		var id int
		var modularity float64
		var member string
		if err := rows.Scan(&id, &modularity, &member); err != nil {
			return nil, err
		}
		c, ok := byID[id]
		if !ok {
			c = &Community{ID: id, Modularity: modularity}
			byID[id] = c
			order = append(order, id)
		}
		c.Members = append(c.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Ints(order)
	communities := make([]Community, 0, len(order))
	for _, id := range order {
		communities = append(communities, *byID[id])
	}
	return communities, nil
}

// Stats returns index content counts for status reporting.
func (s *MetadataStore) Stats(ctx context.Context) (*Stats, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	var st Stats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM files),
			(SELECT COUNT(*) FROM files WHERE failed = 1),
			(SELECT COUNT(*) FROM chunks),
			(SELECT COUNT(*) FROM chunks WHERE embedding_degraded = 1),
			(SELECT COUNT(*) FROM chunks WHERE vector_id != ''),
			(SELECT COUNT(*) FROM symbols),
			(SELECT COUNT(*) FROM dependencies),
			(SELECT COUNT(*) FROM communities)`)
	if err := row.Scan(&st.Files, &st.FailedFiles, &st.Chunks, &st.DegradedChunks,
		&st.ChunksWithVector, &st.Symbols, &st.Edges, &st.Communities); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return &st, nil
}

// GetState reads a state value, returning "" when absent.
func (s *MetadataStore) GetState(ctx context.Context, key string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState writes a state value.
func (s *MetadataStore) SetState(ctx context.Context, key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func likePrefix(q string) string {
	escaped := strings.NewReplacer("%", `\%`, "_", `\_`).Replace(q)
	return escaped + "%"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
