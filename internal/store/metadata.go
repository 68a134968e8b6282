package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// maxPoolConns is the connection pool size: many concurrent readers, with
// writes serialized by writeMu.
const maxPoolConns = 16

// MetadataStore persists files, chunks, symbols, dependencies, and
// communities in SQLite, with a trigger-synced FTS5 index over chunk text.
type MetadataStore struct {
	db   *sql.DB
	path string

	// writeMu serializes writers; SQLite WAL supports concurrent readers
	// alongside a single writer.
	writeMu sync.Mutex

	closed bool
	mu     sync.RWMutex
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
	id            TEXT PRIMARY KEY,
	path          TEXT NOT NULL UNIQUE,
	language      TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL,
	size          INTEGER NOT NULL DEFAULT 0,
	last_modified INTEGER NOT NULL DEFAULT 0,
	indexed_at    INTEGER NOT NULL DEFAULT 0,
	parse_degraded INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	fail_reason   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	file_id     TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	file_path   TEXT NOT NULL DEFAULT '',
	symbol_path TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT 'other',
	visibility  TEXT NOT NULL DEFAULT 'private',
	line_start  INTEGER NOT NULL DEFAULT 0,
	line_end    INTEGER NOT NULL DEFAULT 0,
	content     TEXT NOT NULL DEFAULT '',
	doc_comment TEXT NOT NULL DEFAULT '',
	refs        TEXT NOT NULL DEFAULT '[]',
	imports     TEXT NOT NULL DEFAULT '[]',
	vector_id   TEXT NOT NULL DEFAULT '',
	embedding_degraded INTEGER NOT NULL DEFAULT 0,
	token_count INTEGER NOT NULL DEFAULT 0,
	weight      REAL NOT NULL DEFAULT 0,
	language    TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_chunks_file ON chunks(file_id, kind, visibility);

CREATE TABLE IF NOT EXISTS symbols (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	fqn      TEXT NOT NULL UNIQUE,
	kind     TEXT NOT NULL DEFAULT 'other',
	file_id  TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	line     INTEGER NOT NULL DEFAULT 0,
	chunk_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_fqn ON symbols(fqn);

CREATE TABLE IF NOT EXISTS dependencies (
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	kind      TEXT NOT NULL,
	PRIMARY KEY (source_id, target_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_source ON dependencies(source_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_target ON dependencies(target_id);

CREATE TABLE IF NOT EXISTS communities (
	id         INTEGER PRIMARY KEY,
	modularity REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS community_members (
	community_id INTEGER NOT NULL REFERENCES communities(id) ON DELETE CASCADE,
	symbol_id    TEXT NOT NULL,
	PRIMARY KEY (community_id, symbol_id)
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	content, doc_comment, symbol_path,
	content='chunks', content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS chunks_fts_insert AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, content, doc_comment, symbol_path)
	VALUES (new.rowid, new.content, new.doc_comment, new.symbol_path);
END;

CREATE TRIGGER IF NOT EXISTS chunks_fts_delete AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content, doc_comment, symbol_path)
	VALUES ('delete', old.rowid, old.content, old.doc_comment, old.symbol_path);
END;

CREATE TRIGGER IF NOT EXISTS chunks_fts_update AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content, doc_comment, symbol_path)
	VALUES ('delete', old.rowid, old.content, old.doc_comment, old.symbol_path);
	INSERT INTO chunks_fts(rowid, content, doc_comment, symbol_path)
	VALUES (new.rowid, new.content, new.doc_comment, new.symbol_path);
END;
`

// OpenMetadataStore opens (creating if needed) the metadata database at
// path. Integrity is verified on open; corruption attempts WAL replay and
// finally drops the store for a full reindex.
func OpenMetadataStore(path string) (*MetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}

		if err := verifyIntegrity(path); err != nil {
			slog.Warn("metadata store corrupted, dropping for full reindex",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			if removeErr := dropDatabase(path); removeErr != nil {
				return nil, fmt.Errorf("metadata store corrupted and cannot remove: %w", removeErr)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}

	if path == "" {
		// A pooled :memory: DSN would open one database per connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(maxPoolConns)
		db.SetMaxIdleConns(maxPoolConns)
	}
	db.SetConnMaxLifetime(0)

	// WAL must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &MetadataStore{db: db, path: path}
	if err := s.initState(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// verifyIntegrity runs a quick integrity check on an existing database.
// A missing file is fine; it will be created.
func verifyIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

// dropDatabase removes the database and its WAL/SHM sidecars.
func dropDatabase(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

// initState seeds the schema version on first open and rejects unreadable
// versions by signaling a rebuild.
func (s *MetadataStore) initState() error {
	ctx := context.Background()
	current, err := s.GetState(ctx, StateKeySchemaVersion)
	if err != nil {
		return err
	}
	if current == "" {
		return s.SetState(ctx, StateKeySchemaVersion, strconv.Itoa(CurrentSchemaVersion))
	}

	version, err := strconv.Atoi(current)
	if err != nil || version > CurrentSchemaVersion {
		return fmt.Errorf("unreadable schema version %q: rebuild required", current)
	}
	return nil
}

// Path returns the database file path.
func (s *MetadataStore) Path() string {
	return s.path
}

// Close closes the connection pool.
func (s *MetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// checkOpen returns an error if the store is closed.
func (s *MetadataStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}
	return nil
}
