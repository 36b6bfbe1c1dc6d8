package indexer

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Policy decides how a changed path should be indexed, per spec.md §4.7:
// vector indexing kicks in once a file produces more than ChunkThreshold
// chunks, full-text search once it produces more than FTSChunkThreshold,
// and ForceRebuild discards any incremental state and reprocesses the
// whole file from scratch.
type Policy struct {
	ChunkThreshold    int // default 10000
	FTSChunkThreshold int // default 1000
	ForceRebuild      bool
}

// DefaultPolicy returns spec.md §4.7's named default thresholds.
func DefaultPolicy() Policy {
	return Policy{ChunkThreshold: 10000, FTSChunkThreshold: 1000}
}

// UseVector reports whether n chunks warrants vector indexing.
func (p Policy) UseVector(n int) bool { return n > p.ChunkThreshold }

// UseFTS reports whether n chunks warrants full-text indexing.
func (p Policy) UseFTS(n int) bool { return n > p.FTSChunkThreshold }

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	path        TEXT NOT NULL,
	chunk_idx   INTEGER NOT NULL,
	start_line  INTEGER NOT NULL,
	end_line    INTEGER NOT NULL,
	token_count INTEGER NOT NULL,
	content     TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	PRIMARY KEY (path, chunk_idx)
);

CREATE TABLE IF NOT EXISTS files (
	path        TEXT PRIMARY KEY,
	chunk_count INTEGER NOT NULL,
	indexed_seq INTEGER NOT NULL,
	use_vector  INTEGER NOT NULL,
	use_fts     INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	path, content, content='chunks', content_rowid='rowid'
);
`

// Index is the SQLite-backed store of indexed chunks and per-file
// metadata. Grounded on _examples/sacenox-symb/internal/store.Cache's
// modernc.org/sqlite wiring (PRAGMA journal_mode=WAL, blank driver
// import), generalized from a flat TTL cache to the chunk/file schema
// spec.md §4.7 describes.
type Index struct {
	mu     sync.Mutex
	db     *sql.DB
	policy Policy
}

// Open creates or opens an index database at dbPath.
func Open(dbPath string, policy Policy) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("indexer: open db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("indexer: pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("indexer: migrate schema: %w", err)
	}
	return &Index{db: db, policy: policy}, nil
}

// Close releases the underlying database handle.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// DeleteFile removes every chunk and file-metadata row for path (spec.md
// §4.7's Deleted event handling).
func (ix *Index) DeleteFile(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chunks_fts WHERE path = ?`, path); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM files WHERE path = ?`, path); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// WriteFile replaces path's chunk set with chunks, applying Policy to
// decide whether vector/FTS rows are (re)written. indexedSeq records the
// TrackedEvent.Seq this write corresponds to, for resumability.
func (ix *Index) WriteFile(path string, chunks []Chunk, hashes []string, indexedSeq uint64) error {
	if len(chunks) != len(hashes) {
		return fmt.Errorf("indexer: chunks/hashes length mismatch (%d vs %d)", len(chunks), len(hashes))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM chunks_fts WHERE path = ?`, path); err != nil {
		return err
	}

	useFTS := ix.policy.UseFTS(len(chunks))
	for i, c := range chunks {
		if _, err := tx.Exec(
			`INSERT INTO chunks (path, chunk_idx, start_line, end_line, token_count, content, content_hash)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			path, i, c.StartLine, c.EndLine, c.TokenCount, c.Text, hashes[i],
		); err != nil {
			return err
		}
		if useFTS {
			if _, err := tx.Exec(`INSERT INTO chunks_fts (path, content) VALUES (?, ?)`, path, c.Text); err != nil {
				return err
			}
		}
	}

	useVector := ix.policy.UseVector(len(chunks))
	if _, err := tx.Exec(
		`INSERT INTO files (path, chunk_count, indexed_seq, use_vector, use_fts) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET chunk_count=excluded.chunk_count, indexed_seq=excluded.indexed_seq,
		   use_vector=excluded.use_vector, use_fts=excluded.use_fts`,
		path, len(chunks), indexedSeq, boolToInt(useVector), boolToInt(useFTS),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// IndexedSeq returns the Seq path was last indexed at, and whether any
// record exists.
func (ix *Index) IndexedSeq(path string) (uint64, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var seq uint64
	err := ix.db.QueryRow(`SELECT indexed_seq FROM files WHERE path = ?`, path).Scan(&seq)
	return seq, err == nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
