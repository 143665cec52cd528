// Package store is the durable SQLite store behind the knowledge bank.
//
// It holds documents, their chunk rows with embeddings, and document
// metadata. The in-memory indexes are derived state: they can always be
// rebuilt from here. A file-backed store takes an exclusive lock file so
// only one process writes the data directory at a time.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/kbank/internal/config"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/store/migrations"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// DatabaseFile is the database file name inside the data directory.
const DatabaseFile = "kbank.db"

// Store is the SQLite-backed durable store.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// OpenDir opens the store in dataDir, creating it if needed.
func OpenDir(dataDir string, cfg config.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, bankerrors.StoreError("failed to create data directory", err)
	}
	return Open(filepath.Join(dataDir, DatabaseFile), cfg)
}

// Open opens the database at path. MemoryPath opens a throwaway store.
func Open(path string, cfg config.StoreConfig) (*Store, error) {
	s := &Store{path: path}

	dsn := path
	if path != MemoryPath {
		s.lock = flock.New(path + ".lock")
		locked, err := s.lock.TryLock()
		if err != nil {
			return nil, bankerrors.StoreError("failed to acquire store lock", err)
		}
		if !locked {
			return nil, bankerrors.New(bankerrors.ErrCodeStoreLocked,
				fmt.Sprintf("store %s is in use by another process", path), nil).
				WithSuggestion("stop the other kbank process or use a different --data directory")
		}
		dsn = "file:" + path
	}
	dsn += "?_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		s.unlock()
		return nil, bankerrors.StoreError("failed to open database", err)
	}

	// One connection: SQLite has a single writer, and an in-memory
	// database lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	busy := cfg.BusyTimeoutDuration()
	if busy <= 0 {
		busy = 5 * time.Second
	}
	cacheMB := cfg.CacheMB
	if cacheMB <= 0 {
		cacheMB = 64
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = %d", -cacheMB*1024), // negative = KB
		"PRAGMA temp_store = MEMORY",
	}
	if path != MemoryPath {
		pragmas = append([]string{"PRAGMA journal_mode = WAL"}, pragmas...)
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			s.unlock()
			return nil, bankerrors.StoreError("failed to set pragma", err)
		}
	}

	s.db = db
	if err := s.migrate(migrations.FS); err != nil {
		_ = db.Close()
		s.unlock()
		return nil, bankerrors.StoreError("failed to run migrations", err)
	}

	slog.Debug("store_opened", slog.String("path", path))
	return s, nil
}

// Path returns the database path.
func (s *Store) Path() string { return s.path }

// Close closes the database and releases the lock file.
func (s *Store) Close() error {
	var err error
	if s.db != nil {
		if s.path != MemoryPath {
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		err = s.db.Close()
	}
	s.unlock()
	return err
}

func (s *Store) unlock() {
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UnixMilli()); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Documents ====================

// SaveDocument inserts or updates doc. An empty ID is assigned here; the
// store's id is the one every index must use.
func (s *Store) SaveDocument(ctx context.Context, doc *Document) error {
	if doc.KnowledgeBaseID == "" {
		return bankerrors.InputError("document needs a knowledge base")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = StatusPending
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, kb_id, title, source_type, content, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			source_type = excluded.source_type,
			content = excluded.content,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, doc.ID, doc.KnowledgeBaseID, doc.Title, doc.SourceType, doc.Content,
		string(doc.Status), doc.Error, doc.CreatedAt.UnixMilli(), doc.UpdatedAt.UnixMilli())
	if err != nil {
		return bankerrors.StoreError("saving document", err)
	}
	return nil
}

const documentColumns = `id, kb_id, title, source_type, content, status, error, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		d                Document
		status           string
		created, updated int64
	)
	if err := row.Scan(&d.ID, &d.KnowledgeBaseID, &d.Title, &d.SourceType, &d.Content,
		&status, &d.Error, &created, &updated); err != nil {
		return nil, err
	}
	d.Status = Status(status)
	d.CreatedAt = time.UnixMilli(created).UTC()
	d.UpdatedAt = time.UnixMilli(updated).UTC()
	return &d, nil
}

// GetDocument returns the document with id.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bankerrors.NotFound(id)
	}
	if err != nil {
		return nil, bankerrors.StoreError("getting document", err)
	}
	return d, nil
}

// ListDocuments returns the documents of kb ordered by id.
func (s *Store) ListDocuments(ctx context.Context, kb string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE kb_id = ? ORDER BY id`, kb)
	if err != nil {
		return nil, bankerrors.StoreError("listing documents", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, bankerrors.StoreError("scanning document", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, bankerrors.StoreError("listing documents", err)
	}
	return docs, nil
}

// ListKnowledgeBases returns every knowledge base with at least one document.
func (s *Store) ListKnowledgeBases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT kb_id FROM documents ORDER BY kb_id`)
	if err != nil {
		return nil, bankerrors.StoreError("listing knowledge bases", err)
	}
	defer func() { _ = rows.Close() }()

	var kbs []string
	for rows.Next() {
		var kb string
		if err := rows.Scan(&kb); err != nil {
			return nil, bankerrors.StoreError("scanning knowledge base", err)
		}
		kbs = append(kbs, kb)
	}
	return kbs, rows.Err()
}

// DeleteDocument removes a document with its chunks and metadata.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return bankerrors.StoreError("deleting document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bankerrors.NotFound(id)
	}
	return nil
}

// SetStatus records a status transition. errMsg is kept only for failed.
func (s *Store) SetStatus(ctx context.Context, id string, status Status, errMsg string) error {
	if !status.Valid() {
		return bankerrors.InputError(fmt.Sprintf("unknown status %q", status))
	}
	if status != StatusFailed {
		errMsg = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC().UnixMilli(), id)
	if err != nil {
		return bankerrors.StoreError("setting status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return bankerrors.NotFound(id)
	}
	return nil
}

// ==================== Chunks ====================

// ReplaceChunks swaps the full chunk set of docID in one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, docID string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return bankerrors.StoreError("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	var kb string
	if err := tx.QueryRowContext(ctx, `SELECT kb_id FROM documents WHERE id = ?`, docID).Scan(&kb); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bankerrors.NotFound(docID)
		}
		return bankerrors.StoreError("looking up document", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return bankerrors.StoreError("deleting chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, kb_id, chunk_index, content, start_token, end_token,
			token_count, section_title, is_code_block, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return bankerrors.StoreError("preparing chunk insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = ChunkID(docID, c.Index)
		}
		if _, err := stmt.ExecContext(ctx, id, docID, kb, c.Index, c.Content, c.StartToken, c.EndToken,
			c.TokenCount, c.SectionTitle, c.IsCodeBlock, embeddingValue(c.Embedding)); err != nil {
			return bankerrors.StoreError("inserting chunk", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return bankerrors.StoreError("committing chunks", err)
	}
	return nil
}

const chunkColumns = `id, document_id, kb_id, chunk_index, content, start_token, end_token,
	token_count, section_title, is_code_block, embedding`

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	defer func() { _ = rows.Close() }()
	var out []Chunk
	for rows.Next() {
		var (
			c    Chunk
			blob []byte
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.KnowledgeBaseID, &c.Index, &c.Content,
			&c.StartToken, &c.EndToken, &c.TokenCount, &c.SectionTitle, &c.IsCodeBlock, &blob); err != nil {
			return nil, bankerrors.StoreError("scanning chunk", err)
		}
		c.Embedding = bytesToFloat32Slice(blob)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, bankerrors.StoreError("listing chunks", err)
	}
	return out, nil
}

// ListChunks returns the chunks of docID in order.
func (s *Store) ListChunks(ctx context.Context, docID string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, bankerrors.StoreError("listing chunks", err)
	}
	return scanChunks(rows)
}

// ListChunkVectors returns every embedded chunk of kb, ordered by id.
func (s *Store) ListChunkVectors(ctx context.Context, kb string) ([]Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE kb_id = ? AND embedding IS NOT NULL ORDER BY id`, kb)
	if err != nil {
		return nil, bankerrors.StoreError("listing chunk vectors", err)
	}
	return scanChunks(rows)
}

// ==================== Metadata ====================

// SaveMetadata inserts or replaces the metadata of m.DocumentID.
func (s *Store) SaveMetadata(ctx context.Context, m Metadata) error {
	concepts := m.Concepts
	if concepts == nil {
		concepts = []Concept{}
	}
	tech := m.TechStack
	if tech == nil {
		tech = []string{}
	}
	conceptsJSON, err := json.Marshal(concepts)
	if err != nil {
		return fmt.Errorf("marshalling concepts: %w", err)
	}
	techJSON, err := json.Marshal(tech)
	if err != nil {
		return fmt.Errorf("marshalling tech stack: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO doc_metadata (document_id, source_type, concepts, tech_stack, skill_level, cluster_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			source_type = excluded.source_type,
			concepts = excluded.concepts,
			tech_stack = excluded.tech_stack,
			skill_level = excluded.skill_level,
			cluster_id = excluded.cluster_id
	`, m.DocumentID, m.SourceType, string(conceptsJSON), string(techJSON), m.SkillLevel, m.ClusterID)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return bankerrors.NotFound(m.DocumentID)
		}
		return bankerrors.StoreError("saving metadata", err)
	}
	return nil
}

const metadataColumns = `m.document_id, m.source_type, m.concepts, m.tech_stack, m.skill_level, m.cluster_id`

func scanMetadata(row rowScanner) (*Metadata, error) {
	var (
		m                      Metadata
		conceptsJSON, techJSON string
	)
	if err := row.Scan(&m.DocumentID, &m.SourceType, &conceptsJSON, &techJSON, &m.SkillLevel, &m.ClusterID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(conceptsJSON), &m.Concepts); err != nil {
		return nil, fmt.Errorf("decoding concepts of %s: %w", m.DocumentID, err)
	}
	if err := json.Unmarshal([]byte(techJSON), &m.TechStack); err != nil {
		return nil, fmt.Errorf("decoding tech stack of %s: %w", m.DocumentID, err)
	}
	return &m, nil
}

// GetMetadata returns the metadata of docID.
func (s *Store) GetMetadata(ctx context.Context, docID string) (*Metadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+metadataColumns+` FROM doc_metadata m WHERE m.document_id = ?`, docID)
	m, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bankerrors.NotFound(docID)
	}
	if err != nil {
		return nil, bankerrors.StoreError("getting metadata", err)
	}
	return m, nil
}

// ListMetadata returns the metadata of every document in kb that has
// some, ordered by document id.
func (s *Store) ListMetadata(ctx context.Context, kb string) ([]Metadata, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+metadataColumns+`
		FROM doc_metadata m JOIN documents d ON d.id = m.document_id
		WHERE d.kb_id = ?
		ORDER BY m.document_id
	`, kb)
	if err != nil {
		return nil, bankerrors.StoreError("listing metadata", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, bankerrors.StoreError("scanning metadata", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, bankerrors.StoreError("listing metadata", err)
	}
	return out, nil
}

// ==================== Stats ====================

// Stats counts documents by status and chunks for kb.
func (s *Store) Stats(ctx context.Context, kb string) (*KBStats, error) {
	st := &KBStats{ByStatus: make(map[Status]int)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents WHERE kb_id = ? GROUP BY status`, kb)
	if err != nil {
		return nil, bankerrors.StoreError("counting documents", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, bankerrors.StoreError("counting documents", err)
		}
		st.ByStatus[Status(status)] = n
		st.Documents += n
	}
	if err := rows.Err(); err != nil {
		return nil, bankerrors.StoreError("counting documents", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(embedding) FROM chunks WHERE kb_id = ?`, kb).Scan(&st.Chunks, &st.Embedded)
	if err != nil {
		return nil, bankerrors.StoreError("counting chunks", err)
	}
	return st, nil
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// embeddingValue binds a missing embedding as NULL.
func embeddingValue(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return float32SliceToBytes(v)
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
