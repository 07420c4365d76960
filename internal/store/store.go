// Package store keeps structured documents and their chunks in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/doctree"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	doc_id       TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	filename     TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	format       TEXT NOT NULL DEFAULT '',
	rules        TEXT NOT NULL DEFAULT '',
	scanned      INTEGER NOT NULL DEFAULT 0,
	recognized   INTEGER NOT NULL DEFAULT 0,
	chunk_mode   TEXT NOT NULL DEFAULT '',
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	report       TEXT NOT NULL DEFAULT '{}',
	created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_content_hash ON documents(content_hash);
CREATE TABLE IF NOT EXISTS chunks (
	doc_id      TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	text        TEXT NOT NULL,
	metadata    TEXT NOT NULL,
	PRIMARY KEY (doc_id, chunk_index)
);
`

// Document is the stored summary of one processed document. Report holds
// the assessment, metadata and warnings as JSON.
type Document struct {
	ID          string          `json:"doc_id"`
	ContentHash string          `json:"content_hash"`
	Filename    string          `json:"filename"`
	Title       string          `json:"title"`
	Format      string          `json:"format"`
	Rules       string          `json:"rules"`
	Scanned     bool            `json:"scanned"`
	Recognized  bool            `json:"recognized"`
	ChunkMode   string          `json:"chunk_mode"`
	ChunkCount  int             `json:"chunk_count"`
	Report      json.RawMessage `json:"report,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted for
// tests and is limited to a single connection.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveDocument writes doc and replaces any chunks stored under its ID.
func (s *Store) SaveDocument(ctx context.Context, doc Document, chunks []doctree.Chunk) error {
	if doc.ID == "" {
		return fmt.Errorf("save document: empty id")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	report := doc.Report
	if len(report) == 0 {
		report = json.RawMessage("{}")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO documents (doc_id, content_hash, filename, title, format, rules, scanned, recognized, chunk_mode, chunk_count, report, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(doc_id) DO UPDATE SET
	content_hash = excluded.content_hash,
	filename     = excluded.filename,
	title        = excluded.title,
	format       = excluded.format,
	rules        = excluded.rules,
	scanned      = excluded.scanned,
	recognized   = excluded.recognized,
	chunk_mode   = excluded.chunk_mode,
	chunk_count  = excluded.chunk_count,
	report       = excluded.report`,
		doc.ID, doc.ContentHash, doc.Filename, doc.Title, doc.Format, doc.Rules,
		doc.Scanned, doc.Recognized, doc.ChunkMode, len(chunks), string(report),
		doc.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks %s: %w", doc.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (doc_id, chunk_index, text, metadata) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal chunk %d: %w", c.Metadata.ChunkIndex, err)
		}
		if _, err := stmt.ExecContext(ctx, doc.ID, c.Metadata.ChunkIndex, c.Text, string(meta)); err != nil {
			return fmt.Errorf("insert chunk %d: %w", c.Metadata.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FindByHash returns the ID of a document with the given content hash.
func (s *Store) FindByHash(ctx context.Context, hash string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc_id FROM documents WHERE content_hash = ? ORDER BY created_at LIMIT 1`, hash).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find by hash: %w", err)
	}
	return id, true, nil
}

const documentColumns = `doc_id, content_hash, filename, title, format, rules, scanned, recognized, chunk_mode, chunk_count, report, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var (
		d       Document
		report  string
		created string
	)
	err := row.Scan(&d.ID, &d.ContentHash, &d.Filename, &d.Title, &d.Format, &d.Rules,
		&d.Scanned, &d.Recognized, &d.ChunkMode, &d.ChunkCount, &report, &created)
	if err != nil {
		return d, err
	}
	d.Report = json.RawMessage(report)
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		d.CreatedAt = t
	}
	return d, nil
}

// List returns documents newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY created_at DESC, doc_id LIMIT ? OFFSET ?`,
		limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *Store) Get(ctx context.Context, docID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE doc_id = ?`, docID)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", docID, err)
	}
	return d, nil
}

// Chunks returns a document's chunks in index order.
func (s *Store) Chunks(ctx context.Context, docID string) ([]doctree.Chunk, error) {
	if _, err := s.Get(ctx, docID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT text, metadata FROM chunks WHERE doc_id = ? ORDER BY chunk_index`, docID)
	if err != nil {
		return nil, fmt.Errorf("list chunks %s: %w", docID, err)
	}
	defer rows.Close()

	chunks := []doctree.Chunk{}
	for rows.Next() {
		var (
			c    doctree.Chunk
			meta string
		)
		if err := rows.Scan(&c.Text, &meta); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode chunk metadata: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Delete removes a document and its chunks.
func (s *Store) Delete(ctx context.Context, docID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE doc_id = ?`, docID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
