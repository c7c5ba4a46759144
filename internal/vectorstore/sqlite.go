package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps chunks in a single SQLite file. Embeddings are stored as
// JSON and compared in process.
type SQLiteStore struct {
	conn       *sql.DB
	path       string
	collection string
	dimension  int
}

// NewSQLiteStore opens or creates the database file at path
func NewSQLiteStore(path, collection string) (*SQLiteStore, error) {
	if collection == "" {
		collection = "ragbook"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{conn: conn, path: path, collection: collection}
	if err := s.setupTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to setup database tables: %w", err)
	}
	return s, nil
}

// Path returns the database file location
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) setupTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			name      TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			file_path  TEXT NOT NULL,
			file_hash  TEXT NOT NULL,
			file_type  TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (collection, file_hash)
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id          TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			page        INTEGER NOT NULL DEFAULT 0,
			content     TEXT NOT NULL,
			embedding   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %s, error: %w", query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", ErrDimensionMismatch, dimension)
	}

	var existing int
	err := s.conn.QueryRowContext(ctx,
		`SELECT dimension FROM collections WHERE name = ?`, s.collection,
	).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.conn.ExecContext(ctx,
			`INSERT INTO collections (name, dimension) VALUES (?, ?)`, s.collection, dimension,
		); err != nil {
			return fmt.Errorf("failed to register collection: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to read collection: %w", err)
	case existing != dimension:
		return fmt.Errorf("%w: collection %q has %d, embedder produces %d",
			ErrDimensionMismatch, s.collection, existing, dimension)
	}

	s.dimension = dimension
	return nil
}

func (s *SQLiteStore) FindDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT d.id, d.file_path, d.file_hash, d.file_type, d.created_at,
		        (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
		 FROM documents d WHERE d.collection = ? AND d.file_hash = ?`,
		s.collection, hash,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}
	return doc, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, doc *Document, chunks []Chunk) error {
	for _, c := range chunks {
		if err := checkDimension(s.dimension, c.Embedding); err != nil {
			return err
		}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, collection, file_path, file_hash, file_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID.String(), s.collection, doc.Path, doc.Hash, doc.FileType, doc.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, chunk_index, page, content, embedding) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		embeddingJSON, err := json.Marshal(c.Embedding)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID.String(), c.DocumentID.String(), c.Index, c.Page, c.Content, string(embeddingJSON),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	doc.ChunkCount = len(chunks)
	return nil
}

func (s *SQLiteStore) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if err := checkDimension(s.dimension, vector); err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT c.id, c.document_id, c.chunk_index, c.page, c.content, c.embedding, d.file_path
		 FROM chunks c JOIN documents d ON d.id = c.document_id
		 WHERE d.collection = ?
		 ORDER BY d.created_at, c.chunk_index`,
		s.collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r                 SearchResult
			id, docID, embStr string
		)
		if err := rows.Scan(&id, &docID, &r.Chunk.Index, &r.Chunk.Page, &r.Chunk.Content, &embStr, &r.DocumentPath); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(embStr), &r.Chunk.Embedding); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for chunk %s: %w", id, err)
		}
		if r.Chunk.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid chunk id %q: %w", id, err)
		}
		if r.Chunk.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, fmt.Errorf("invalid document id %q: %w", docID, err)
		}
		r.Score = CosineSimilarity(vector, r.Chunk.Embedding)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return rankTopK(results, topK), nil
}

func (s *SQLiteStore) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT d.id, d.file_path, d.file_hash, d.file_type, d.created_at,
		        (SELECT COUNT(*) FROM chunks c WHERE c.document_id = d.id)
		 FROM documents d WHERE d.collection = ?
		 ORDER BY d.created_at DESC`,
		s.collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND collection = ?`, id.String(), s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc Document
		id  string
	)
	if err := row.Scan(&id, &doc.Path, &doc.Hash, &doc.FileType, &doc.CreatedAt, &doc.ChunkCount); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid document id %q: %w", id, err)
	}
	doc.ID = parsed
	return &doc, nil
}
