package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// GetDocumentByHash retrieves a document by its file hash. Before
// EnsureSchema has run there are no documents, so it returns nil.
func (db *DB) GetDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	var doc Document
	err := db.pool.QueryRow(ctx,
		db.sql(`SELECT d.id, d.file_path, d.file_hash, d.file_type, d.created_at,
		        (SELECT COUNT(*) FROM {chunks} c WHERE c.document_id = d.id)
		 FROM {documents} d WHERE d.file_hash = $1`),
		hash,
	).Scan(&doc.ID, &doc.FilePath, &doc.FileHash, &doc.FileType, &doc.CreatedAt, &doc.ChunkCount)
	if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document by hash: %w", err)
	}
	return &doc, nil
}

// InsertDocumentWithChunks stores a document row and all of its chunks in one
// transaction.
func (db *DB) InsertDocumentWithChunks(ctx context.Context, doc *Document, chunks []*Chunk) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		db.sql(`INSERT INTO {documents} (id, file_path, file_hash, file_type)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`),
		doc.ID, doc.FilePath, doc.FileHash, doc.FileType,
	).Scan(&doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	insertChunk := db.sql(`INSERT INTO {chunks} (id, document_id, chunk_index, page, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6)`)
	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(insertChunk,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Page, chunk.Content, chunk.Embedding,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}
	doc.ChunkCount = len(chunks)
	return nil
}

// SearchSimilarChunks finds the chunks closest to embedding by cosine distance
func (db *DB) SearchSimilarChunks(ctx context.Context, embedding *pgvector.Vector, limit int) ([]*ScoredChunk, error) {
	rows, err := db.pool.Query(ctx,
		db.sql(`SELECT c.id, c.document_id, c.chunk_index, c.page, c.content, c.created_at,
		        d.file_path, 1 - (c.embedding <=> $1)
		 FROM {chunks} c
		 JOIN {documents} d ON d.id = c.document_id
		 WHERE c.embedding IS NOT NULL
		 ORDER BY c.embedding <=> $1
		 LIMIT $2`),
		embedding, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(
			&sc.ID, &sc.DocumentID, &sc.ChunkIndex, &sc.Page,
			&sc.Content, &sc.CreatedAt, &sc.FilePath, &sc.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, &sc)
	}
	return chunks, rows.Err()
}

// SaveConversation saves a conversation record
func (db *DB) SaveConversation(ctx context.Context, conv *Conversation) error {
	_, err := db.pool.Exec(ctx,
		db.sql(`INSERT INTO {conversations} (id, user_message, assistant_message, model_name, context_chunk_ids)
		 VALUES ($1, $2, $3, $4, $5)`),
		conv.ID, conv.UserMessage, conv.AssistantMessage, conv.ModelName, conv.ContextChunkIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// GetAllDocuments retrieves all documents
func (db *DB) GetAllDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := db.pool.Query(ctx,
		db.sql(`SELECT d.id, d.file_path, d.file_hash, d.file_type, d.created_at, COUNT(c.id)
		 FROM {documents} d
		 LEFT JOIN {chunks} c ON c.document_id = d.id
		 GROUP BY d.id
		 ORDER BY d.created_at DESC`),
	)
	if isUndefinedTable(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.FilePath, &doc.FileHash, &doc.FileType, &doc.CreatedAt, &doc.ChunkCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil && !isUndefinedTable(err) {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument deletes a document and, through the cascade, its chunks
func (db *DB) DeleteDocument(ctx context.Context, docID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx, db.sql(`DELETE FROM {documents} WHERE id = $1`), docID)
	if isUndefinedTable(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
