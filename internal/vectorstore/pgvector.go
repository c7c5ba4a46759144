package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/dream-ai/ragbook/internal/db"
)

// PGVectorStore keeps chunks in Postgres using the pgvector extension.
type PGVectorStore struct {
	db        *db.DB
	dimension int
}

// NewPGVectorStore connects to the database at connString. Tables are named
// after collection, e.g. books_chunks.
func NewPGVectorStore(ctx context.Context, connString, collection string) (*PGVectorStore, error) {
	database, err := db.New(ctx, connString, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &PGVectorStore{db: database}, nil
}

func (s *PGVectorStore) Init(ctx context.Context, dimension int) error {
	if err := s.db.EnsureSchema(ctx, dimension); err != nil {
		if errors.Is(err, db.ErrDimensionMismatch) {
			return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
		}
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *PGVectorStore) FindDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	doc, err := s.db.GetDocumentByHash(ctx, hash)
	if err != nil || doc == nil {
		return nil, err
	}
	out := fromDBDocument(doc)
	return &out, nil
}

func (s *PGVectorStore) Upsert(ctx context.Context, doc *Document, chunks []Chunk) error {
	rows := make([]*db.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if err := checkDimension(s.dimension, c.Embedding); err != nil {
			return err
		}
		vec := pgvector.NewVector(c.Embedding)
		rows = append(rows, &db.Chunk{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.Index,
			Page:       c.Page,
			Content:    c.Content,
			Embedding:  &vec,
		})
	}

	dbDoc := &db.Document{
		ID:       doc.ID,
		FilePath: doc.Path,
		FileHash: doc.Hash,
		FileType: doc.FileType,
	}
	if err := s.db.InsertDocumentWithChunks(ctx, dbDoc, rows); err != nil {
		return err
	}
	doc.CreatedAt = dbDoc.CreatedAt
	doc.ChunkCount = dbDoc.ChunkCount
	return nil
}

func (s *PGVectorStore) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if err := checkDimension(s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec := pgvector.NewVector(vector)
	rows, err := s.db.SearchSimilarChunks(ctx, &vec, topK)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, SearchResult{
			Chunk: Chunk{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Index:      r.ChunkIndex,
				Page:       r.Page,
				Content:    r.Content,
			},
			DocumentPath: r.FilePath,
			Score:        r.Similarity,
		})
	}
	return results, nil
}

func (s *PGVectorStore) Documents(ctx context.Context) ([]Document, error) {
	rows, err := s.db.GetAllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(rows))
	for _, d := range rows {
		docs = append(docs, fromDBDocument(d))
	}
	return docs, nil
}

func (s *PGVectorStore) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.db.DeleteDocument(ctx, id)
}

// SaveConversation records a question, its answer and the chunks it used
func (s *PGVectorStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	return s.db.SaveConversation(ctx, &db.Conversation{
		ID:               conv.ID,
		UserMessage:      conv.Question,
		AssistantMessage: conv.Answer,
		ModelName:        conv.Model,
		ContextChunkIDs:  conv.ChunkIDs,
	})
}

func (s *PGVectorStore) Close() error {
	s.db.Close()
	return nil
}

func fromDBDocument(d *db.Document) Document {
	return Document{
		ID:         d.ID,
		Path:       d.FilePath,
		Hash:       d.FileHash,
		FileType:   d.FileType,
		ChunkCount: d.ChunkCount,
		CreatedAt:  d.CreatedAt,
	}
}
