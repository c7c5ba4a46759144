package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Document represents an ingested source file
type Document struct {
	ID         uuid.UUID
	FilePath   string
	FileHash   string
	FileType   string
	ChunkCount int
	CreatedAt  time.Time
}

// Chunk represents a text chunk with embedding
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Page       int
	Content    string
	Embedding  *pgvector.Vector
	CreatedAt  time.Time
}

// ScoredChunk is a chunk returned by a similarity search
type ScoredChunk struct {
	Chunk
	FilePath   string
	Similarity float64
}

// Conversation represents a question and the answer generated for it
type Conversation struct {
	ID               uuid.UUID
	UserMessage      string
	AssistantMessage string
	ModelName        string
	ContextChunkIDs  []uuid.UUID
	CreatedAt        time.Time
}
