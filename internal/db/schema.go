package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrDimensionMismatch is returned when the chunks table was created for a
// different embedding size.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS {documents} (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	file_path  TEXT NOT NULL,
	file_hash  TEXT NOT NULL UNIQUE,
	file_type  TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS {chunks} (
	id          UUID PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES {documents}(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	content     TEXT NOT NULL,
	embedding   vector(%d),
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS {chunks_embedding_idx} ON {chunks} USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS {conversations} (
	id                UUID PRIMARY KEY,
	user_message      TEXT NOT NULL,
	assistant_message TEXT NOT NULL,
	model_name        TEXT NOT NULL,
	context_chunk_ids UUID[] NOT NULL DEFAULT '{}',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the extension, tables and indexes if they are missing
// and checks that an existing chunks table matches dimension.
func (db *DB) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	existing, err := db.EmbeddingDimension(ctx)
	if err != nil {
		return err
	}
	if existing > 0 && existing != dimension {
		return fmt.Errorf("%w: table has %d, embedder produces %d", ErrDimensionMismatch, existing, dimension)
	}

	if _, err := db.pool.Exec(ctx, fmt.Sprintf(db.sql(schemaSQL), dimension)); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// EmbeddingDimension returns the declared size of the chunks embedding
// column, or 0 if the table does not exist yet.
func (db *DB) EmbeddingDimension(ctx context.Context) (int, error) {
	var typmod int
	err := db.pool.QueryRow(ctx,
		`SELECT a.atttypmod
		 FROM pg_attribute a
		 WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding'`,
		db.sql("{chunks}"),
	).Scan(&typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read embedding dimension: %w", err)
	}
	if typmod < 0 {
		return 0, nil
	}
	return typmod, nil
}
