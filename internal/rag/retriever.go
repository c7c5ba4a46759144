// Package rag answers questions from ingested documents: it retrieves the
// closest chunks, formats them into a prompt and asks a language model.
package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/dream-ai/ragbook/internal/embeddings"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

// Retriever handles RAG retrieval using vector similarity search
type Retriever struct {
	store    vectorstore.Store
	embedder embeddings.Embedder
	topK     int
}

// NewRetriever creates a new RAG retriever
func NewRetriever(store vectorstore.Store, embedder embeddings.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = vectorstore.DefaultTopK
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		topK:     topK,
	}
}

// RetrievalResult contains the chunks retrieved for a query, best first
type RetrievalResult struct {
	Query  string
	Chunks []vectorstore.SearchResult
}

// Retrieve embeds query and returns the topK closest chunks
func (r *Retriever) Retrieve(ctx context.Context, query string) (*RetrievalResult, error) {
	chunks, err := r.search(ctx, query, r.topK)
	if err != nil {
		return nil, err
	}
	return &RetrievalResult{Query: query, Chunks: chunks}, nil
}

// RetrieveHybrid searches hybridFactor*topK candidates and keeps up to topK
// of them that contain a query keyword. When none do, it returns the plain
// topK vector ranking.
func (r *Retriever) RetrieveHybrid(ctx context.Context, query string) (*RetrievalResult, error) {
	candidates, err := r.search(ctx, query, hybridFactor*r.topK)
	if err != nil {
		return nil, err
	}
	chunks := filterByKeywords(candidates, extractKeywords(query), r.topK)
	return &RetrievalResult{Query: query, Chunks: chunks}, nil
}

const hybridFactor = 3

func (r *Retriever) search(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	// a fresh connection learns the stored dimension here; a different
	// embedding model fails with ErrDimensionMismatch
	if err := r.store.Init(ctx, len(queryEmbedding)); err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	chunks, err := r.store.Search(ctx, queryEmbedding, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	return chunks, nil
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"what": true, "which": true, "who": true, "when": true, "where": true,
	"why": true, "how": true,
}

// extractKeywords extracts important keywords from query
func extractKeywords(query string) []string {
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(query)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) > 2 && !stopWords[word] {
			keywords = append(keywords, word)
		}
	}
	return keywords
}

// filterByKeywords keeps, in order, at most limit chunks containing one of
// keywords, falling back to the first limit chunks when nothing matches.
func filterByKeywords(chunks []vectorstore.SearchResult, keywords []string, limit int) []vectorstore.SearchResult {
	var filtered []vectorstore.SearchResult
	for _, c := range chunks {
		if len(filtered) == limit {
			break
		}
		content := strings.ToLower(c.Chunk.Content)
		for _, keyword := range keywords {
			if strings.Contains(content, keyword) {
				filtered = append(filtered, c)
				break
			}
		}
	}

	if len(filtered) == 0 {
		return chunks[:min(limit, len(chunks))]
	}
	return filtered
}
