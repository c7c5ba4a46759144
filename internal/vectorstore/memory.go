package vectorstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process store using exact cosine search.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      map[uuid.UUID]*Document
	order     []uuid.UUID
	chunks    []Chunk
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[uuid.UUID]*Document)}
}

func (s *MemoryStore) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return ErrDimensionMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.chunks) > 0 {
		return ErrDimensionMismatch
	}
	s.dimension = dimension
	return nil
}

func (s *MemoryStore) FindDocumentByHash(_ context.Context, hash string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if d := s.docs[id]; d.Hash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Upsert(_ context.Context, doc *Document, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if err := checkDimension(s.dimension, c.Embedding); err != nil {
			return err
		}
	}

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.ChunkCount = len(chunks)
	cp := *doc
	if _, exists := s.docs[doc.ID]; !exists {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = &cp
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, topK int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := checkDimension(s.dimension, vector); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(s.chunks))
	for _, c := range s.chunks {
		results = append(results, SearchResult{
			Chunk:        c,
			DocumentPath: s.docs[c.DocumentID].Path,
			Score:        CosineSimilarity(vector, c.Embedding),
		})
	}
	return rankTopK(results, topK), nil
}

func (s *MemoryStore) Documents(_ context.Context) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]Document, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, *s.docs[id])
	}
	return docs, nil
}

func (s *MemoryStore) DeleteDocument(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return false, nil
	}
	delete(s.docs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.DocumentID != id {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return true, nil
}

func (s *MemoryStore) Close() error { return nil }
