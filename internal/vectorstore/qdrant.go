package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection details for a Qdrant server.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantStore keeps every chunk as a point. Document fields are copied into
// each point's payload so documents can be listed without a second store.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	waitUpsert bool
}

// NewQdrantStore connects to Qdrant over gRPC
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "ragbook"
	}
	return &QdrantStore{client: c, collection: collection, waitUpsert: true}, nil
}

func (s *QdrantStore) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: %d", ErrDimensionMismatch, dimension)
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to communicate with vector store: %w", err)
	}

	if !exists {
		slog.Info("creating qdrant collection", "name", s.collection, "dimension", dimension)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	} else {
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("failed to read collection info: %w", err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && int(size) != dimension {
			return fmt.Errorf("%w: collection %q has %d, embedder produces %d",
				ErrDimensionMismatch, s.collection, size, dimension)
		}
	}

	s.dimension = dimension
	return nil
}

// exists reports whether the collection is there to be read. Init creates
// it, so before the first ingest lookups see an empty store.
func (s *QdrantStore) exists(ctx context.Context) (bool, error) {
	if s.dimension > 0 {
		return true, nil
	}
	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to communicate with vector store: %w", err)
	}
	return ok, nil
}

func (s *QdrantStore) FindDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	if ok, err := s.exists(ctx); !ok {
		return nil, err
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("file_hash", hash),
				qdrant.NewMatchInt("chunk_index", 0),
			},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up document by hash: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	doc := documentFromPayload(points[0].GetPayload())
	return &doc, nil
}

func (s *QdrantStore) Upsert(ctx context.Context, doc *Document, chunks []Chunk) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.ChunkCount = len(chunks)

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if err := checkDimension(s.dimension, c.Embedding); err != nil {
			return err
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID.String()),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id":   doc.ID.String(),
				"document_path": doc.Path,
				"file_hash":     doc.Hash,
				"file_type":     doc.FileType,
				"chunk_count":   int64(doc.ChunkCount),
				"created_at":    doc.CreatedAt.Unix(),
				"chunk_index":   int64(c.Index),
				"page":          int64(c.Page),
				"text":          c.Content,
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &s.waitUpsert,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points to vector store: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error) {
	if err := checkDimension(s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	limit := uint64(topK)

	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	results := make([]SearchResult, 0, len(res))
	for _, sp := range res {
		payload := sp.GetPayload()
		doc := documentFromPayload(payload)
		id, _ := uuid.Parse(sp.GetId().GetUuid())
		results = append(results, SearchResult{
			Chunk: Chunk{
				ID:         id,
				DocumentID: doc.ID,
				Index:      int(payload["chunk_index"].GetIntegerValue()),
				Page:       int(payload["page"].GetIntegerValue()),
				Content:    payload["text"].GetStringValue(),
			},
			DocumentPath: doc.Path,
			Score:        float64(sp.GetScore()),
		})
	}
	return results, nil
}

// Documents lists one entry per document by scrolling over first chunks.
func (s *QdrantStore) Documents(ctx context.Context) ([]Document, error) {
	if ok, err := s.exists(ctx); !ok {
		return nil, err
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchInt("chunk_index", 0)},
		},
		Limit:       qdrant.PtrOf(uint32(10000)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]Document, 0, len(points))
	for _, p := range points {
		docs = append(docs, documentFromPayload(p.GetPayload()))
	}
	return docs, nil
}

func (s *QdrantStore) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	if ok, err := s.exists(ctx); !ok {
		return false, err
	}

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("document_id", id.String())},
	}

	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return false, fmt.Errorf("failed to count document points: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           &s.waitUpsert,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete document points: %w", err)
	}
	return true, nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func documentFromPayload(payload map[string]*qdrant.Value) Document {
	id, _ := uuid.Parse(payload["document_id"].GetStringValue())
	return Document{
		ID:         id,
		Path:       payload["document_path"].GetStringValue(),
		Hash:       payload["file_hash"].GetStringValue(),
		FileType:   payload["file_type"].GetStringValue(),
		ChunkCount: int(payload["chunk_count"].GetIntegerValue()),
		CreatedAt:  time.Unix(payload["created_at"].GetIntegerValue(), 0).UTC(),
	}
}
