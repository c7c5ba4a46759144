// Package embeddings turns text into vectors through hosted or local
// embedding models.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dream-ai/ragbook/config"
)

var (
	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrEmptyEmbedding is returned when a provider answers without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding returned")
)

// Embedder generates vector embeddings for text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// APIError is a non-success response from an embedding endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}

// New builds the embedder described by cfg, wrapped with rate limiting and
// caching when configured.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	ec := cfg.Embeddings

	var (
		emb Embedder
		err error
	)
	switch ec.Provider {
	case config.ProviderOllama:
		emb = NewOllamaEmbedder(ec.BaseURL, ec.Model)
	case config.ProviderOpenAI:
		emb, err = NewOpenAIEmbedder(ec.BaseURL, ec.APIKeyEnv, ec.Model, ec.BatchSize)
	case config.ProviderHuggingFace:
		emb, err = NewHuggingFaceEmbedder(ec.BaseURL, ec.APIKeyEnv, ec.Model, ec.BatchSize)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", ec.Provider)
	}
	if err != nil {
		return nil, err
	}

	if ec.RequestsPerSecond > 0 {
		emb = NewLimited(emb, ec.RequestsPerSecond)
	}

	if ec.Cache.URI != "" {
		cache, err := OpenCache(ctx, ec.Cache.URI, ec.Cache.Size, time.Duration(ec.Cache.TTLMinutes)*time.Minute)
		if err != nil {
			return nil, err
		}
		emb = NewCached(emb, cache)
	}

	return emb, nil
}

// embedEach calls embed for every text in order.
func embedEach(ctx context.Context, texts []string, embed func(context.Context, string) ([]float32, error)) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}
