package embeddings

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/dream-ai/ragbook/config"
)

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
}

// NewOpenAIEmbedder creates an embedder reading its token from apiKeyEnv
func NewOpenAIEmbedder(baseURL, apiKeyEnv, model string, batchSize int) (*OpenAIEmbedder, error) {
	key, err := config.APIKey(apiKeyEnv)
	if err != nil {
		return nil, err
	}

	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return newOpenAIEmbedder(openai.NewClientWithConfig(cfg), model, batchSize), nil
}

func newOpenAIEmbedder(client *openai.Client, model string, batchSize int) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	return &OpenAIEmbedder{client: client, model: model, batchSize: batchSize}
}

// Model returns the embedding model name
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

// Embed generates an embedding for the given text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in groups of batchSize and returns vectors in input order
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			t = strings.TrimSpace(t)
			if t == "" {
				return nil, ErrEmptyText
			}
			batch = append(batch, t)
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
		}

		for i, d := range resp.Data {
			idx := i
			if d.Index >= 0 && d.Index < len(batch) {
				idx = d.Index
			}
			if len(d.Embedding) == 0 {
				return nil, ErrEmptyEmbedding
			}
			out[start+idx] = d.Embedding
		}
	}
	return out, nil
}
