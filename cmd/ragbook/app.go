package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dream-ai/ragbook/config"
	"github.com/dream-ai/ragbook/internal/embeddings"
	"github.com/dream-ai/ragbook/internal/llm"
	"github.com/dream-ai/ragbook/internal/rag"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

// app holds the components shared by the document commands.
type app struct {
	cfg      *config.Config
	store    vectorstore.Store
	embedder embeddings.Embedder
}

func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	store, err := vectorstore.Open(ctx, cfg.VectorStore.URI, cfg.VectorStore.Collection)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}

	emb, err := embeddings.New(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &app{cfg: cfg, store: store, embedder: emb}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) retriever() *rag.Retriever {
	return rag.NewRetriever(a.store, a.embedder, a.cfg.Processing.TopK)
}

func (a *app) pipeline(ctx context.Context) (*rag.Pipeline, llm.Generator, error) {
	gen, err := llm.New(ctx, a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create language model client: %w", err)
	}
	p := rag.NewPipeline(
		a.retriever(),
		rag.NewContextBuilder(a.cfg.Processing.MaxContextTokens),
		gen,
		a.store,
		rag.Options{MaxTokens: a.cfg.LLM.MaxTokens, Temperature: a.cfg.LLM.Temperature},
	)
	return p, gen, nil
}
