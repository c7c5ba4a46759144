package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dream-ai/ragbook/internal/llm"
	"github.com/dream-ai/ragbook/internal/vectorstore"
)

// SystemPrompt is sent with every question.
const SystemPrompt = "You are a careful assistant that answers questions about the user's documents."

// Answer is a generated reply and the chunks it was based on
type Answer struct {
	Text    string
	Sources []vectorstore.SearchResult
	Model   string
}

// Pipeline wires retrieval, prompt building and generation together
type Pipeline struct {
	retriever   *Retriever
	builder     *ContextBuilder
	generator   llm.Generator
	store       vectorstore.Store
	maxTokens   int
	temperature float32
}

// Options tune generation
type Options struct {
	MaxTokens   int
	Temperature float32
}

// NewPipeline creates a pipeline. store is used to save conversations when
// it implements vectorstore.ConversationStore.
func NewPipeline(retriever *Retriever, builder *ContextBuilder, generator llm.Generator, store vectorstore.Store, opts Options) *Pipeline {
	return &Pipeline{
		retriever:   retriever,
		builder:     builder,
		generator:   generator,
		store:       store,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}
}

// Ask answers query in one response
func (p *Pipeline) Ask(ctx context.Context, query string) (*Answer, error) {
	result, req, err := p.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	text, err := p.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return p.finish(ctx, result, text), nil
}

// AskStream answers query, passing text to onChunk as it is generated
func (p *Pipeline) AskStream(ctx context.Context, query string, onChunk func(string)) (*Answer, error) {
	result, req, err := p.prepare(ctx, query)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	err = p.generator.GenerateStream(ctx, req, func(s string) {
		sb.WriteString(s)
		onChunk(s)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return p.finish(ctx, result, sb.String()), nil
}

func (p *Pipeline) prepare(ctx context.Context, query string) (*RetrievalResult, llm.Request, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, llm.Request{}, fmt.Errorf("question cannot be empty")
	}

	result, err := p.retriever.Retrieve(ctx, query)
	if err != nil {
		return nil, llm.Request{}, err
	}
	slog.Debug("retrieved context", "query", query, "chunks", len(result.Chunks))

	prompt := p.builder.BuildPrompt(p.builder.BuildContext(result), query)
	return result, llm.Request{
		Prompt:      prompt,
		System:      SystemPrompt,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}, nil
}

func (p *Pipeline) finish(ctx context.Context, result *RetrievalResult, text string) *Answer {
	answer := &Answer{
		Text:    strings.TrimSpace(text),
		Sources: result.Chunks,
		Model:   p.generator.Model(),
	}

	if cs, ok := p.store.(vectorstore.ConversationStore); ok {
		conv := &vectorstore.Conversation{
			ID:       uuid.New(),
			Question: result.Query,
			Answer:   answer.Text,
			Model:    answer.Model,
			ChunkIDs: ChunkIDs(result),
		}
		if err := cs.SaveConversation(ctx, conv); err != nil {
			slog.Warn("failed to save conversation", "error", err)
		}
	}
	return answer
}
