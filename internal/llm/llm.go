// Package llm generates answers with local or hosted language models.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/dream-ai/ragbook/config"
)

// Request is a single prompt sent to a model
type Request struct {
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float32
}

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// GenerateStream calls onChunk for every piece of text as it arrives.
	GenerateStream(ctx context.Context, req Request, onChunk func(string)) error
	Model() string
}

// APIError is a non-success response from a generation endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}

// New builds the generator described by cfg. For Ollama with no model
// configured, the best installed model is picked.
func New(ctx context.Context, cfg *config.Config) (Generator, error) {
	lc := cfg.LLM
	timeout := time.Duration(lc.TimeoutSecs) * time.Second

	var oc OpenAIConfig
	switch lc.Provider {
	case config.ProviderOllama:
		client := NewOllamaClient(lc.BaseURL, timeout)
		model, err := NewModelSelector(client).GetDefaultModel(ctx, lc.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to select ollama model: %w", err)
		}
		return NewOllamaGenerator(client, model), nil
	case config.ProviderOpenAI:
		oc = OpenAIConfig{Provider: config.ProviderOpenAI, BaseURL: lc.BaseURL}
	case config.ProviderHuggingFace:
		oc = OpenAIConfig{Provider: config.ProviderHuggingFace, BaseURL: lc.BaseURL}
		if oc.BaseURL == "" {
			oc.BaseURL = HuggingFaceRouterURL
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q", lc.Provider)
	}

	oc.APIKeyEnv = lc.APIKeyEnv
	oc.Model = lc.Model
	oc.Timeout = timeout
	gen, err := NewOpenAIGenerator(oc)
	if err != nil {
		return nil, err
	}
	return gen, nil
}
