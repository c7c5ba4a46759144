package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/dream-ai/ragbook/config"
)

// HuggingFaceRouterURL is the OpenAI-compatible Hugging Face inference router.
const HuggingFaceRouterURL = "https://router.huggingface.co/v1"

// OpenAIConfig configures an OpenAIGenerator
type OpenAIConfig struct {
	Provider  string
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// OpenAIGenerator talks to any OpenAI-compatible chat completions endpoint
type OpenAIGenerator struct {
	client   *openai.Client
	provider string
	model    string
}

// NewOpenAIGenerator creates a generator; the token is read from cfg.APIKeyEnv
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	key, err := config.APIKey(cfg.APIKeyEnv)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: llm.model is required for %s", config.ErrInvalidConfig, cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Provider == "" {
		cfg.Provider = config.ProviderOpenAI
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAIGenerator{
		client:   openai.NewClientWithConfig(clientCfg),
		provider: cfg.Provider,
		model:    cfg.Model,
	}, nil
}

// Model returns the model identifier
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate returns the first choice of a chat completion
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.request(req, false))
	if err != nil {
		return "", g.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", g.provider)
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams completion deltas to onChunk
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, req Request, onChunk func(string)) error {
	stream, err := g.client.CreateChatCompletionStream(ctx, g.request(req, true))
	if err != nil {
		return g.wrap(err)
	}
	defer stream.Close()

	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return g.wrap(err)
		}
		if len(res.Choices) == 0 {
			continue
		}
		if delta := res.Choices[0].Delta.Content; delta != "" {
			onChunk(delta)
		}
	}
}

func (g *OpenAIGenerator) request(req Request, stream bool) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
}

// wrap converts go-openai errors carrying an HTTP status into *APIError.
func (g *OpenAIGenerator) wrap(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: g.provider, StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: g.provider, StatusCode: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return fmt.Errorf("%s request failed: %w", g.provider, err)
}
