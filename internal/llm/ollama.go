package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient wraps Ollama API interactions
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(baseURL string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// generateRequest is the body of /api/generate
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is one NDJSON line of /api/generate
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// OllamaGenerator generates text using Ollama
type OllamaGenerator struct {
	client *OllamaClient
	model  string
}

// NewOllamaGenerator creates a generator for model
func NewOllamaGenerator(client *OllamaClient, model string) *OllamaGenerator {
	return &OllamaGenerator{client: client, model: model}
}

// Model returns the model name
func (g *OllamaGenerator) Model() string {
	return g.model
}

// Generate returns the full response text
func (g *OllamaGenerator) Generate(ctx context.Context, req Request) (string, error) {
	var result strings.Builder
	err := g.client.generate(ctx, g.request(req, false), func(s string) {
		result.WriteString(s)
	})
	if err != nil {
		return "", err
	}
	return result.String(), nil
}

// GenerateStream generates text with streaming support
func (g *OllamaGenerator) GenerateStream(ctx context.Context, req Request, onChunk func(string)) error {
	return g.client.generate(ctx, g.request(req, true), onChunk)
}

func (g *OllamaGenerator) request(req Request, stream bool) *generateRequest {
	opts := map[string]any{}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	return &generateRequest{
		Model:   g.model,
		Prompt:  req.Prompt,
		System:  req.System,
		Stream:  stream,
		Options: opts,
	}
}

// generate posts to /api/generate and feeds every response piece to onChunk.
// Non-streaming replies are a single JSON object, which decodes the same way.
func (c *OllamaClient) generate(ctx context.Context, req *generateRequest, onChunk func(string)) error {
	url := fmt.Sprintf("%s/api/generate", c.baseURL)

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	decoder := json.NewDecoder(resp.Body)
	for {
		var genResp generateResponse
		if err := decoder.Decode(&genResp); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("failed to decode response: %w", err)
		}
		if genResp.Error != "" {
			return &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: genResp.Error}
		}

		if genResp.Response != "" {
			onChunk(genResp.Response)
		}

		if genResp.Done {
			break
		}
	}

	return nil
}
