package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// ErrNoModels is returned when Ollama has no models installed.
var ErrNoModels = errors.New("no models available")

// ModelInfo represents information about an Ollama model
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type listModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// preferredModels are tried in order by SelectBestModel.
var preferredModels = []string{
	"llama3.2",
	"llama3.1",
	"qwen2.5",
	"mistral",
	"llama3",
	"llama2",
}

// ModelSelector handles model selection logic
type ModelSelector struct {
	client *OllamaClient
}

// NewModelSelector creates a new model selector
func NewModelSelector(client *OllamaClient) *ModelSelector {
	return &ModelSelector{client: client}
}

// ListModels lists all available Ollama models
func (ms *ModelSelector) ListModels(ctx context.Context) ([]ModelInfo, error) {
	url := fmt.Sprintf("%s/api/tags", ms.client.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := ms.client.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// SelectBestModel picks the first preferred family that is installed, or
// the largest model otherwise.
func (ms *ModelSelector) SelectBestModel(ctx context.Context) (string, error) {
	models, err := ms.ListModels(ctx)
	if err != nil {
		return "", err
	}
	return selectBest(models)
}

func selectBest(models []ModelInfo) (string, error) {
	if len(models) == 0 {
		return "", ErrNoModels
	}

	for _, preferred := range preferredModels {
		for _, model := range models {
			if strings.Contains(strings.ToLower(model.Name), preferred) {
				return model.Name, nil
			}
		}
	}

	sorted := append([]ModelInfo(nil), models...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size > sorted[j].Size
	})
	return sorted[0].Name, nil
}

// GetDefaultModel returns defaultModel if it is installed, else the best one
func (ms *ModelSelector) GetDefaultModel(ctx context.Context, defaultModel string) (string, error) {
	models, err := ms.ListModels(ctx)
	if err != nil {
		return "", err
	}
	return DefaultModel(models, defaultModel)
}

// DefaultModel is GetDefaultModel over an already listed set of models.
func DefaultModel(models []ModelInfo, defaultModel string) (string, error) {
	if defaultModel != "" {
		for _, model := range models {
			if model.Name == defaultModel || strings.TrimSuffix(model.Name, ":latest") == defaultModel {
				return model.Name, nil
			}
		}
	}
	return selectBest(models)
}
