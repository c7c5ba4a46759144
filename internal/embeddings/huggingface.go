package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dream-ai/ragbook/config"
)

// HuggingFaceEmbedder calls the hosted feature-extraction pipeline used by
// sentence-transformers models.
type HuggingFaceEmbedder struct {
	baseURL    string
	token      string
	model      string
	batchSize  int
	httpClient *http.Client
}

// NewHuggingFaceEmbedder creates an embedder reading its token from apiKeyEnv
func NewHuggingFaceEmbedder(baseURL, apiKeyEnv, model string, batchSize int) (*HuggingFaceEmbedder, error) {
	token, err := config.APIKey(apiKeyEnv)
	if err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/hf-inference"
	}
	if model == "" {
		model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if batchSize <= 0 {
		batchSize = 16
	}
	return &HuggingFaceEmbedder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		model:      model,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Model returns the embedding model name
func (e *HuggingFaceEmbedder) Model() string {
	return e.model
}

// Embed generates an embedding for the given text
func (e *HuggingFaceEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends texts in groups of batchSize and returns vectors in input order
func (e *HuggingFaceEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *HuggingFaceEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, ErrEmptyText
		}
		inputs = append(inputs, t)
	}

	payload := map[string]any{
		"inputs":  inputs,
		"options": map[string]any{"wait_for_model": true},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s/pipeline/feature-extraction", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Provider: "huggingface", StatusCode: resp.StatusCode, Body: string(body)}
	}

	vecs, err := decodeFeatures(body)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(inputs) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(vecs))
	}
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, ErrEmptyEmbedding
		}
	}
	return vecs, nil
}

// decodeFeatures accepts pooled output ([input][dim]) or token-level output
// ([input][token][dim]), which is mean-pooled.
func decodeFeatures(body []byte) ([][]float32, error) {
	var pooled [][]float32
	if err := json.Unmarshal(body, &pooled); err == nil {
		return pooled, nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([][]float32, len(tokens))
	for i, toks := range tokens {
		if len(toks) == 0 {
			continue
		}
		mean := make([]float32, len(toks[0]))
		for _, tok := range toks {
			for j := range mean {
				if j < len(tok) {
					mean[j] += tok[j]
				}
			}
		}
		for j := range mean {
			mean[j] /= float32(len(toks))
		}
		out[i] = mean
	}
	return out, nil
}
