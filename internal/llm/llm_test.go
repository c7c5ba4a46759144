package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dream-ai/ragbook/config"
)

func ollamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(map[string]any{"models": []map[string]any{
				{"name": "phi3:latest", "size": 100},
				{"name": "mistral:7b", "size": 50},
			}})
		case "/api/generate":
			var req generateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "be brief", req.System)
			if !req.Stream {
				_ = json.NewEncoder(w).Encode(generateResponse{Response: "whole answer", Done: true})
				return
			}
			for _, part := range []string{"hel", "lo", ""} {
				_ = json.NewEncoder(w).Encode(generateResponse{Response: part, Done: part == ""})
			}
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestOllamaGenerator(t *testing.T) {
	srv := ollamaServer(t)
	defer srv.Close()

	gen := NewOllamaGenerator(NewOllamaClient(srv.URL, time.Second), "mistral:7b")
	req := Request{Prompt: "hi", System: "be brief", MaxTokens: 10}

	text, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "whole answer", text)

	var parts []string
	require.NoError(t, gen.GenerateStream(context.Background(), req, func(s string) {
		parts = append(parts, s)
	}))
	assert.Equal(t, []string{"hel", "lo"}, parts)
}

func TestOllamaAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaGenerator(NewOllamaClient(srv.URL, time.Second), "x").Generate(context.Background(), Request{Prompt: "hi"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestModelSelector(t *testing.T) {
	srv := ollamaServer(t)
	defer srv.Close()
	ms := NewModelSelector(NewOllamaClient(srv.URL, time.Second))

	best, err := ms.SelectBestModel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", best)

	model, err := ms.GetDefaultModel(context.Background(), "phi3")
	require.NoError(t, err)
	assert.Equal(t, "phi3:latest", model)

	model, err = ms.GetDefaultModel(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", model)
}

func TestSelectBestFallsBackToLargest(t *testing.T) {
	name, err := selectBest([]ModelInfo{{Name: "a", Size: 1}, {Name: "b", Size: 3}, {Name: "c", Size: 2}})
	require.NoError(t, err)
	assert.Equal(t, "b", name)

	_, err = selectBest(nil)
	assert.ErrorIs(t, err, ErrNoModels)
}

func chatServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer hf_test" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"invalid token","type":"auth"}}`)
			return
		}

		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistralai/Mistral-7B-Instruct-v0.3", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		if !req.Stream {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "1", "object": "chat.completion", "model": req.Model,
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "Paris"},
					"finish_reason": "stop",
				}},
			})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Pa", "ris"} {
			chunk, _ := json.Marshal(map[string]any{
				"id": "1", "object": "chat.completion.chunk", "model": req.Model,
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": part}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestOpenAIGenerator(t *testing.T) {
	t.Setenv("RAGBOOK_TEST_HF", "hf_test")
	srv := chatServer(t)
	defer srv.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{
		Provider:  config.ProviderHuggingFace,
		BaseURL:   srv.URL,
		APIKeyEnv: "RAGBOOK_TEST_HF",
		Model:     "mistralai/Mistral-7B-Instruct-v0.3",
	})
	require.NoError(t, err)

	req := Request{Prompt: "Capital of France?", System: "answer briefly", MaxTokens: 16}
	text, err := gen.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Paris", text)

	var sb strings.Builder
	require.NoError(t, gen.GenerateStream(context.Background(), req, func(s string) { sb.WriteString(s) }))
	assert.Equal(t, "Paris", sb.String())
}

func TestOpenAIGeneratorAPIError(t *testing.T) {
	t.Setenv("RAGBOOK_TEST_HF", "wrong")
	srv := chatServer(t)
	defer srv.Close()

	gen, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: srv.URL, APIKeyEnv: "RAGBOOK_TEST_HF", Model: "mistralai/Mistral-7B-Instruct-v0.3"})
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), Request{Prompt: "hi", System: "s"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestNewRequiresToken(t *testing.T) {
	cfg := config.Default()
	cfg.LLM.APIKeyEnv = "RAGBOOK_TEST_UNSET_TOKEN"

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestNewOllamaPicksModel(t *testing.T) {
	srv := ollamaServer(t)
	defer srv.Close()

	cfg := config.Default()
	cfg.LLM.Provider = config.ProviderOllama
	cfg.LLM.BaseURL = srv.URL
	cfg.LLM.Model = ""

	gen, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", gen.Model())
}
