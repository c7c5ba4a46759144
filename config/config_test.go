package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ProviderOllama, cfg.Embeddings.Provider)
	assert.Equal(t, ProviderHuggingFace, cfg.LLM.Provider)
	assert.Equal(t, "HF_TOKEN", cfg.LLM.APIKeyEnv)
	assert.Equal(t, 1000, cfg.Processing.ChunkSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromAppliesProviderDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
vector_store:
  uri: memory://
embeddings:
  provider: openai
llm:
  provider: ollama
  model: llama3.2
processing:
  chunk_size: 200
  chunk_overlap: 20
  top_k: 3
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "OPENAI_API_KEY", cfg.Embeddings.APIKeyEnv)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, "http://localhost:11434", cfg.LLM.BaseURL)
	assert.Equal(t, "ragbook", cfg.VectorStore.Collection)
	assert.Equal(t, path, cfg.Path())
	assert.NoError(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	cfg.LLM.Model = "HuggingFaceH4/zephyr-7b-beta"
	require.NoError(t, cfg.Save())

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "HuggingFaceH4/zephyr-7b-beta", loaded.LLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown embeddings provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"unknown llm provider", func(c *Config) { c.LLM.Provider = "" }},
		{"empty uri", func(c *Config) { c.VectorStore.URI = "" }},
		{"zero chunk size", func(c *Config) { c.Processing.ChunkSize = 0 }},
		{"overlap too large", func(c *Config) { c.Processing.ChunkOverlap = c.Processing.ChunkSize }},
		{"zero top k", func(c *Config) { c.Processing.TopK = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("RAGBOOK_TEST_TOKEN", " secret ")

	key, err := APIKey("RAGBOOK_TEST_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, "secret", key)

	_, err = APIKey("RAGBOOK_TEST_TOKEN_UNSET")
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = APIKey("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
