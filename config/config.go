package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingAPIKey is returned when a provider needs a token that is not set.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid config")
)

// Provider names shared by the embeddings and llm sections.
const (
	ProviderOllama      = "ollama"
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
)

// Config holds application configuration
type Config struct {
	VectorStore struct {
		URI        string `yaml:"uri"`
		Collection string `yaml:"collection"`
	} `yaml:"vector_store"`
	Embeddings struct {
		Provider          string  `yaml:"provider"`
		Model             string  `yaml:"model"`
		BaseURL           string  `yaml:"base_url"`
		APIKeyEnv         string  `yaml:"api_key_env"`
		BatchSize         int     `yaml:"batch_size"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Cache             struct {
			URI        string `yaml:"uri"`
			Size       int    `yaml:"size"`
			TTLMinutes int    `yaml:"ttl_minutes"`
		} `yaml:"cache"`
	} `yaml:"embeddings"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		APIKeyEnv   string  `yaml:"api_key_env"`
		TimeoutSecs int     `yaml:"timeout_secs"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"llm"`
	Processing struct {
		ChunkSize        int `yaml:"chunk_size"`
		ChunkOverlap     int `yaml:"chunk_overlap"`
		TopK             int `yaml:"top_k"`
		Workers          int `yaml:"workers"`
		MaxContextTokens int `yaml:"max_context_tokens"`
	} `yaml:"processing"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	path string
}

// DefaultPath returns ~/.ragbook/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".ragbook", "config.yaml")
}

// Load loads configuration from the default location or returns defaults
func Load() (*Config, error) {
	return LoadFrom(DefaultPath())
}

// LoadFrom loads configuration from path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()
	cfg.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	return cfg, nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save saves configuration to file
func (c *Config) Save() error {
	path := c.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// SaveTo saves configuration to path and remembers it
func (c *Config) SaveTo(path string) error {
	c.path = path
	return c.Save()
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.VectorStore.URI = "sqlite://" + filepath.Join(os.TempDir(), "ragbook.db")
	cfg.VectorStore.Collection = "ragbook"
	cfg.Embeddings.Provider = ProviderOllama
	cfg.Embeddings.Model = "nomic-embed-text"
	cfg.Embeddings.BaseURL = "http://localhost:11434"
	cfg.Embeddings.BatchSize = 16
	cfg.Embeddings.Cache.URI = "memory://"
	cfg.Embeddings.Cache.Size = 4096
	cfg.Embeddings.Cache.TTLMinutes = 24 * 60
	cfg.LLM.Provider = ProviderHuggingFace
	cfg.LLM.Model = "mistralai/Mistral-7B-Instruct-v0.3"
	cfg.LLM.TimeoutSecs = 60
	cfg.LLM.MaxTokens = 512
	cfg.LLM.Temperature = 0.5
	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 100
	cfg.Processing.TopK = 4
	cfg.Processing.Workers = 4
	cfg.Processing.MaxContextTokens = 2000
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills provider specific fields left empty in the file.
func (c *Config) applyDefaults() {
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "ragbook"
	}
	if c.Processing.Workers <= 0 {
		c.Processing.Workers = 1
	}
	if c.Embeddings.BatchSize <= 0 {
		c.Embeddings.BatchSize = 16
	}
	if c.LLM.TimeoutSecs <= 0 {
		c.LLM.TimeoutSecs = 60
	}

	switch c.Embeddings.Provider {
	case ProviderOllama:
		if c.Embeddings.BaseURL == "" {
			c.Embeddings.BaseURL = "http://localhost:11434"
		}
	case ProviderOpenAI:
		if c.Embeddings.APIKeyEnv == "" {
			c.Embeddings.APIKeyEnv = "OPENAI_API_KEY"
		}
		if c.Embeddings.Model == "" {
			c.Embeddings.Model = "text-embedding-3-small"
		}
	case ProviderHuggingFace:
		if c.Embeddings.APIKeyEnv == "" {
			c.Embeddings.APIKeyEnv = "HF_TOKEN"
		}
		if c.Embeddings.BaseURL == "" {
			c.Embeddings.BaseURL = "https://router.huggingface.co/hf-inference"
		}
		if c.Embeddings.Model == "" {
			c.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
	}

	switch c.LLM.Provider {
	case ProviderOllama:
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = "http://localhost:11434"
		}
	case ProviderOpenAI:
		if c.LLM.APIKeyEnv == "" {
			c.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
		if c.LLM.Model == "" {
			c.LLM.Model = "gpt-4.1-mini"
		}
	case ProviderHuggingFace:
		if c.LLM.APIKeyEnv == "" {
			c.LLM.APIKeyEnv = "HF_TOKEN"
		}
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = "https://router.huggingface.co/v1"
		}
	}
}

// Validate checks values that would otherwise fail deep inside a pipeline.
func (c *Config) Validate() error {
	var errs []error

	if !knownProvider(c.Embeddings.Provider) {
		errs = append(errs, fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider))
	}
	if !knownProvider(c.LLM.Provider) {
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.VectorStore.URI == "" {
		errs = append(errs, errors.New("vector_store.uri is empty"))
	}
	if c.Processing.ChunkSize <= 0 {
		errs = append(errs, errors.New("processing.chunk_size must be positive"))
	}
	if c.Processing.ChunkOverlap < 0 || c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		errs = append(errs, errors.New("processing.chunk_overlap must be in [0, chunk_size)"))
	}
	if c.Processing.TopK <= 0 {
		errs = append(errs, errors.New("processing.top_k must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func knownProvider(p string) bool {
	switch p {
	case ProviderOllama, ProviderOpenAI, ProviderHuggingFace:
		return true
	}
	return false
}

// APIKey reads a token from the environment variable envName.
func APIKey(envName string) (string, error) {
	if envName == "" {
		return "", fmt.Errorf("%w: no environment variable configured", ErrMissingAPIKey)
	}
	key := strings.TrimSpace(os.Getenv(envName))
	if key == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, envName)
	}
	return key, nil
}
