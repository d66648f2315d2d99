package ai

import (
	"github.com/pkg/errors"

	"github.com/mindvault/mindvault/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Enabled   bool
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}

// LLMConfig represents tag-suggestion LLM configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 512
	Temperature float32 // default: 0.2
	Timeout     int     // request timeout in seconds
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}
	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.EmbeddingProvider,
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    p.EmbeddingBaseURL,
		Dimensions: p.EmbeddingDimensions,
	}

	cfg.LLM = LLMConfig{
		Provider: p.LLMProvider,
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		// Tag suggestion wants short, stable output.
		MaxTokens:   512,
		Temperature: 0.2,
		Timeout:     p.LLMTimeout,
	}
	if cfg.LLM.APIKey == "" {
		// Fall back to the embedding credentials when the deployment uses a
		// single OpenAI-compatible endpoint for both.
		cfg.LLM.APIKey = p.EmbeddingAPIKey
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = p.EmbeddingBaseURL
		}
	}

	return cfg
}

// Validate validates the AI configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.APIKey == "" {
		return errors.New("embedding api key is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return errors.New("embedding dimensions must be positive")
	}
	return nil
}
