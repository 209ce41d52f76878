// Package embedder provides the embedding services: Ollama, OpenAI and a
// local FastEmbed model.
package embedder

import (
	"context"
	"errors"
	"fmt"

	"codesig/internal/config"
)

var (
	// ErrConfig reports an unusable embedding configuration.
	ErrConfig = errors.New("embedder: invalid configuration")
	// ErrService reports a failed or malformed service response.
	ErrService = errors.New("embedder: service error")
)

// Embedder turns one chunk of text into a vector.
type Embedder interface {
	EmbedChunk(ctx context.Context, text string) ([]float32, error)
	Model() string
	Close() error
}

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEmbedder(cfg.OllamaURL, cfg.Model, cfg.Timeout), nil
	case "openai":
		if !cfg.APIKey.IsSet() {
			return nil, fmt.Errorf("%w: openai provider needs embedding.api_key or OPENAI_API_KEY", ErrConfig)
		}
		return NewOpenAIEmbedder(cfg.APIKey.Value(), cfg.BaseURL, cfg.Model), nil
	case "fastembed":
		return NewFastEmbedder(cfg.Model, cfg.CacheDir)
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrConfig, cfg.Provider)
}
