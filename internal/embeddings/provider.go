// Package embeddings provides embedding generation via multiple providers.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Purpose describes what the embedding will be used for. Providers may
// select task-specific models or prefixes; both built-in providers treat
// it as advisory.
type Purpose string

const (
	PurposeAdd    Purpose = "add"
	PurposeSearch Purpose = "search"
	PurposeUpdate Purpose = "update"
)

// Provider is the interface for embedding providers.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string, purpose Purpose) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one per input.
	EmbedBatch(ctx context.Context, texts []string, purpose Purpose) ([][]float32, error)

	// Dimension returns the embedding dimension for the current model.
	Dimension() int

	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates an embedding provider based on the configuration.
//
// The provider set is closed: "openai" (any OpenAI-compatible embeddings
// API) and "tei" (Hugging Face Text Embeddings Inference) are the only
// valid values.
func NewProvider(cfg config.EmbeddingsConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg)
	case "tei":
		return newTEIProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embeddings provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
