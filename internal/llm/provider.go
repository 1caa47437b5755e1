// Package llm provides chat-completion clients for memory extraction and
// reconciliation decisions.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyMessages indicates an empty message list.
	ErrEmptyMessages = errors.New("empty message list")

	// ErrGenerationFailed indicates a completion request failure.
	ErrGenerationFailed = errors.New("generation failed")
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Format selects the expected response format.
type Format string

const (
	// FormatText requests free-form text output.
	FormatText Format = "text"

	// FormatJSON requests a single JSON object. Providers that support
	// structured output enforce it server-side; others instruct the model.
	FormatJSON Format = "json"
)

// Provider is the interface for chat-completion providers.
type Provider interface {
	// Generate produces a completion for the given messages.
	Generate(ctx context.Context, messages []Message, format Format) (string, error)

	// Close releases resources held by the provider.
	Close() error
}

// NewProvider creates a chat-completion provider based on the configuration.
//
// The provider set is closed: "openai" (any OpenAI-compatible chat API) and
// "anthropic" are the only valid values.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return newOpenAIProvider(cfg)
	case "anthropic":
		return newAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// retryableError marks errors worth retrying (429, 5xx, transport failures).
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// isRetryableError reports whether the request should be retried.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
