package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/llm"
)

var tracer = otel.Tracer("recalld.extraction")

// Extractor runs LLM extraction passes over conversation turns.
//
// Extraction is best-effort: provider failures and malformed responses
// degrade to an empty candidate list rather than an error, so a flaky
// model never blocks the write path.
type Extractor struct {
	provider     llm.Provider
	logger       *zap.Logger
	customPrompt string
}

// NewExtractor creates an Extractor backed by the given provider.
func NewExtractor(provider llm.Provider, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{provider: provider, logger: logger}
}

// WithCustomPrompt replaces the built-in extraction prompts with a
// caller-supplied instruction. Summary generation is unaffected.
func (e *Extractor) WithCustomPrompt(prompt string) *Extractor {
	e.customPrompt = prompt
	return e
}

type memoriesResponse struct {
	Memories []string `json:"memories"`
}

// Extract returns candidate memory strings of the given subtype found in
// the turns. It never fails: errors are logged and yield nil.
func (e *Extractor) Extract(ctx context.Context, turns []Turn, subtype Subtype) []string {
	ctx, span := tracer.Start(ctx, "extraction.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("subtype", string(subtype)),
		attribute.Int("turns", len(turns)),
	)

	prompt := promptFor(subtype)
	if prompt == "" || len(turns) == 0 {
		return nil
	}
	if e.customPrompt != "" {
		prompt = e.customPrompt
	}

	transcript := BuildTranscript(turns)
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: prompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Current date: %s\n\n%s", time.Now().UTC().Format("2006-01-02"), transcript)},
	}

	raw, err := e.provider.Generate(ctx, messages, llm.FormatJSON)
	if err != nil {
		e.logger.Warn("extraction call failed",
			zap.String("subtype", string(subtype)),
			zap.Error(err))
		return nil
	}

	var parsed memoriesResponse
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &parsed); err != nil {
		e.logger.Warn("extraction returned malformed JSON",
			zap.String("subtype", string(subtype)),
			zap.Error(err))
		return nil
	}

	candidates := make([]string, 0, len(parsed.Memories))
	for _, m := range parsed.Memories {
		if m != "" {
			candidates = append(candidates, normalizeRoles(m))
		}
	}

	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	return candidates
}

// Summary is a condensed session record produced by Summarize.
type Summary struct {
	Keywords string `json:"keywords"`
	Summary  string `json:"summary"`
}

// Summarize condenses the turns into keywords and a short summary.
// Like Extract it degrades to nil on provider or parse failure.
func (e *Extractor) Summarize(ctx context.Context, turns []Turn) *Summary {
	ctx, span := tracer.Start(ctx, "extraction.Summarize")
	defer span.End()

	if len(turns) == 0 {
		return nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: summaryPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Current date: %s\n\n%s", time.Now().UTC().Format("2006-01-02"), BuildTranscript(turns))},
	}

	raw, err := e.provider.Generate(ctx, messages, llm.FormatJSON)
	if err != nil {
		e.logger.Warn("summary call failed", zap.Error(err))
		return nil
	}

	var parsed Summary
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &parsed); err != nil {
		e.logger.Warn("summary returned malformed JSON", zap.Error(err))
		return nil
	}
	if parsed.Summary == "" {
		return nil
	}
	return &parsed
}
