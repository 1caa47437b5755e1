// Package reconcile merges freshly extracted candidate memories into the
// vector store.
//
// Each pass works on one (scope, type) partition: candidates are embedded
// and searched against existing records, the nearest records are handed to
// an LLM with short positional ids, and the returned ADD/UPDATE/DELETE/NONE
// decisions are applied in order. A failed or malformed LLM response leaves
// the partition untouched and yields an empty action list, not an error.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/config"
	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

var tracer = otel.Tracer("recalld.reconcile")

// Event is the operation the reconciler decided for one memory.
type Event string

const (
	EventAdd    Event = "ADD"
	EventUpdate Event = "UPDATE"
	EventDelete Event = "DELETE"
	EventNone   Event = "NONE"
)

// Action is one applied reconciliation decision.
type Action struct {
	// ID is the canonical record id the action touched.
	ID string `json:"id"`

	// Memory is the record text after the action.
	Memory string `json:"memory"`

	// Event is what happened: ADD, UPDATE, or DELETE.
	Event Event `json:"event"`

	// Type is the memory subtype of the partition.
	Type extraction.Subtype `json:"type"`

	// PreviousMemory holds the replaced or removed text for UPDATE and
	// DELETE actions.
	PreviousMemory string `json:"previous_memory,omitempty"`
}

// Engine reconciles candidate memories against stored ones.
type Engine struct {
	store       vectorstore.Store
	embedder    embeddings.Provider
	llm         llm.Provider
	logger      *zap.Logger
	threshold   float32
	searchLimit int
}

// NewEngine creates a reconciliation engine.
func NewEngine(store vectorstore.Store, embedder embeddings.Provider, provider llm.Provider, cfg config.MemoryConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:       store,
		embedder:    embedder,
		llm:         provider,
		logger:      logger,
		threshold:   cfg.SimilarityThreshold,
		searchLimit: cfg.SearchLimit,
	}
}

type decisionEntry struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Event     string `json:"event"`
	OldMemory string `json:"old_memory"`
}

type decisionResponse struct {
	Memory []decisionEntry `json:"memory"`
}

// Reconcile merges candidates into the partition described by filters.
// Metadata supplies the scope and provenance fields stamped onto new
// records. The returned error aggregates per-action failures; decision
// failures (LLM or parse) degrade to an empty action list with nil error.
func (e *Engine) Reconcile(ctx context.Context, candidates []string, subtype extraction.Subtype, metadata, filters map[string]interface{}) ([]Action, error) {
	ctx, span := tracer.Start(ctx, "reconcile.Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("subtype", string(subtype)),
		attribute.Int("candidates", len(candidates)),
	)

	if len(candidates) == 0 {
		return nil, nil
	}

	vectors := make(map[string][]float32, len(candidates))

	// The search is confined to the (scope, type) partition. Without the
	// type filter, vector-near records of another subtype would consume
	// the result slots and hide the matches that matter here.
	searchFilters := make(map[string]interface{}, len(filters)+1)
	for k, v := range filters {
		searchFilters[k] = v
	}
	searchFilters[KeyType] = string(subtype)

	// Gather the existing records nearest to any candidate, deduplicated
	// by id with the first occurrence winning.
	var existing []vectorstore.Point
	seen := make(map[string]bool)
	for _, text := range candidates {
		vec, err := e.embedder.Embed(ctx, text, embeddings.PurposeAdd)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		vectors[text] = vec

		hits, err := e.store.Search(ctx, vec, e.searchLimit, searchFilters, e.threshold)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, hit := range hits {
			if t, _ := hit.Payload[KeyType].(string); t != string(subtype) {
				continue
			}
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true
			existing = append(existing, hit.Point)
		}
	}

	// Existing records get short positional ids for the prompt; the LLM
	// never sees canonical ids, so a hallucinated id cannot resolve.
	old := make([]oldMemory, 0, len(existing))
	posToID := make(map[string]string, len(existing))
	for i, p := range existing {
		pos := strconv.Itoa(i)
		text, _ := p.Payload[KeyData].(string)
		old = append(old, oldMemory{ID: pos, Text: text})
		posToID[pos] = p.ID
	}

	prompt := buildDecisionPrompt(subtype, old, candidates)
	raw, err := e.llm.Generate(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, llm.FormatJSON)
	if err != nil {
		e.logger.Warn("reconciliation decision call failed",
			zap.String("subtype", string(subtype)),
			zap.Error(err))
		return []Action{}, nil
	}

	var decision decisionResponse
	if err := json.Unmarshal([]byte(extraction.StripCodeFence(raw)), &decision); err != nil {
		e.logger.Warn("reconciliation decision is not valid JSON",
			zap.String("subtype", string(subtype)),
			zap.Error(err))
		return []Action{}, nil
	}

	actions, errs := e.apply(ctx, decision.Memory, subtype, metadata, posToID, vectors)
	span.SetAttributes(attribute.Int("actions", len(actions)))
	return actions, errors.Join(errs...)
}

// apply executes decisions in returned order. A failing action never
// affects its siblings; failures are collected and reported together.
func (e *Engine) apply(ctx context.Context, entries []decisionEntry, subtype extraction.Subtype, metadata map[string]interface{}, posToID map[string]string, vectors map[string][]float32) ([]Action, []error) {
	actions := make([]Action, 0, len(entries))
	var errs []error

	embed := func(text string, purpose embeddings.Purpose) ([]float32, error) {
		if vec, ok := vectors[text]; ok {
			return vec, nil
		}
		return e.embedder.Embed(ctx, text, purpose)
	}

	for _, entry := range entries {
		switch Event(strings.ToUpper(entry.Event)) {
		case EventAdd:
			if entry.Text == "" {
				e.logger.Warn("skipping ADD without text")
				continue
			}
			vec, err := embed(entry.Text, embeddings.PurposeAdd)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			id, err := CreateRecord(ctx, e.store, entry.Text, subtype, vec, metadata)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			actions = append(actions, Action{ID: id, Memory: entry.Text, Event: EventAdd, Type: subtype})

		case EventUpdate:
			if entry.Text == "" {
				e.logger.Warn("skipping UPDATE without text", zap.String("id", entry.ID))
				continue
			}
			id, ok := posToID[entry.ID]
			if !ok {
				e.logger.Warn("decision references unknown memory id, skipping",
					zap.String("id", entry.ID),
					zap.String("event", string(EventUpdate)))
				continue
			}
			vec, err := embed(entry.Text, embeddings.PurposeUpdate)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			previous, err := UpdateRecord(ctx, e.store, id, entry.Text, vec)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			actions = append(actions, Action{ID: id, Memory: entry.Text, Event: EventUpdate, Type: subtype, PreviousMemory: previous})

		case EventDelete:
			id, ok := posToID[entry.ID]
			if !ok {
				e.logger.Warn("decision references unknown memory id, skipping",
					zap.String("id", entry.ID),
					zap.String("event", string(EventDelete)))
				continue
			}
			previous, err := DeleteRecord(ctx, e.store, id)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			actions = append(actions, Action{ID: id, Memory: previous, Event: EventDelete, Type: subtype, PreviousMemory: previous})

		case EventNone:
			e.logger.Debug("memory unchanged", zap.String("id", entry.ID))

		default:
			e.logger.Warn("unknown reconciliation event, skipping", zap.String("event", entry.Event))
		}
	}

	return actions, errs
}
