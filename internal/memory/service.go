// Package memory orchestrates the write and read paths of the memory layer:
// extraction, reconciliation, direct record access, and the optional graph
// collaborator.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embeddings"
	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/llm"
	"github.com/fyrsmithlabs/recalld/internal/reconcile"
	"github.com/fyrsmithlabs/recalld/internal/vectorstore"
)

var tracer = otel.Tracer("recalld.memory")

// inferSubtypes are the passes run when no explicit subtype is requested.
var inferSubtypes = []extraction.Subtype{extraction.SubtypeProfile, extraction.SubtypeFacts}

// AddOptions tunes the write path.
type AddOptions struct {
	// Infer runs extraction and reconciliation. When false, turns are
	// stored verbatim as facts records.
	Infer bool

	// Subtype restricts inference to one pass. Empty means the default
	// profile and facts passes. SubtypeSummary summarizes the transcript
	// instead of extracting.
	Subtype extraction.Subtype

	// Metadata is stamped onto every record created by this call.
	Metadata map[string]interface{}
}

// SearchResult bundles ranked memories with graph relations.
type SearchResult struct {
	Items     []Item   `json:"results"`
	Relations []string `json:"relations,omitempty"`
}

// Service is the memory orchestrator.
type Service struct {
	store     vectorstore.Store
	embedder  embeddings.Provider
	extractor *extraction.Extractor
	engine    *reconcile.Engine
	graph     Graph
	logger    *zap.Logger
	locks     *partitionLocks
}

// NewService wires the orchestrator. A nil graph falls back to NoopGraph.
func NewService(store vectorstore.Store, embedder embeddings.Provider, extractor *extraction.Extractor, engine *reconcile.Engine, graph Graph, logger *zap.Logger) *Service {
	if graph == nil {
		graph = NoopGraph{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		embedder:  embedder,
		extractor: extractor,
		engine:    engine,
		graph:     graph,
		logger:    logger,
		locks:     newPartitionLocks(),
	}
}

// Add ingests conversation turns for the given scope. With inference it
// returns the reconciliation actions; without it, one ADD action per
// stored turn. Reconciliation decision failures degrade to empty results.
func (s *Service) Add(ctx context.Context, turns []extraction.Turn, ids ScopeIDs, opts AddOptions) ([]reconcile.Action, error) {
	ctx, span := tracer.Start(ctx, "memory.Add")
	defer span.End()
	span.SetAttributes(
		attribute.Bool("infer", opts.Infer),
		attribute.Int("turns", len(turns)),
	)

	metadata, _, err := BuildScope(ids)
	if err != nil {
		return nil, err
	}
	for k, v := range opts.Metadata {
		metadata[k] = v
	}

	if !opts.Infer {
		return s.addRaw(ctx, turns, metadata)
	}
	if opts.Subtype == extraction.SubtypeSummary {
		return s.addSummary(ctx, turns, metadata)
	}

	subtypes := inferSubtypes
	if opts.Subtype != "" {
		if !opts.Subtype.Valid() {
			return nil, fmt.Errorf("unknown memory type %q", opts.Subtype)
		}
		subtypes = []extraction.Subtype{opts.Subtype}
	}

	// Passes run concurrently and independently; a failing pass never
	// cancels its sibling.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		actions []reconcile.Action
		errs    []error
	)
	for _, subtype := range subtypes {
		wg.Add(1)
		go func(subtype extraction.Subtype) {
			defer wg.Done()
			passActions, err := s.runPass(ctx, turns, subtype, ids, metadata)
			mu.Lock()
			defer mu.Unlock()
			actions = append(actions, passActions...)
			if err != nil {
				errs = append(errs, err)
			}
		}(subtype)
	}
	wg.Wait()

	if err := s.graph.Add(ctx, extraction.BuildTranscript(turns), metadata); err != nil {
		s.logger.Warn("graph add failed", zap.Error(err))
	}

	span.SetAttributes(attribute.Int("actions", len(actions)))
	return actions, errors.Join(errs...)
}

// runPass extracts candidates for one subtype and reconciles them while
// holding the partition lock.
func (s *Service) runPass(ctx context.Context, turns []extraction.Turn, subtype extraction.Subtype, ids ScopeIDs, metadata map[string]interface{}) ([]reconcile.Action, error) {
	candidates := s.extractor.Extract(ctx, turns, subtype)
	if len(candidates) == 0 {
		return nil, nil
	}

	_, filters, err := BuildScope(ids)
	if err != nil {
		return nil, err
	}
	delete(filters, reconcile.KeyActorID)

	lock := s.locks.get(partitionKey(ids, string(subtype)))
	lock.Lock()
	defer lock.Unlock()

	return s.engine.Reconcile(ctx, candidates, subtype, metadata, filters)
}

// addRaw stores each non-system turn verbatim as a facts record.
func (s *Service) addRaw(ctx context.Context, turns []extraction.Turn, metadata map[string]interface{}) ([]reconcile.Action, error) {
	var actions []reconcile.Action
	for _, turn := range turns {
		if strings.EqualFold(turn.Role, string(llm.RoleSystem)) || turn.Content == "" {
			continue
		}

		vec, err := s.embedder.Embed(ctx, turn.Content, embeddings.PurposeAdd)
		if err != nil {
			return actions, err
		}

		recordMeta := make(map[string]interface{}, len(metadata)+2)
		for k, v := range metadata {
			recordMeta[k] = v
		}
		recordMeta[reconcile.KeyRole] = turn.Role
		if turn.Name != "" {
			recordMeta[reconcile.KeyActorID] = turn.Name
		}

		id, err := reconcile.CreateRecord(ctx, s.store, turn.Content, extraction.SubtypeFacts, vec, recordMeta)
		if err != nil {
			return actions, err
		}
		actions = append(actions, reconcile.Action{
			ID:     id,
			Memory: turn.Content,
			Event:  reconcile.EventAdd,
			Type:   extraction.SubtypeFacts,
		})
	}
	return actions, nil
}

// addSummary condenses the transcript into a single summary record with
// keywords metadata. Summaries bypass reconciliation.
func (s *Service) addSummary(ctx context.Context, turns []extraction.Turn, metadata map[string]interface{}) ([]reconcile.Action, error) {
	summary := s.extractor.Summarize(ctx, turns)
	if summary == nil {
		return []reconcile.Action{}, nil
	}

	vec, err := s.embedder.Embed(ctx, summary.Summary, embeddings.PurposeAdd)
	if err != nil {
		return nil, err
	}

	recordMeta := make(map[string]interface{}, len(metadata)+1)
	for k, v := range metadata {
		recordMeta[k] = v
	}
	if summary.Keywords != "" {
		recordMeta[reconcile.KeyKeywords] = summary.Keywords
	}

	id, err := reconcile.CreateRecord(ctx, s.store, summary.Summary, extraction.SubtypeSummary, vec, recordMeta)
	if err != nil {
		return nil, err
	}
	return []reconcile.Action{{
		ID:     id,
		Memory: summary.Summary,
		Event:  reconcile.EventAdd,
		Type:   extraction.SubtypeSummary,
	}}, nil
}

// Search ranks stored memories against the query within the scope. Extra
// filters narrow results further (e.g. type). Graph relations are fetched
// alongside when a graph is configured.
func (s *Service) Search(ctx context.Context, query string, ids ScopeIDs, limit int, extraFilters map[string]interface{}) (*SearchResult, error) {
	ctx, span := tracer.Start(ctx, "memory.Search")
	defer span.End()

	_, filters, err := BuildScope(ids)
	if err != nil {
		return nil, err
	}
	for k, v := range extraFilters {
		filters[k] = v
	}

	// Graph lookup overlaps the embed+search round trips; its failure only
	// drops relations from the response.
	var (
		relations []string
		graphErr  error
		wg        sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		relations, graphErr = s.graph.Search(ctx, query, filters, limit)
	}()

	vec, err := s.embedder.Embed(ctx, query, embeddings.PurposeSearch)
	if err != nil {
		wg.Wait()
		return nil, err
	}

	hits, err := s.store.Search(ctx, vec, limit, filters, 0)
	if err != nil {
		wg.Wait()
		return nil, err
	}

	result := &SearchResult{Items: make([]Item, 0, len(hits))}
	for _, hit := range hits {
		result.Items = append(result.Items, itemFromPoint(hit.Point, hit.Score))
	}

	wg.Wait()
	if graphErr != nil {
		s.logger.Warn("graph search failed", zap.Error(graphErr))
	} else {
		result.Relations = relations
	}

	span.SetAttributes(attribute.Int("results", len(result.Items)))
	return result, nil
}

// Get returns one memory by id.
func (s *Service) Get(ctx context.Context, id string) (*Item, error) {
	point, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	item := itemFromPoint(*point, 0)
	return &item, nil
}

// GetAll lists memories in the scope without similarity ranking.
func (s *Service) GetAll(ctx context.Context, ids ScopeIDs, limit int, extraFilters map[string]interface{}) (*SearchResult, error) {
	_, filters, err := BuildScope(ids)
	if err != nil {
		return nil, err
	}
	for k, v := range extraFilters {
		filters[k] = v
	}

	points, err := s.store.List(ctx, filters, limit)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Items: make([]Item, 0, len(points))}
	for _, p := range points {
		result.Items = append(result.Items, itemFromPoint(p, 0))
	}

	relations, err := s.graph.GetAll(ctx, filters, limit)
	if err != nil {
		s.logger.Warn("graph list failed", zap.Error(err))
	} else {
		result.Relations = relations
	}

	return result, nil
}

// Update replaces the text of an existing memory, re-embedding it and
// refreshing hash and updated_at while preserving identity and scope.
func (s *Service) Update(ctx context.Context, id, data string) (*Item, error) {
	vec, err := s.embedder.Embed(ctx, data, embeddings.PurposeUpdate)
	if err != nil {
		return nil, err
	}
	if _, err := reconcile.UpdateRecord(ctx, s.store, id, data, vec); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes one memory by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	_, err := reconcile.DeleteRecord(ctx, s.store, id)
	return err
}

// DeleteAll removes every memory in the scope and returns how many went.
func (s *Service) DeleteAll(ctx context.Context, ids ScopeIDs) (int, error) {
	_, filters, err := BuildScope(ids)
	if err != nil {
		return 0, err
	}

	points, err := s.store.List(ctx, filters, 0)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var errs []error
	for _, p := range points {
		if err := s.store.Delete(ctx, p.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	if err := s.graph.DeleteAll(ctx, filters); err != nil {
		s.logger.Warn("graph delete failed", zap.Error(err))
	}

	return deleted, errors.Join(errs...)
}

// Reset drops every memory across all scopes.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx)
}

// Info reports collection metadata for health checks.
func (s *Service) Info(ctx context.Context) (*vectorstore.CollectionInfo, error) {
	return s.store.Info(ctx)
}
