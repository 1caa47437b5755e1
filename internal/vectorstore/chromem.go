package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ChromemConfig holds configuration for the embedded chromem store.
type ChromemConfig struct {
	// Path is the on-disk database location. Empty means in-memory.
	Path string

	// Collection is the collection holding memory points.
	Collection string

	// VectorSize is the dimensionality of embeddings.
	VectorSize int
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Collection == "" {
		return fmt.Errorf("%w: collection name required", ErrInvalidConfig)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is an embedded Store implementation backed by chromem-go.
//
// chromem-go provides similarity search but no payload-filtered listing or
// id-addressed retrieval with vectors, so the store keeps an id-indexed
// mirror of every point alongside the chromem collection. The mirror covers
// points written during this process lifetime; the intended use is local
// development and tests, with Qdrant as the production backend.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig

	mu         sync.RWMutex
	collection *chromem.Collection
	points     map[string]Point
}

var _ Store = (*ChromemStore)(nil)

// NewChromemStore creates a new embedded store.
func NewChromemStore(config ChromemConfig) (*ChromemStore, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(config.Collection); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}

	var db *chromem.DB
	var err error
	if config.Path != "" {
		db, err = chromem.NewPersistentDB(config.Path, true)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem database: %v", ErrConnectionFailed, err)
		}
	} else {
		db = chromem.NewDB()
	}

	col, err := db.GetOrCreateCollection(config.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", config.Collection, err)
	}

	return &ChromemStore{
		db:         db,
		config:     config,
		collection: col,
		points:     make(map[string]Point),
	}, nil
}

// Close releases resources. The in-memory database needs no teardown.
func (s *ChromemStore) Close() error {
	return nil
}

// Insert stores new points.
func (s *ChromemStore) Insert(ctx context.Context, points []Point) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.Insert")
	defer span.End()

	span.SetAttributes(attribute.Int("point_count", len(points)))

	if len(points) == 0 {
		return ErrEmptyPoints
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if err := s.addLocked(ctx, p); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// addLocked writes one point to chromem and the mirror. Caller holds mu.
func (s *ChromemStore) addLocked(ctx context.Context, p Point) error {
	doc := chromem.Document{
		ID:        p.ID,
		Content:   dataField(p.Payload),
		Embedding: p.Vector,
		Metadata:  stringMetadata(p.Payload),
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("adding document %s: %w", p.ID, err)
	}
	s.points[p.ID] = clonePoint(p)
	return nil
}

// Search returns the most similar points above threshold.
func (s *ChromemStore) Search(ctx context.Context, vector []float32, limit int, filters map[string]interface{}, threshold float32) ([]ScoredPoint, error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem rejects nResults greater than the collection size
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, limit, whereFilter(filters), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	hits := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		p, ok := s.points[r.ID]
		if !ok {
			continue
		}
		if !matchesFilters(p.Payload, filters) {
			continue
		}
		hits = append(hits, ScoredPoint{Point: clonePoint(p), Score: r.Similarity})
	}

	span.SetAttributes(attribute.Int("results_count", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// Get retrieves a point by ID.
func (s *ChromemStore) Get(ctx context.Context, id string) (*Point, error) {
	_, span := tracer.Start(ctx, "ChromemStore.Get")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.points[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := clonePoint(p)
	return &out, nil
}

// Update replaces the vector and payload of an existing point.
func (s *ChromemStore) Update(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.Update")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.points[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	// chromem has no in-place update; delete then re-add
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("replacing document %s: %w", id, err)
	}
	if err := s.addLocked(ctx, Point{ID: id, Vector: vector, Payload: payload}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Delete removes a point by ID.
func (s *ChromemStore) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.Delete")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.points[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	delete(s.points, id)

	span.SetStatus(codes.Ok, "success")
	return nil
}

// List returns points matching the filters without similarity ranking.
func (s *ChromemStore) List(ctx context.Context, filters map[string]interface{}, limit int) ([]Point, error) {
	_, span := tracer.Start(ctx, "ChromemStore.List")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	points := make([]Point, 0)
	for _, p := range s.points {
		if !matchesFilters(p.Payload, filters) {
			continue
		}
		points = append(points, clonePoint(p))
		if limit > 0 && len(points) >= limit {
			break
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(points)))
	return points, nil
}

// Info returns metadata about the backing collection.
func (s *ChromemStore) Info(ctx context.Context) (*CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &CollectionInfo{
		Name:       s.config.Collection,
		PointCount: s.collection.Count(),
		VectorSize: s.config.VectorSize,
	}, nil
}

// Reset drops and recreates the backing collection.
func (s *ChromemStore) Reset(ctx context.Context) error {
	_, span := tracer.Start(ctx, "ChromemStore.Reset")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.config.Collection, err)
	}
	col, err := s.db.GetOrCreateCollection(s.config.Collection, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("recreating collection %s: %w", s.config.Collection, err)
	}
	s.collection = col
	s.points = make(map[string]Point)

	span.SetStatus(codes.Ok, "success")
	return nil
}

// dataField extracts the data payload field for chromem document content.
func dataField(payload map[string]interface{}) string {
	if v, ok := payload["data"].(string); ok {
		return v
	}
	return ""
}

// stringMetadata extracts the string-valued payload fields chromem can filter on.
func stringMetadata(payload map[string]interface{}) map[string]string {
	meta := make(map[string]string)
	for k, v := range payload {
		if s, ok := v.(string); ok {
			meta[k] = s
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// whereFilter converts the string-valued filters to a chromem where clause.
func whereFilter(filters map[string]interface{}) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	where := make(map[string]string)
	for k, v := range filters {
		if s, ok := v.(string); ok {
			where[k] = s
		}
	}
	if len(where) == 0 {
		return nil
	}
	return where
}

// matchesFilters checks payload equality for every filter condition,
// covering non-string values chromem cannot filter on.
func matchesFilters(payload map[string]interface{}, filters map[string]interface{}) bool {
	for k, want := range filters {
		got, ok := payload[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// clonePoint deep-copies a point so callers cannot mutate the mirror.
func clonePoint(p Point) Point {
	out := Point{ID: p.ID}
	if p.Vector != nil {
		out.Vector = make([]float32, len(p.Vector))
		copy(out.Vector, p.Vector)
	}
	if p.Payload != nil {
		out.Payload = make(map[string]interface{}, len(p.Payload))
		for k, v := range p.Payload {
			out.Payload[k] = v
		}
	}
	return out
}
