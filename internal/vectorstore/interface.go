// Package vectorstore defines the interface for memory point storage.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrNotFound is returned when a point does not exist.
	ErrNotFound = errors.New("point not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyPoints indicates empty or nil points.
	ErrEmptyPoints = errors.New("empty or nil points")

	// ErrConnectionFailed indicates backend connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against security rules.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Point is a stored memory vector with its payload.
type Point struct {
	// ID is the canonical point identifier (UUIDv4).
	ID string

	// Vector is the embedding for the payload's data field.
	Vector []float32

	// Payload holds the memory record fields: data, hash, created_at,
	// updated_at, type, scope keys, and any passthrough metadata.
	Payload map[string]interface{}
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	Point

	// Score is cosine similarity in [0,1]; higher is more similar.
	Score float32
}

// CollectionInfo contains metadata about the backing collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
	VectorSize int    `json:"vector_size"`
}

// Store is the interface for memory point storage.
//
// Vectors are computed by the caller; the store never embeds. Scores follow
// a single convention across implementations: cosine similarity in [0,1],
// higher is better.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default, no external deps)
//   - QdrantStore: external Qdrant over gRPC
type Store interface {
	// Insert stores new points. Point IDs must be unique.
	Insert(ctx context.Context, points []Point) error

	// Search returns up to limit points similar to vector, most similar
	// first. Only points matching ALL filter conditions are considered,
	// and hits scoring below threshold are dropped.
	Search(ctx context.Context, vector []float32, limit int, filters map[string]interface{}, threshold float32) ([]ScoredPoint, error)

	// Get retrieves a point by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Point, error)

	// Update replaces the vector and payload of an existing point.
	// The point ID is preserved.
	Update(ctx context.Context, id string, vector []float32, payload map[string]interface{}) error

	// Delete removes a point by ID.
	Delete(ctx context.Context, id string) error

	// List returns points matching the filters without similarity ranking,
	// up to limit. A limit of 0 means no limit.
	List(ctx context.Context, filters map[string]interface{}, limit int) ([]Point, error)

	// Info returns metadata about the backing collection.
	Info(ctx context.Context) (*CollectionInfo, error)

	// Reset drops and recreates the backing collection, removing all points.
	Reset(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
