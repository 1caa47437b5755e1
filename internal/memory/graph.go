package memory

import "context"

// Graph is an optional relationship store consulted alongside the vector
// store. Entity and relation extraction happens inside the implementation;
// the orchestrator only routes turns and queries to it.
type Graph interface {
	// Add records relationships found in the turns under the filters' scope.
	Add(ctx context.Context, data string, filters map[string]interface{}) error

	// Search returns relations relevant to the query.
	Search(ctx context.Context, query string, filters map[string]interface{}, limit int) ([]string, error)

	// GetAll lists relations in the scope.
	GetAll(ctx context.Context, filters map[string]interface{}, limit int) ([]string, error)

	// DeleteAll removes relations in the scope.
	DeleteAll(ctx context.Context, filters map[string]interface{}) error
}

// NoopGraph is the default Graph: it stores nothing and finds nothing.
type NoopGraph struct{}

var _ Graph = NoopGraph{}

func (NoopGraph) Add(context.Context, string, map[string]interface{}) error {
	return nil
}

func (NoopGraph) Search(context.Context, string, map[string]interface{}, int) ([]string, error) {
	return nil, nil
}

func (NoopGraph) GetAll(context.Context, map[string]interface{}, int) ([]string, error) {
	return nil, nil
}

func (NoopGraph) DeleteAll(context.Context, map[string]interface{}) error {
	return nil
}
