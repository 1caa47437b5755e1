package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/recalld/internal/config"
)

// NewStore creates a Store from configuration.
//
// The provider set is closed: "qdrant" and "chromem" are the only valid
// values, anything else is an error.
func NewStore(cfg config.VectorStoreConfig) (Store, error) {
	switch cfg.Provider {
	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			VectorSize: uint64(cfg.Qdrant.VectorSize),
		})
	case "chromem":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Collection: cfg.Chromem.Collection,
			VectorSize: cfg.Chromem.VectorSize,
		})
	default:
		return nil, fmt.Errorf("%w: unknown vector store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
