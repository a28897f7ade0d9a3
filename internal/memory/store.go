package memory

import (
	"context"

	"github.com/dohr-michael/taskpilot/internal/config"
)

// Collection is a named slice of a Store. Clear only removes its own entries.
type Collection interface {
	Durable
	Querier
}

// Store defines the interface for memory persistence.
type Store interface {
	Collection(name string) Collection
	// Search queries every collection at once.
	Search(ctx context.Context, text string, limit int) ([]Hit, error)
	ClearAll(ctx context.Context) error
	Close() error
}

// InProcess is the memory path that selects the in-process store.
const InProcess = ":memory:"

// Open builds the store described by cfg, with its embedder if one is
// configured.
func Open(ctx context.Context, cfg config.MemoryConfig) (Store, error) {
	embedder, err := NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if cfg.Path == "" || cfg.Path == InProcess {
		return NewInMemoryStore(embedder), nil
	}
	return OpenSQLite(ctx, cfg.Path, embedder)
}
