package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/embedding"
)

// InMemoryStore keeps entries in process. It is used when no memory path is
// configured and in tests.
type InMemoryStore struct {
	embedder embedding.Embedder

	mu      sync.RWMutex
	entries map[string][]Entry
}

// NewInMemoryStore creates an empty store. embedder may be nil.
func NewInMemoryStore(embedder embedding.Embedder) *InMemoryStore {
	return &InMemoryStore{
		embedder: embedder,
		entries:  make(map[string][]Entry),
	}
}

func (s *InMemoryStore) Collection(name string) Collection {
	return &memCollection{store: s, name: collectionName(name)}
}

func (s *InMemoryStore) Search(ctx context.Context, text string, limit int) ([]Hit, error) {
	vec, err := embedOne(ctx, s.embedder, text)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	var all []Entry
	for _, entries := range s.entries {
		all = append(all, entries...)
	}
	s.mu.RUnlock()
	return rank(all, text, vec, limit), nil
}

func (s *InMemoryStore) ClearAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]Entry)
	return nil
}

// Len returns the number of entries in a collection.
func (s *InMemoryStore) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[collectionName(name)])
}

func (s *InMemoryStore) Close() error { return nil }

type memCollection struct {
	store *InMemoryStore
	name  string
}

func (c *memCollection) Add(ctx context.Context, text string, metadata map[string]string) error {
	vec, err := embedOne(ctx, c.store.embedder, text)
	if err != nil {
		return err
	}
	e := Entry{
		ID:         generateMemoryID(),
		Collection: c.name,
		Text:       text,
		Metadata:   maps.Clone(metadata),
		Vector:     vec,
		CreatedAt:  time.Now(),
	}
	c.store.mu.Lock()
	c.store.entries[c.name] = append(c.store.entries[c.name], e)
	c.store.mu.Unlock()
	return nil
}

func (c *memCollection) Clear(context.Context) error {
	c.store.mu.Lock()
	delete(c.store.entries, c.name)
	c.store.mu.Unlock()
	return nil
}

func (c *memCollection) Query(ctx context.Context, text string, limit int) ([]Hit, error) {
	vec, err := embedOne(ctx, c.store.embedder, text)
	if err != nil {
		return nil, err
	}
	c.store.mu.RLock()
	entries := append([]Entry(nil), c.store.entries[c.name]...)
	c.store.mu.RUnlock()
	return rank(entries, text, vec, limit), nil
}
