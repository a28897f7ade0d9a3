package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/dohr-michael/taskpilot/internal/config"
)

// keywordEmbedder maps each known keyword to one axis.
type keywordEmbedder struct {
	axes []string
	err  error
}

func (k *keywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if k.err != nil {
		return nil, k.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, len(k.axes))
		for j, axis := range k.axes {
			if strings.Contains(strings.ToLower(text), axis) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

type storeFactory func(t *testing.T, e embedding.Embedder) Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"inmemory": func(t *testing.T, e embedding.Embedder) Store {
			return NewInMemoryStore(e)
		},
		"sqlite": func(t *testing.T, e embedding.Embedder) Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "mem", "memory.db"), e)
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, nil)
			a, b := s.Collection("sess_a"), s.Collection("sess_b")

			if err := a.Add(ctx, "research golang generics", map[string]string{MetaTask: "research"}); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if err := b.Add(ctx, "write golang report", nil); err != nil {
				t.Fatalf("Add: %v", err)
			}

			hits, err := a.Query(ctx, "golang", 10)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(hits) != 1 || hits[0].Text != "research golang generics" {
				t.Fatalf("hits = %+v, want only sess_a's entry", hits)
			}
			if hits[0].Metadata[MetaTask] != "research" || hits[0].Collection != "sess_a" {
				t.Errorf("hit = %+v", hits[0])
			}

			if err := a.Clear(ctx); err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if hits, _ := a.Query(ctx, "golang", 10); len(hits) != 0 {
				t.Errorf("cleared collection still returns %d hits", len(hits))
			}
			if hits, _ := b.Query(ctx, "golang", 10); len(hits) != 1 {
				t.Errorf("Clear of sess_a removed sess_b's entry")
			}
		})
	}
}

func TestSearchAndClearAll(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, nil)
			s.Collection("x").Add(ctx, "alpha beta", nil)
			s.Collection("y").Add(ctx, "beta gamma", nil)

			hits, err := s.Search(ctx, "beta", 10)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(hits) != 2 {
				t.Fatalf("Search returned %d hits, want 2", len(hits))
			}

			if err := s.ClearAll(ctx); err != nil {
				t.Fatalf("ClearAll: %v", err)
			}
			if hits, _ := s.Search(ctx, "beta", 10); len(hits) != 0 {
				t.Errorf("ClearAll left %d entries", len(hits))
			}
		})
	}
}

func TestQueryWithEmbedder(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, &keywordEmbedder{axes: []string{"database", "frontend"}})
			c := s.Collection("sess")
			c.Add(ctx, "Designed the database schema", nil)
			c.Add(ctx, "Styled the frontend", nil)

			hits, err := c.Query(ctx, "which database?", 1)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(hits) != 1 || hits[0].Text != "Designed the database schema" {
				t.Fatalf("hits = %+v", hits)
			}
		})
	}
}

func TestEmbedderErrorFailsAdd(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("embedding service down")
			s := factory(t, &keywordEmbedder{err: boom})
			if err := s.Collection("sess").Add(context.Background(), "text", nil); !errors.Is(err, boom) {
				t.Errorf("Add err = %v, want %v", err, boom)
			}
		})
	}
}

func TestEmptyCollectionName(t *testing.T) {
	s := NewInMemoryStore(nil)
	s.Collection("  ").Add(context.Background(), "x", nil)
	if s.Len(defaultCollection) != 1 {
		t.Error("blank collection name should map to the default collection")
	}
}

func TestSQLitePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "memory.db")

	s, err := OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Collection("sess").Add(ctx, "persisted entry", map[string]string{MetaObjective: "o"})
	s.Close()

	s, err = OpenSQLite(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	n, err := s.Count(ctx, "sess")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count = %d after reopen, want 1", n)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.MemoryConfig{Path: InProcess})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("Open(%q) = %T, want *InMemoryStore", InProcess, s)
	}

	s, err = Open(ctx, config.MemoryConfig{Path: filepath.Join(t.TempDir(), "m.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(file) = %T, want *SQLiteStore", s)
	}

	if _, err := Open(ctx, config.MemoryConfig{Embedding: config.EmbeddingConfig{Driver: "word2vec"}}); err == nil {
		t.Error("expected error for unknown embedding driver")
	}
}

func TestOpenAIEmbedderNeedsKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewEmbedder(context.Background(), config.EmbeddingConfig{Driver: "openai"}); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestGenerateMemoryID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := generateMemoryID()
		hex := strings.TrimPrefix(id, "mem_")
		if hex == id || len(hex) != 32 || strings.Trim(hex, "0123456789abcdef") != "" {
			t.Fatalf("id %q is not mem_ + 32 hex digits", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
