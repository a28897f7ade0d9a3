// Package memory provides the durable memory agents record their results in.
//
// Entries live in named collections, one per session, so a session can clear
// what it wrote without touching anybody else's.
package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Durable is the write side every agent needs.
type Durable interface {
	Add(ctx context.Context, text string, metadata map[string]string) error
	Clear(ctx context.Context) error
}

// Querier is implemented by memories that can return entries similar to a
// text. Agents use it for execution context when available.
type Querier interface {
	Query(ctx context.Context, text string, limit int) ([]Hit, error)
}

// Hit is one query result.
type Hit struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Text       string            `json:"text"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Score      float64           `json:"score"`
}

// Entry is a stored memory.
type Entry struct {
	ID         string
	Collection string
	Text       string
	Metadata   map[string]string
	Vector     []float64
	CreatedAt  time.Time
}

// Metadata keys recorded with every task result.
const (
	MetaTask      = "task"
	MetaTaskID    = "task_id"
	MetaObjective = "objective"
	MetaSession   = "session"
)

const defaultCollection = "default"

func collectionName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return defaultCollection
	}
	return name
}

// generateMemoryID returns "mem_" and the 32 hex digits of a random UUID.
func generateMemoryID() string {
	return "mem_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
