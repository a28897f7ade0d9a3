package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT,
	embedding BLOB,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_collection ON memories(collection);
`

// SQLiteStore persists memories in a single SQLite file. All sessions share
// it; writes go through one connection and wait on the busy timeout.
type SQLiteStore struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// OpenSQLite opens (and creates if needed) the database at path. embedder may
// be nil.
func OpenSQLite(ctx context.Context, path string, embedder embedding.Embedder) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create memory schema: %w", err)
	}
	return &SQLiteStore{db: db, embedder: embedder}, nil
}

func (s *SQLiteStore) Collection(name string) Collection {
	return &sqliteCollection{store: s, name: collectionName(name)}
}

func (s *SQLiteStore) Search(ctx context.Context, text string, limit int) ([]Hit, error) {
	vec, err := embedOne(ctx, s.embedder, text)
	if err != nil {
		return nil, err
	}
	entries, err := s.load(ctx, "")
	if err != nil {
		return nil, err
	}
	return rank(entries, text, vec, limit), nil
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories`); err != nil {
		return fmt.Errorf("clear memories: %w", err)
	}
	return nil
}

// Count returns the number of entries in a collection, or in all of them
// when name is empty.
func (s *SQLiteStore) Count(ctx context.Context, name string) (int, error) {
	var n int
	var err error
	if name == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE collection = ?`, collectionName(name)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// load reads the entries of one collection, or all entries when name is "".
func (s *SQLiteStore) load(ctx context.Context, name string) ([]Entry, error) {
	query := `SELECT id, collection, content, metadata, embedding, created_at FROM memories`
	var args []any
	if name != "" {
		query += ` WHERE collection = ?`
		args = append(args, name)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load memories: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			meta      sql.NullString
			blob      []byte
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.Collection, &e.Text, &meta, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
			}
		}
		e.Vector = decodeVector(blob)
		e.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type sqliteCollection struct {
	store *SQLiteStore
	name  string
}

func (c *sqliteCollection) Add(ctx context.Context, text string, metadata map[string]string) error {
	vec, err := embedOne(ctx, c.store.embedder, text)
	if err != nil {
		return err
	}
	var meta []byte
	if len(metadata) > 0 {
		if meta, err = json.Marshal(metadata); err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	_, err = c.store.db.ExecContext(ctx,
		`INSERT INTO memories (id, collection, content, metadata, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		generateMemoryID(), c.name, text, string(meta), encodeVector(vec), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (c *sqliteCollection) Clear(ctx context.Context) error {
	if _, err := c.store.db.ExecContext(ctx, `DELETE FROM memories WHERE collection = ?`, c.name); err != nil {
		return fmt.Errorf("clear collection %s: %w", c.name, err)
	}
	return nil
}

func (c *sqliteCollection) Query(ctx context.Context, text string, limit int) ([]Hit, error) {
	vec, err := embedOne(ctx, c.store.embedder, text)
	if err != nil {
		return nil, err
	}
	entries, err := c.store.load(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return rank(entries, text, vec, limit), nil
}

// Vectors are stored as little-endian float64s.
func encodeVector(v []float64) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	if len(b) == 0 || len(b)%8 != 0 {
		return nil
	}
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v
}
