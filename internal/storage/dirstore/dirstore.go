// Package dirstore keeps one directory per entity, each holding JSON
// documents written atomically.
package dirstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when an entity or one of its documents is missing.
var ErrNotFound = errors.New("not found")

// ErrInvalidID rejects ids that would escape the base directory.
var ErrInvalidID = errors.New("invalid id")

// DirStore roots entity directories under baseDir. It does no locking;
// callers serialize writes to the same entity.
type DirStore struct {
	baseDir    string
	entityName string // for error messages: "session"
}

// NewDirStore creates a DirStore rooted at baseDir.
func NewDirStore(baseDir, entityName string) *DirStore {
	return &DirStore{baseDir: baseDir, entityName: entityName}
}

// CheckID reports ErrInvalidID for empty ids, path separators and dot files.
func CheckID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return nil
}

// Dir returns the directory path for a given entity ID.
func (ds *DirStore) Dir(id string) string {
	return filepath.Join(ds.baseDir, id)
}

// RemoveDir removes the entity directory and all its contents.
func (ds *DirStore) RemoveDir(id string) error {
	if err := CheckID(id); err != nil {
		return err
	}
	if _, err := os.Stat(ds.Dir(id)); os.IsNotExist(err) {
		return fmt.Errorf("%s %s: %w", ds.entityName, id, ErrNotFound)
	}
	return os.RemoveAll(ds.Dir(id))
}

// ListDirs returns the names of all subdirectories in baseDir.
func (ds *DirStore) ListDirs() ([]string, error) {
	entries, err := os.ReadDir(ds.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %ss dir: %w", ds.entityName, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() && CheckID(entry.Name()) == nil {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// WriteJSON atomically writes v as the named document of an entity, creating
// the entity directory when needed.
func (ds *DirStore) WriteJSON(id, name string, v any) error {
	if err := CheckID(id); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.MkdirAll(ds.Dir(id), 0o755); err != nil {
		return fmt.Errorf("create %s dir: %w", ds.entityName, err)
	}

	path := filepath.Join(ds.Dir(id), name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s tmp: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

// ReadJSON unmarshals the named document of an entity into out.
func (ds *DirStore) ReadJSON(id, name string, out any) error {
	if err := CheckID(id); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(ds.Dir(id), name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s %s: %w", ds.entityName, id, ErrNotFound)
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
