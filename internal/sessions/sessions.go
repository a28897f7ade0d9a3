// Package sessions archives the reports of finished runs, one directory per
// session holding meta.json (a Record) and report.json.
package sessions

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dohr-michael/taskpilot/internal/runner"
	"github.com/dohr-michael/taskpilot/internal/storage/dirstore"
)

// ErrNotFound is returned for a session that was never archived.
var ErrNotFound = dirstore.ErrNotFound

// ErrInvalidID rejects session ids that are not plain names.
var ErrInvalidID = dirstore.ErrInvalidID

const (
	metaFile   = "meta.json"
	reportFile = "report.json"
)

// Record summarises one archived run.
type Record struct {
	ID         string    `json:"id"`
	Variant    string    `json:"variant"`
	Objective  string    `json:"objective"`
	State      string    `json:"state"`
	Iterations int       `json:"iterations"`
	FaultKind  string    `json:"fault_kind,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Store is a directory-backed session archive.
type Store struct {
	mu  sync.RWMutex
	ds  *dirstore.DirStore
	now func() time.Time
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{ds: dirstore.NewDirStore(baseDir, "session"), now: time.Now}
}

// Save archives r under its session id, replacing an earlier report.
func (s *Store) Save(r *runner.Report) error {
	if r == nil || r.Outcome == nil {
		return errors.New("sessions: empty report")
	}
	rec := Record{
		ID:         r.SessionID,
		Variant:    string(r.Variant),
		Objective:  r.Objective,
		State:      string(r.State),
		Iterations: r.Iterations,
		FinishedAt: s.now().UTC(),
	}
	if r.Error != nil {
		rec.FaultKind = r.Error.Kind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The report goes first so a listed record always has one.
	if err := s.ds.WriteJSON(rec.ID, reportFile, r); err != nil {
		return err
	}
	return s.ds.WriteJSON(rec.ID, metaFile, rec)
}

// Get returns the archived report of a session.
func (s *Store) Get(id string) (*runner.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r runner.Report
	if err := s.ds.ReadJSON(id, reportFile, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// List returns all archived records, most recent first.
func (s *Store) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.ds.ListDirs()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		var rec Record
		if err := s.ds.ReadJSON(id, metaFile, &rec); err != nil {
			continue // skip half-written or foreign directories
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].FinishedAt.After(records[j].FinishedAt)
	})
	return records, nil
}

// Delete removes a session from the archive.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ds.RemoveDir(id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
