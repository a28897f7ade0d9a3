package tasks

import (
	"fmt"
	"sync"
)

// Store is the ordered pending queue plus the append-only completed list.
// A task id is in at most one of them; popped tasks are in neither until
// MarkCompleted records them.
type Store struct {
	mu        sync.Mutex
	nextID    int
	pending   []Task
	completed []ExecutionRecord
	done      map[int]bool
}

// NewStore returns an empty store whose first task id is 1.
func NewStore() *Store {
	return &Store{done: make(map[int]bool)}
}

// Enqueue appends a new task with the next monotonic id.
func (s *Store) Enqueue(name, description string) Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	t := Task{ID: s.nextID, Name: name, Description: description}
	s.pending = append(s.pending, t)
	return t
}

// PopNext removes and returns the head of the pending queue.
func (s *Store) PopNext() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return Task{}, false
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	return t, true
}

// MarkCompleted records the result of a popped task. Recording a task twice,
// or one that is still queued, is an error.
func (s *Store) MarkCompleted(t Task, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID <= 0 || t.ID > s.nextID {
		return fmt.Errorf("mark task %d: %w", t.ID, ErrUnknownTask)
	}
	if s.done[t.ID] {
		return fmt.Errorf("mark task %d: %w", t.ID, ErrTaskCompleted)
	}
	for _, p := range s.pending {
		if p.ID == t.ID {
			return fmt.Errorf("mark task %d: %w", t.ID, ErrTaskPending)
		}
	}
	s.done[t.ID] = true
	s.completed = append(s.completed, ExecutionRecord{Task: t, Result: result})
	return nil
}

// Reorder rearranges the pending queue by name. Names that match no pending
// task are ignored. A name listed twice claims the next pending task with that
// name in queue order. Pending tasks not claimed by the ranking keep their
// relative order and follow the ranked ones, so no task is ever dropped.
func (s *Store) Reorder(ranking []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claimed := make([]bool, len(s.pending))
	ordered := make([]Task, 0, len(s.pending))
	for _, name := range ranking {
		for i, t := range s.pending {
			if !claimed[i] && t.Name == name {
				claimed[i] = true
				ordered = append(ordered, t)
				break
			}
		}
	}
	for i, t := range s.pending {
		if !claimed[i] {
			ordered = append(ordered, t)
		}
	}
	s.pending = ordered
}

// PendingNames returns pending task names in queue order.
func (s *Store) PendingNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.pending))
	for i, t := range s.pending {
		names[i] = t.Name
	}
	return names
}

// CompletedNames returns completed task names in completion order.
func (s *Store) CompletedNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.completed))
	for i, r := range s.completed {
		names[i] = r.Task.Name
	}
	return names
}

// Pending returns a copy of the pending queue.
func (s *Store) Pending() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.pending...)
}

// Completed returns a copy of the completed records.
func (s *Store) Completed() []ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ExecutionRecord(nil), s.completed...)
}

// Len reports the number of pending tasks.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// CompletedCount reports the number of completed tasks.
func (s *Store) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

// Reset empties the store and restarts ids at 1.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID = 0
	s.pending = nil
	s.completed = nil
	s.done = make(map[int]bool)
}
