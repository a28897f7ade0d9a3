package tasks

import (
	"errors"
	"reflect"
	"testing"
)

func names(ts []Task) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Name
	}
	return out
}

func TestStore_EnqueueAssignsMonotonicIDs(t *testing.T) {
	s := NewStore()
	a := s.Enqueue("a", "first")
	b := s.Enqueue("b", "second")
	if a.ID != 1 || b.ID != 2 {
		t.Fatalf("ids = %d, %d; want 1, 2", a.ID, b.ID)
	}

	popped, ok := s.PopNext()
	if !ok || popped.ID != 1 {
		t.Fatalf("PopNext = %+v, %v", popped, ok)
	}
	if c := s.Enqueue("c", "third"); c.ID != 3 {
		t.Errorf("id after pop = %d, want 3", c.ID)
	}
}

func TestStore_PopEmpty(t *testing.T) {
	s := NewStore()
	if _, ok := s.PopNext(); ok {
		t.Error("PopNext on empty store returned a task")
	}
}

func TestStore_MarkCompleted(t *testing.T) {
	s := NewStore()
	s.Enqueue("a", "a")
	queued := s.Enqueue("b", "b")

	task, _ := s.PopNext()
	if err := s.MarkCompleted(task, "done"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkCompleted(task, "again"); !errors.Is(err, ErrTaskCompleted) {
		t.Errorf("second MarkCompleted error = %v, want ErrTaskCompleted", err)
	}
	if err := s.MarkCompleted(queued, "early"); !errors.Is(err, ErrTaskPending) {
		t.Errorf("MarkCompleted on pending error = %v, want ErrTaskPending", err)
	}
	if err := s.MarkCompleted(Task{ID: 42}, "ghost"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("MarkCompleted on unknown error = %v, want ErrUnknownTask", err)
	}

	got := s.Completed()
	if len(got) != 1 || got[0].Result != "done" {
		t.Fatalf("Completed() = %+v", got)
	}
	if !reflect.DeepEqual(s.CompletedNames(), []string{"a"}) {
		t.Errorf("CompletedNames = %v", s.CompletedNames())
	}
	if !reflect.DeepEqual(s.PendingNames(), []string{"b"}) {
		t.Errorf("PendingNames = %v", s.PendingNames())
	}
}

func TestStore_Reorder(t *testing.T) {
	tests := []struct {
		name    string
		pending []string
		ranking []string
		want    []string
	}{
		{
			name:    "full ranking",
			pending: []string{"a", "b", "c"},
			ranking: []string{"c", "a", "b"},
			want:    []string{"c", "a", "b"},
		},
		{
			name:    "omitted names keep relative order after ranked ones",
			pending: []string{"a", "b", "c", "d"},
			ranking: []string{"c"},
			want:    []string{"c", "a", "b", "d"},
		},
		{
			name:    "unknown names ignored",
			pending: []string{"a", "b"},
			ranking: []string{"ghost", "b", "phantom"},
			want:    []string{"b", "a"},
		},
		{
			name:    "empty ranking is a no-op",
			pending: []string{"a", "b"},
			ranking: nil,
			want:    []string{"a", "b"},
		},
		{
			name:    "duplicate pending names resolved by queue order",
			pending: []string{"x", "dup", "y", "dup"},
			ranking: []string{"dup", "y"},
			want:    []string{"dup", "y", "x", "dup"},
		},
		{
			name:    "repeated ranking name claims next duplicate",
			pending: []string{"dup", "x", "dup"},
			ranking: []string{"dup", "dup", "x"},
			want:    []string{"dup", "dup", "x"},
		},
		{
			name:    "repeated ranking name beyond duplicates ignored",
			pending: []string{"a", "b"},
			ranking: []string{"b", "b", "b"},
			want:    []string{"b", "a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			for _, n := range tt.pending {
				s.Enqueue(n, n)
			}
			before := s.Pending()

			s.Reorder(tt.ranking)

			after := s.Pending()
			if got := names(after); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("order = %v, want %v", got, tt.want)
			}
			if len(after) != len(before) {
				t.Fatalf("reorder changed queue size: %d -> %d", len(before), len(after))
			}
			seen := map[int]bool{}
			for _, task := range after {
				if seen[task.ID] {
					t.Fatalf("task %d appears twice", task.ID)
				}
				seen[task.ID] = true
			}
		})
	}
}

func TestStore_ReorderDuplicatesKeepIDOrder(t *testing.T) {
	s := NewStore()
	first := s.Enqueue("dup", "first")
	s.Enqueue("other", "other")
	second := s.Enqueue("dup", "second")

	s.Reorder([]string{"other"})

	got := s.Pending()
	if got[1].ID != first.ID || got[2].ID != second.ID {
		t.Errorf("duplicates reordered: %+v", got)
	}
}

func TestStore_Reset(t *testing.T) {
	s := NewStore()
	s.Enqueue("a", "a")
	task := s.Enqueue("b", "b")
	s.PopNext()
	s.PopNext()
	if err := s.MarkCompleted(task, "r"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		s.Reset()
		if s.Len() != 0 || s.CompletedCount() != 0 {
			t.Fatalf("reset %d left pending=%d completed=%d", i, s.Len(), s.CompletedCount())
		}
	}
	if next := s.Enqueue("c", "c"); next.ID != 1 {
		t.Errorf("id after reset = %d, want 1", next.ID)
	}
}
