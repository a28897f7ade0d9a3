// Package tasks holds the pending task queue and completed execution records
// of one agent session.
package tasks

import "errors"

var (
	ErrTaskPending   = errors.New("task is still pending")
	ErrTaskCompleted = errors.New("task already completed")
	ErrUnknownTask   = errors.New("task was never enqueued")
)

// Task is one unit of work. Tasks are immutable once created; identity is ID.
// Name is the lookup key used when reordering and need not be unique.
type Task struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ExecutionRecord pairs a completed task with its result.
type ExecutionRecord struct {
	Task   Task   `json:"task"`
	Result string `json:"result"`
}
