package agent

import (
	"context"
	"errors"

	"github.com/dohr-michael/taskpilot/internal/faults"
)

// KindCanceled marks a run stopped by its context rather than by a fault.
const KindCanceled = "canceled"

// StepResult is the result of one execution step.
type StepResult struct {
	TaskID int    `json:"task_id,omitempty"`
	Task   string `json:"task"`
	Result string `json:"result"`
}

// OutcomeError describes why a run was aborted.
type OutcomeError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Outcome is what Execute reports, whether the run completed or not.
type Outcome struct {
	SessionID      string        `json:"session_id"`
	Variant        Variant       `json:"variant"`
	Objective      string        `json:"objective"`
	State          RunState      `json:"state"`
	Goals          []Goal        `json:"goals,omitempty"`
	CompletedTasks []string      `json:"completed_tasks"`
	Results        []StepResult  `json:"results"`
	Reflections    []string      `json:"reflections,omitempty"`
	RemainingTasks []string      `json:"remaining_tasks,omitempty"`
	Iterations     int           `json:"iterations"`
	Error          *OutcomeError `json:"error,omitempty"`
}

func newOutcomeError(err error) *OutcomeError {
	kind := string(faults.KindOf(err))
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	if kind == "" {
		kind = "internal"
	}
	return &OutcomeError{Kind: kind, Message: err.Error()}
}
