package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

type SessionPayload struct {
	Variant       string   `json:"variant"`
	MaxIterations int      `json:"max_iterations,omitempty"`
	Tools         []string `json:"tools,omitempty"`
}

func (SessionPayload) EventType() EventType { return EventSessionCreated }

// SessionClosedPayload is published by cleanup.
type SessionClosedPayload struct {
	Error string `json:"error,omitempty"`
}

func (SessionClosedPayload) EventType() EventType { return EventSessionClosed }

type RunStartedPayload struct {
	Variant   string `json:"variant"`
	Objective string `json:"objective"`
}

func (RunStartedPayload) EventType() EventType { return EventRunStarted }

// RunFinishedPayload is shared by the completed and aborted transitions;
// Aborted selects the event type.
type RunFinishedPayload struct {
	Aborted    bool   `json:"aborted"`
	Iterations int    `json:"iterations"`
	Remaining  int    `json:"remaining,omitempty"`
	FaultKind  string `json:"fault_kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (p RunFinishedPayload) EventType() EventType {
	if p.Aborted {
		return EventRunAborted
	}
	return EventRunCompleted
}

type TaskPayload struct {
	TaskID int    `json:"task_id"`
	Name   string `json:"name"`
	Result string `json:"result,omitempty"`
	phase  EventType
}

func (p TaskPayload) EventType() EventType { return p.phase }

// TaskCreated, TaskStarted and TaskCompleted build task payloads for each phase.
func TaskCreated(id int, name string) TaskPayload {
	return TaskPayload{TaskID: id, Name: name, phase: EventTaskCreated}
}

func TaskStarted(id int, name string) TaskPayload {
	return TaskPayload{TaskID: id, Name: name, phase: EventTaskStarted}
}

func TaskCompleted(id int, name, result string) TaskPayload {
	return TaskPayload{TaskID: id, Name: name, Result: result, phase: EventTaskCompleted}
}

type TasksReorderedPayload struct {
	Order []string `json:"order"`
}

func (TasksReorderedPayload) EventType() EventType { return EventTasksReordered }

type ReflectionPayload struct {
	Action     string `json:"action"`
	Reflection string `json:"reflection"`
}

func (ReflectionPayload) EventType() EventType { return EventReflectionAdded }

type ToolStatus string

const (
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusRejected  ToolStatus = "rejected"
)

type ToolCallPayload struct {
	Status   ToolStatus `json:"status"`
	Name     string     `json:"name"`
	Argument string     `json:"argument,omitempty"`
	Output   string     `json:"output,omitempty"`
	Error    string     `json:"error,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

type LLMCallPayload struct {
	Stage    string        `json:"stage"`
	Model    string        `json:"model,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (LLMCallPayload) EventType() EventType { return EventLLMCall }

// ScheduleTriggeredPayload is published when a schedule starts a run; the
// event carries the new session's id.
type ScheduleTriggeredPayload struct {
	Schedule string `json:"schedule"`
	Trigger  string `json:"trigger"`
	Run      int    `json:"run"`
}

func (ScheduleTriggeredPayload) EventType() EventType { return EventScheduleTriggered }

type MemoryFailedPayload struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

func (MemoryFailedPayload) EventType() EventType { return EventMemoryFailed }

// NewTypedEvent builds an event whose type comes from the payload.
func NewTypedEvent(source EventSource, payload EventPayload, sessionID string) Event {
	return Event{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// ExtractPayload decodes an event payload back into its typed form.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
