package agent

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
	"github.com/dohr-michael/taskpilot/internal/memory"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
)

// scripted replies with the next scripted answer, then "" once the script
// runs out. failAt (1-based) makes that call fail.
type scripted struct {
	mu      sync.Mutex
	replies []string
	failAt  int
	err     error
	calls   []map[string]string
}

func script(replies ...string) *scripted { return &scripted{replies: replies} }

func (g *scripted) Generate(_ context.Context, fields map[string]string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, maps.Clone(fields))
	n := len(g.calls)
	if g.failAt > 0 && n >= g.failAt {
		err := g.err
		if err == nil {
			err = errors.New("model exploded")
		}
		return "", faults.New(faults.Collaborator, "fake", err)
	}
	if n <= len(g.replies) {
		return g.replies[n-1], nil
	}
	return "", nil
}

func (g *scripted) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// echo answers every call with a fixed text.
type echo string

func (e echo) Generate(context.Context, map[string]string) (string, error) { return string(e), nil }

type fakeCaller struct {
	mu    sync.Mutex
	reply *schema.Message
	err   error
	calls []map[string]string
	tools []*schema.ToolInfo
}

func (f *fakeCaller) GenerateWithTools(_ context.Context, fields map[string]string, tools []*schema.ToolInfo) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, maps.Clone(fields))
	f.tools = tools
	if f.err != nil {
		return nil, f.err
	}
	if f.reply == nil {
		return schema.AssistantMessage("acted", nil), nil
	}
	return f.reply, nil
}

type fakeToolbox struct {
	mu      sync.Mutex
	outputs map[string]string
	invoked []sandbox.Invocation
}

func (f *fakeToolbox) Names() []string { return []string{sandbox.ToolShell} }

func (f *fakeToolbox) Describe() string { return "shell(The command line): run a command" }

func (f *fakeToolbox) ToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{{Name: sandbox.ToolShell, Desc: "run a command"}}
}

func (f *fakeToolbox) Invoke(_ context.Context, inv sandbox.Invocation) sandbox.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, inv)
	if out, ok := f.outputs[inv.Argument]; ok {
		return sandbox.Result{Output: out}
	}
	return sandbox.Result{Error: "Command not allowed", Fault: faults.Tool}
}

type fakeMemory struct {
	mu       sync.Mutex
	added    []string
	metadata []map[string]string
	clears   int
	addErr   error
	clearErr error
}

func (m *fakeMemory) Add(_ context.Context, text string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, text)
	m.metadata = append(m.metadata, maps.Clone(metadata))
	return nil
}

func (m *fakeMemory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.added = nil
	m.metadata = nil
	return m.clearErr
}

// queryMemory adds a fixed answer to Query.
type queryMemory struct {
	fakeMemory
	hits    []memory.Hit
	queries []string
}

func (q *queryMemory) Query(_ context.Context, text string, limit int) ([]memory.Hit, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queries = append(q.queries, text)
	if limit < len(q.hits) {
		return q.hits[:limit], nil
	}
	return q.hits, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func taskQueueCollaborators(exec, create, prioritize Generator) Collaborators {
	return Collaborators{Execute: exec, Create: create, Prioritize: prioritize}
}

func goalActionCollaborators(plan Generator, act ToolCaller, reflect Generator) Collaborators {
	return Collaborators{Plan: plan, Act: act, Reflect: reflect}
}
