package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskpilot/internal/events"
	"github.com/dohr-michael/taskpilot/internal/faults"
	"github.com/dohr-michael/taskpilot/internal/sandbox"
)

func shellCall(id, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: sandbox.ToolShell, Arguments: args}}
}

func TestParseGoals(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Write a haiku; Translate it to French", []string{"Write a haiku", "Translate it to French"}},
		{"one\ntwo;three", []string{"one", "two", "three"}},
		{"  ;\n ; ", []string{}},
		{"", []string{}},
		{"single goal", []string{"single goal"}},
	}
	for _, tt := range tests {
		got := ParseGoals(tt.in)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("ParseGoals(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGoalActionOneActionPerGoal(t *testing.T) {
	plan := script("list the files", "read notes", "summarise")
	act := &fakeCaller{reply: schema.AssistantMessage("Listing.", []schema.ToolCall{shellCall("c1", `{"input":"ls"}`)})}
	reflect := script("good", "fine", "done")
	tools := &fakeToolbox{outputs: map[string]string{"ls": "notes.txt"}}
	rec := &recorder{}

	s, err := NewSession(Config{Variant: VariantGoalAction, MaxIterations: 5}, Deps{
		Collaborators: goalActionCollaborators(plan, act, reflect),
		Tools:         tools,
		Publisher:     rec,
	})
	if err != nil {
		t.Fatal(err)
	}
	out, err := s.Execute(context.Background(), "find files; read them\nsummarise")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if out.State != StateCompleted || out.Iterations != 3 {
		t.Errorf("state %s, iterations %d", out.State, out.Iterations)
	}
	if strings.Join(out.Goals, "|") != "find files|read them|summarise" {
		t.Errorf("goals = %q", out.Goals)
	}
	if strings.Join(out.CompletedTasks, "|") != "list the files|read notes|summarise" {
		t.Errorf("completed = %q", out.CompletedTasks)
	}
	if strings.Join(out.Reflections, "|") != "good|fine|done" {
		t.Errorf("reflections = %q", out.Reflections)
	}
	if got := out.Results[0].Result; got != "Listing.\n\n[shell] notes.txt" {
		t.Errorf("result = %q", got)
	}
	if len(tools.invoked) != 3 || tools.invoked[0].Argument != "ls" {
		t.Errorf("invocations = %+v", tools.invoked)
	}
	if len(act.tools) != 1 || act.tools[0].Name != sandbox.ToolShell {
		t.Errorf("tools offered = %+v", act.tools)
	}

	// Later steps see the earlier ones.
	if got := plan.calls[1]["completed_tasks"]; got != "- list the files" {
		t.Errorf("completed_tasks for step 2 = %q", got)
	}
	if got := plan.calls[1]["current_task"]; got != "list the files" {
		t.Errorf("current_task for step 2 = %q", got)
	}
	if got := act.calls[1]["previous_result"]; got != "Listing.\n\n[shell] notes.txt" {
		t.Errorf("previous_result = %q", got)
	}
	if got := reflect.calls[0]["goals"]; got != "1. find files\n2. read them\n3. summarise" {
		t.Errorf("goals field = %q", got)
	}

	var reflections int
	for _, typ := range rec.types() {
		if typ == events.EventReflectionAdded {
			reflections++
		}
	}
	if reflections != 3 {
		t.Errorf("reflection events = %d, want 3", reflections)
	}
}

func TestGoalActionRespectsCap(t *testing.T) {
	plan := script()
	s, _ := NewSession(Config{Variant: VariantGoalAction, MaxIterations: 2}, Deps{
		Collaborators: goalActionCollaborators(plan, &fakeCaller{}, script()),
	})
	out, err := s.Execute(context.Background(), "a;b;c;d")
	if err != nil {
		t.Fatal(err)
	}
	if plan.count() != 2 || len(out.CompletedTasks) != 2 || out.Iterations != 2 {
		t.Errorf("plan calls %d, completed %d, iterations %d", plan.count(), len(out.CompletedTasks), out.Iterations)
	}
}

func TestGoalActionNoGoals(t *testing.T) {
	plan := script()
	s, _ := NewSession(Config{Variant: VariantGoalAction}, Deps{
		Collaborators: goalActionCollaborators(plan, &fakeCaller{}, script()),
	})
	out, err := s.Execute(context.Background(), " ;\n; ")
	if err != nil {
		t.Fatal(err)
	}
	if out.State != StateCompleted || out.Iterations != 0 || plan.count() != 0 {
		t.Errorf("state %s, iterations %d, plan calls %d", out.State, out.Iterations, plan.count())
	}
}

func TestGoalActionMalformedToolArguments(t *testing.T) {
	tools := &fakeToolbox{}
	act := &fakeCaller{reply: schema.AssistantMessage("", []schema.ToolCall{shellCall("c1", "ls -la")})}
	s, _ := NewSession(Config{Variant: VariantGoalAction}, Deps{
		Collaborators: goalActionCollaborators(script("look"), act, script()),
		Tools:         tools,
	})
	out, err := s.Execute(context.Background(), "one goal")
	if err != nil {
		t.Fatalf("malformed arguments aborted the run: %v", err)
	}
	if len(tools.invoked) != 0 {
		t.Errorf("tool invoked with malformed arguments")
	}
	if got := out.Results[0].Result; !strings.HasPrefix(got, "[shell] parse tool arguments") {
		t.Errorf("result = %q", got)
	}
}

func TestGoalActionRejectedToolIsData(t *testing.T) {
	tools := &fakeToolbox{}
	act := &fakeCaller{reply: schema.AssistantMessage("trying", []schema.ToolCall{shellCall("c1", `{"input":"rm -rf /"}`)})}
	s, _ := NewSession(Config{Variant: VariantGoalAction}, Deps{
		Collaborators: goalActionCollaborators(script("clean up"), act, script()),
		Tools:         tools,
	})
	out, err := s.Execute(context.Background(), "clean")
	if err != nil {
		t.Fatal(err)
	}
	if got := out.Results[0].Result; got != "trying\n\n[shell] Command not allowed" {
		t.Errorf("result = %q", got)
	}
}

func TestGoalActionToolCallLimit(t *testing.T) {
	calls := make([]schema.ToolCall, maxToolCalls+3)
	for i := range calls {
		calls[i] = shellCall("c", `{"input":"ls"}`)
	}
	tools := &fakeToolbox{outputs: map[string]string{"ls": "x"}}
	s, _ := NewSession(Config{Variant: VariantGoalAction}, Deps{
		Collaborators: goalActionCollaborators(script("go"), &fakeCaller{reply: schema.AssistantMessage("", calls)}, script()),
		Tools:         tools,
	})
	out, err := s.Execute(context.Background(), "g")
	if err != nil {
		t.Fatal(err)
	}
	if len(tools.invoked) != maxToolCalls {
		t.Errorf("invoked %d tools, want %d", len(tools.invoked), maxToolCalls)
	}
	if !strings.HasSuffix(out.Results[0].Result, "[skipped] 3 more tool calls") {
		t.Errorf("result = %q", out.Results[0].Result)
	}
}

func TestGoalActionReflectFaultKeepsEarlierWork(t *testing.T) {
	reflect := script("first went well")
	reflect.failAt = 2
	s, _ := NewSession(Config{Variant: VariantGoalAction}, Deps{
		Collaborators: goalActionCollaborators(script("a1", "a2"), &fakeCaller{}, reflect),
	})
	out, err := s.Execute(context.Background(), "g1; g2; g3")
	if !faults.Is(err, faults.Collaborator) {
		t.Fatalf("err = %v, want collaborator fault", err)
	}
	if out.State != StateAborted {
		t.Errorf("state = %s", out.State)
	}
	if strings.Join(out.CompletedTasks, "|") != "a1" || len(out.Results) != 1 || len(out.Reflections) != 1 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestGoalActionWithoutTools(t *testing.T) {
	act := &fakeCaller{reply: schema.AssistantMessage("hm", []schema.ToolCall{shellCall("c1", `{"input":"ls"}`)})}
	s, _ := NewSession(Config{Variant: VariantGoalAction}, Deps{
		Collaborators: goalActionCollaborators(script("look"), act, script()),
	})
	out, err := s.Execute(context.Background(), "g")
	if err != nil {
		t.Fatal(err)
	}
	if act.calls[0]["tools"] != noneListed || act.tools != nil {
		t.Errorf("tools offered without a toolbox: %q %v", act.calls[0]["tools"], act.tools)
	}
	if !strings.Contains(out.Results[0].Result, "no tools are available") {
		t.Errorf("result = %q", out.Results[0].Result)
	}
}
