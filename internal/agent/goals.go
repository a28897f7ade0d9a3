package agent

import "strings"

// Goal is one user-stated target of the goal/action variant.
type Goal = string

// ParseGoals splits input on newlines and semicolons, trimming each segment
// and dropping empty ones.
func ParseGoals(input string) []Goal {
	parts := strings.FieldsFunc(input, func(r rune) bool { return r == '\n' || r == ';' })
	goals := make([]Goal, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			goals = append(goals, p)
		}
	}
	return goals
}

// State is what the goal/action variant knows between iterations.
type State struct {
	Goals          []Goal   `json:"goals"`
	CurrentTask    *string  `json:"current_task,omitempty"`
	CompletedTasks []string `json:"completed_tasks"`
	Reflections    []string `json:"reflections"`
}
