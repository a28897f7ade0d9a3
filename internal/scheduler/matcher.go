package scheduler

import (
	"strconv"
	"strings"

	"github.com/dohr-michael/taskpilot/internal/config"
	"github.com/dohr-michael/taskpilot/internal/events"
)

// MatchEvent reports whether e fires trigger. Events emitted by the scheduler
// itself never match.
//
// trigger.Event is an event type, or a prefix ending in ".*" ("run.*").
// Filter values are compared with the scalar payload value of the same key;
// the key "session_id" compares the event's session instead.
func MatchEvent(e events.Event, trigger *config.EventTrigger) bool {
	if trigger == nil || e.Source == events.SourceScheduler {
		return false
	}
	if !matchType(string(e.Type), trigger.Event) {
		return false
	}
	for key, want := range trigger.Filter {
		if key == "session_id" {
			if e.SessionID != want {
				return false
			}
			continue
		}
		got, ok := scalar(e.Payload[key])
		if !ok || got != want {
			return false
		}
	}
	return true
}

func matchType(typ, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(typ, prefix)
	}
	return typ == pattern
}

// scalar renders a payload value for comparison. Maps, slices and missing
// keys do not compare.
func scalar(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool:
		return strconv.FormatBool(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
