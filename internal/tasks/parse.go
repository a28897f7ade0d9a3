package tasks

import (
	"regexp"
	"strings"
)

// listMarkerRe matches list markers like "1. ", "2) ", "- ", "* ", "• ".
var listMarkerRe = regexp.MustCompile(`^(?:\d+[.)]|[-*•])(?:\s+|$)`)

// ParseLines splits free-form model output into one entry per non-empty line,
// with list markers and surrounding whitespace removed.
func ParseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
