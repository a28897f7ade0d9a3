package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

var keyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entry describes one variable of a .env file.
type Entry struct {
	Key    string
	Sealed bool
}

// SetEntry writes KEY=VALUE into the .env file at path, replacing the value
// in place when the key exists. Comments, blank lines and ordering survive.
func SetEntry(path, key, value string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid variable name %q", key)
	}
	lines, err := readLines(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read dotenv: %w", err)
	}

	line := key + "=" + quoteValue(value)
	replaced := false
	for i, l := range lines {
		k, _, ok := strings.Cut(strings.TrimPrefix(strings.TrimSpace(l), "export "), "=")
		if ok && !strings.HasPrefix(strings.TrimSpace(l), "#") && strings.TrimSpace(k) == key {
			lines[i] = line
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, line)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

// Entries lists the variables of the .env file at path, sorted by key. A
// missing file has no entries.
func Entries(path string) ([]Entry, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dotenv: %w", err)
	}
	out := make([]Entry, 0, len(vars))
	for k, v := range vars {
		out = append(out, Entry{Key: k, Sealed: IsSealed(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// quoteValue double-quotes values godotenv would otherwise misread.
func quoteValue(v string) string {
	if strings.ContainsAny(v, " \t\"'\\#$") {
		escaped := strings.ReplaceAll(v, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return v
}
