package llmutils

import (
	"fmt"
	"sort"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// Truncate shortens a string to at most n characters, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// StringOrDefault returns s if it's not empty, or def if s is empty.
func StringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// InvocationHint generates a short hint string for a tool invocation, e.g. `echo("hi")`.
// The first string argument in key order is shown.
func InvocationHint(inv schema.Invocation) string {
	keys := make([]string, 0, len(inv.Arguments))
	for k := range inv.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s, ok := inv.Arguments[k].(string)
		if !ok || s == "" {
			continue
		}
		return fmt.Sprintf("%s(%q)", inv.Name, Truncate(s, 40))
	}
	return inv.Name
}
