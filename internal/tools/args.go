package tools

// stringArg returns args[key] when it is a string, otherwise def.
func stringArg(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

// numberArg returns args[key] as a float64 when it is numeric.
func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// truncateRunes cuts s to at most n runes and appends suffix when it did.
// n <= 0 disables truncation.
func truncateRunes(s string, n int, suffix string) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + suffix
}
