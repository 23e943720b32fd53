package tools

// Internal tool names use a dotted namespace (estimates.generateWbsItems).
// Chat-completion providers only accept [A-Za-z0-9_-] in function names, so
// every registered tool also carries a provider-safe name with offending
// runes replaced. The registry keeps a reverse map so calls coming back from
// the model resolve to the exact internal name that produced them.

// ProviderSafeName replaces every rune outside [A-Za-z0-9_-] with an
// underscore.
func ProviderSafeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// MatchPattern reports whether a tool name matches an allowlist pattern.
// Patterns are either exact names or "prefix.*" namespace wildcards.
func MatchPattern(pattern, name string) bool {
	if pattern == "" || name == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if len(pattern) > 2 && pattern[len(pattern)-2:] == ".*" {
		prefix := pattern[:len(pattern)-1]
		return len(name) >= len(prefix) && name[:len(prefix)] == prefix
	}
	return pattern == name
}
