package fanout

import "strings"

// MatchesPattern tests one subscription pattern against an event key.
// Three pattern forms exist: the global "*", a namespace wildcard "prefix.*"
// (matches "prefix." followed by exactly one more segment), and an exact key.
func MatchesPattern(key, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
		rest, ok := strings.CutPrefix(key, prefix+".")
		return ok && rest != "" && !strings.Contains(rest, ".")
	}
	return key == pattern
}

// MatchesAny reports whether any of the endpoint's patterns matches the key.
func MatchesAny(key string, patterns []string) bool {
	for _, p := range patterns {
		if MatchesPattern(key, p) {
			return true
		}
	}
	return false
}
