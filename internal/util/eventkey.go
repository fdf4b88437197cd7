package util

import (
	"regexp"
	"strings"
)

// keys are dot-namespaced, e.g. "message.created" or "ticket.status.changed"
var eventKeyRe = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)+$`)

// NormalizeEventKey lowercases and trims an event key.
func NormalizeEventKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEventKey reports whether s is a well-formed dot-namespaced event key.
func ValidEventKey(s string) bool {
	if len(s) == 0 || len(s) > 200 {
		return false
	}
	return eventKeyRe.MatchString(s)
}
