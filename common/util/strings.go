package util

import (
	"strings"
	"unicode/utf8"
)

// TruncateStringToMaxLength returns a copy of the string, truncated to be at most maxChars runes long.
// If the string is truncated, the last 3 characters are set to '...' if maxChars is greater than 3.
func TruncateStringToMaxLength(s string, maxChars int) string {
	if utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	runes := []rune(s)
	if maxChars > 3 {
		return string(runes[:maxChars-3]) + "..."
	}
	return string(runes[:maxChars]) // not enough room for "..."
}

// FirstLine returns s up to its first newline, marking it with "..." if anything was cut off.
func FirstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i]) + "..."
	}
	return s
}
