package theme

import "strings"

// Canonicalize normalizes a raw theme label into its lookup key: trimmed,
// lowercased, internal whitespace collapsed to single spaces. Idempotent.
func Canonicalize(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(label))), " ")
}
