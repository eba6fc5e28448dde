// Package similarity holds the pure similarity primitives used by theme
// resolution and merge-candidate discovery. Every similarity decision in the
// codebase goes through these functions.
package similarity

import (
	"math"
	"regexp"
	"strings"
)

// Cosine returns the cosine similarity of two vectors. It returns 0 when
// either vector is empty, the dimensions differ, or either norm is zero.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// TokenSet splits a label into its lowercase alphanumeric word tokens.
func TokenSet(label string) map[string]struct{} {
	tokens := tokenRe.FindAllString(strings.ToLower(label), -1)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

// Dice returns the Dice coefficient 2|A∩B| / (|A|+|B|) of two token sets.
// Two empty sets are considered identical (1.0); one empty set scores 0.
func Dice(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	intersection := 0
	for token := range smaller {
		if _, ok := larger[token]; ok {
			intersection++
		}
	}
	return 2.0 * float64(intersection) / float64(len(a)+len(b))
}

// Intersects reports whether two token sets share at least one token.
func Intersects(a, b map[string]struct{}) bool {
	smaller, larger := a, b
	if len(b) < len(a) {
		smaller, larger = b, a
	}
	for token := range smaller {
		if _, ok := larger[token]; ok {
			return true
		}
	}
	return false
}
