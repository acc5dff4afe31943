// Package strings provides string normalization shared by lookups that must
// agree on what "the same text" means.
package strings

import (
	"strings"
)

// Fold lower-cases s, trims it and collapses internal whitespace runs to a
// single space.
//
// Example:
//
//	Fold("  1965  R1 Silver\t- English ")
//	// Returns: "1965 r1 silver - english"
func Fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DedupeFolded folds each value and drops empties and duplicates.
// Order of first appearance is preserved.
//
// Example:
//
//	DedupeFolded([]string{"  Kruger  Pond ", "kruger pond", "", "Ponde"})
//	// Returns: []string{"kruger pond", "ponde"}
func DedupeFolded(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		folded := Fold(v)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; !ok {
			seen[folded] = struct{}{}
			result = append(result, folded)
		}
	}

	return result
}
