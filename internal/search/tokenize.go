package search

import (
	"strings"
	"unicode"
)

// tokenize lowercases s and splits it into letter/digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// termCounts counts each token of s.
func termCounts(s string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokenize(s) {
		counts[tok]++
	}
	return counts
}
