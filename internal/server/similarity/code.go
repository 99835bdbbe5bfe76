// Package similarity scores how alike two pieces of content are, on a 0-100 scale.
package similarity

import (
	"math"
	"strings"
	"unicode"
)

// Code compares two snippets position by position after dropping all
// whitespace. The score is the share of equal runes at equal offsets,
// relative to the longer snippet. Either side empty scores 0.
func Code(a, b string) int {
	ra := []rune(stripSpace(a))
	rb := []rune(stripSpace(b))
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	longest := max(len(ra), len(rb))
	shortest := min(len(ra), len(rb))

	matches := 0
	for i := 0; i < shortest; i++ {
		if ra[i] == rb[i] {
			matches++
		}
	}

	return int(math.Round(float64(matches) / float64(longest) * 100))
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
