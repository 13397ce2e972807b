package document

import (
	"strings"
	"unicode"
)

// Search returns the rune offsets of every case-insensitive occurrence of
// query in corpus, in ascending order. Runes compare under Unicode simple
// case folding, the same rule BuildHighlights uses.
//
// Each scan restarts one rune past the previous match start, so matches may
// overlap when the query repeats itself: "aa" in "aaaa" yields [0 1 2].
// An empty or whitespace-only query, or an empty corpus, yields no offsets.
func Search(corpus, query string) []int {
	if strings.TrimSpace(query) == "" || corpus == "" {
		return []int{}
	}

	hay := []rune(corpus)
	needle := []rune(query)

	offsets := []int{}
	if len(needle) > len(hay) {
		return offsets
	}

	for i := 0; i+len(needle) <= len(hay); i++ {
		if runesEqualAt(hay, needle, i) {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

func runesEqualAt(hay, needle []rune, at int) bool {
	for j, r := range needle {
		if !foldEqual(hay[at+j], r) {
			return false
		}
	}
	return true
}

// foldEqual reports whether a and b share a simple case-folding orbit.
func foldEqual(a, b rune) bool {
	if a == b {
		return true
	}
	for f := unicode.SimpleFold(a); f != a; f = unicode.SimpleFold(f) {
		if f == b {
			return true
		}
	}
	return false
}
