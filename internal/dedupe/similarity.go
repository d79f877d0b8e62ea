package dedupe

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize prepares a string for similarity comparison: NFKC normalization
// (collapses ligatures and width variants from provider payloads), case
// folding, and whitespace trimming.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

// StringSimilarity returns a 0-1 similarity between two strings:
// 1 - editDistance/maxLen on normalized input. Empty input scores 0.
func StringSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	s1 := normalize(a)
	s2 := normalize(b)
	if s1 == s2 {
		return 1
	}

	maxLen := len(s1)
	if len(s2) > maxLen {
		maxLen = len(s2)
	}
	if maxLen == 0 {
		return 1
	}

	return 1 - float64(levenshtein(s1, s2))/float64(maxLen)
}

// levenshtein computes the classic single-character insert/delete/substitute
// edit distance using a two-row rolling table.
func levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j-1]+cost, curr[j-1]+1, prev[j]+1)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// NormalizePhone strips everything but digits so that "202-555-0100" and
// "(202) 555 0100" compare equal.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
