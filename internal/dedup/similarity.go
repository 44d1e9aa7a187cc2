package dedup

import "github.com/pmezard/go-difflib/difflib"

// Similarity returns the matching-blocks ratio 2*M/T of two strings, where M
// is the number of matched characters and T the total of both lengths.
// Comparison is per rune. Two empty strings are identical (1.0).
func Similarity(a, b string) float64 {
	ra, rb := splitRunes(a), splitRunes(b)
	if len(ra)+len(rb) == 0 {
		return 1.0
	}
	return difflib.NewMatcher(ra, rb).Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
