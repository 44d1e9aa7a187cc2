package quality

import (
	"strings"

	"golang.org/x/text/cases"
)

// DefaultHighQuality lists indicators of substantive content.
var DefaultHighQuality = []string{
	"breakthrough", "innovation", "research", "development",
	"analysis", "insight", "data", "study", "report",
	"whitepaper", "technical", "implementation", "solution",
	"discovery", "patent", "publication",
}

// DefaultNegative lists indicators of hype or spam.
var DefaultNegative = []string{
	"scam", "pump", "dump", "moon", "lambo", "diamond hands",
	"not financial advice", "dyor", "fomo", "fud",
}

// Fold returns the Unicode case-folded form of s for case-insensitive matching.
// A new caser is created per call; casers are not safe for concurrent use.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Keywords is a set of case-folded indicator phrases.
type Keywords []string

// NewKeywords folds and de-duplicates the given phrases, dropping empty ones.
func NewKeywords(phrases []string) Keywords {
	seen := make(map[string]bool, len(phrases))
	out := make(Keywords, 0, len(phrases))
	for _, p := range phrases {
		f := Fold(strings.TrimSpace(p))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// CountIn returns how many distinct keywords occur in folded text as substrings.
// The text must already be folded with Fold.
func (k Keywords) CountIn(folded string) int {
	n := 0
	for _, kw := range k {
		if strings.Contains(folded, kw) {
			n++
		}
	}
	return n
}
