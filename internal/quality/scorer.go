// Package quality scores content for substance before it is amplified.
package quality

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chelinho139/glitchbot/internal/model"
)

// Scoring weights.
const (
	highKeywordWeight     = 10
	negativeKeywordWeight = -15
	followerWeight        = 5
	structureWeight       = 5

	// structureMinRunes is the length a text must exceed to earn the
	// structure bonus.
	structureMinRunes = 100
)

// Default thresholds.
const (
	DefaultAcceptThreshold = 15
	DefaultMinFollowers    = 1000
)

// AuthorMetrics carries what the scorer knows about a content author.
type AuthorMetrics struct {
	Followers int64
}

// AuthorMetricsFrom reads the follower count from engagement metrics.
// Returns nil when the count is absent, so the follower rule is skipped.
func AuthorMetricsFrom(m model.Metrics) *AuthorMetrics {
	if m == nil {
		return nil
	}
	if _, ok := m[model.MetricFollowers]; !ok {
		return nil
	}
	return &AuthorMetrics{Followers: m.Get(model.MetricFollowers)}
}

// Assessment is the result of scoring a text.
type Assessment struct {
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
	Accept    bool   `json:"accept"`
}

// Options configures a Scorer. Zero values use the defaults.
type Options struct {
	HighQuality     []string
	Negative        []string
	MinFollowers    int64
	AcceptThreshold int
}

// Scorer assigns an integer quality score to text. It is stateless after
// construction and safe for concurrent use.
type Scorer struct {
	high         Keywords
	negative     Keywords
	minFollowers int64
	threshold    int
}

// NewScorer creates a scorer with the given options.
func NewScorer(opts Options) *Scorer {
	high := opts.HighQuality
	if high == nil {
		high = DefaultHighQuality
	}
	negative := opts.Negative
	if negative == nil {
		negative = DefaultNegative
	}
	minFollowers := opts.MinFollowers
	if minFollowers <= 0 {
		minFollowers = DefaultMinFollowers
	}
	threshold := opts.AcceptThreshold
	if threshold == 0 {
		threshold = DefaultAcceptThreshold
	}
	return &Scorer{
		high:         NewKeywords(high),
		negative:     NewKeywords(negative),
		minFollowers: minFollowers,
		threshold:    threshold,
	}
}

// HighQuality returns the folded high-quality keyword set.
func (s *Scorer) HighQuality() Keywords {
	return s.high
}

// Threshold returns the minimum accepted score.
func (s *Scorer) Threshold() int {
	return s.threshold
}

// Score evaluates text and optional author metrics.
func (s *Scorer) Score(text string, author *AuthorMetrics) Assessment {
	folded := Fold(text)
	score := 0
	var reasons []string

	if n := s.high.CountIn(folded); n > 0 {
		score += n * highKeywordWeight
		reasons = append(reasons, fmt.Sprintf("Contains %d quality indicators", n))
	}

	if n := s.negative.CountIn(folded); n > 0 {
		score += n * negativeKeywordWeight
		reasons = append(reasons, fmt.Sprintf("Contains %d negative indicators", n))
	}

	if author != nil {
		if author.Followers >= s.minFollowers {
			score += followerWeight
			reasons = append(reasons, fmt.Sprintf("Author has %d followers", author.Followers))
		} else {
			score -= followerWeight
			reasons = append(reasons, fmt.Sprintf("Author has low followers (%d)", author.Followers))
		}
	}

	if utf8.RuneCountInString(text) > structureMinRunes && strings.ContainsAny(text, ".!?") {
		score += structureWeight
		reasons = append(reasons, "Well-structured content")
	}

	rationale := "No specific indicators"
	if len(reasons) > 0 {
		rationale = strings.Join(reasons, "; ")
	}

	return Assessment{
		Score:     score,
		Rationale: rationale,
		Accept:    score >= s.threshold,
	}
}
