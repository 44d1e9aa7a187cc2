// Package curation picks the most promising recent item to amplify.
package curation

import (
	"sort"

	"github.com/chelinho139/glitchbot/internal/model"
	"github.com/chelinho139/glitchbot/internal/quality"
)

// Defaults for a Selector.
const (
	DefaultRecencyWindow  = 10
	DefaultScoreThreshold = 5

	keywordWeight  = 2
	likesDivisor   = 10
	retweetDivisor = 5
)

// Candidate is a content item with its curation score.
type Candidate struct {
	Item  model.ContentItem `json:"item"`
	Score int64             `json:"score"`
	Index int               `json:"index"`
}

// Selector ranks recent content by keywords, engagement and recency.
type Selector struct {
	RecencyWindow  int
	ScoreThreshold int64

	keywords quality.Keywords
}

// NewSelector creates a selector using the given high-quality keyword set.
// A nil set uses quality.DefaultHighQuality.
func NewSelector(keywords quality.Keywords) *Selector {
	if keywords == nil {
		keywords = quality.NewKeywords(quality.DefaultHighQuality)
	}
	return &Selector{
		RecencyWindow:  DefaultRecencyWindow,
		ScoreThreshold: DefaultScoreThreshold,
		keywords:       keywords,
	}
}

// Score computes the curation score of the item at position index in a
// most-recent-first list.
func (s *Selector) Score(item model.ContentItem, index int) int64 {
	score := int64(keywordWeight * s.keywords.CountIn(quality.Fold(item.Text)))
	score += item.EngagementMetrics.Get(model.MetricLikes) / likesDivisor
	score += item.EngagementMetrics.Get(model.MetricRetweets) / retweetDivisor
	if bonus := s.RecencyWindow - index; bonus > 0 {
		score += int64(bonus)
	}
	return score
}

// Rank scores the first RecencyWindow candidates and orders them by score,
// highest first. Ties keep their original order.
func (s *Selector) Rank(candidates []model.ContentItem) []Candidate {
	n := len(candidates)
	if s.RecencyWindow >= 0 && n > s.RecencyWindow {
		n = s.RecencyWindow
	}

	ranked := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		ranked = append(ranked, Candidate{
			Item:  candidates[i],
			Score: s.Score(candidates[i], i),
			Index: i,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// SelectBest returns the top-ranked candidate if it reaches the threshold.
func (s *Selector) SelectBest(candidates []model.ContentItem) (Candidate, bool) {
	ranked := s.Rank(candidates)
	if len(ranked) == 0 || ranked[0].Score < s.ScoreThreshold {
		return Candidate{}, false
	}
	return ranked[0], true
}
