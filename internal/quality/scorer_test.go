package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chelinho139/glitchbot/internal/model"
)

func TestScore(t *testing.T) {
	scorer := NewScorer(Options{})
	long := strings.Repeat("word ", 25) + "done."

	tests := []struct {
		name      string
		text      string
		author    *AuthorMetrics
		wantScore int
		wantWhy   string
	}{
		{
			name:      "two quality and one negative keyword",
			text:      "New research and analysis, total scam",
			wantScore: 5,
			wantWhy:   "Contains 2 quality indicators; Contains 1 negative indicators",
		},
		{
			name:      "nothing notable",
			text:      "hello world",
			wantScore: 0,
			wantWhy:   "No specific indicators",
		},
		{
			name:      "case insensitive and distinct",
			text:      "BREAKTHROUGH breakthrough Breakthrough",
			wantScore: 10,
			wantWhy:   "Contains 1 quality indicators",
		},
		{
			name:      "established author",
			text:      "hello",
			author:    &AuthorMetrics{Followers: 1000},
			wantScore: 5,
			wantWhy:   "Author has 1000 followers",
		},
		{
			name:      "small author",
			text:      "hello",
			author:    &AuthorMetrics{Followers: 12},
			wantScore: -5,
			wantWhy:   "Author has low followers (12)",
		},
		{
			name:      "long punctuated text",
			text:      long,
			wantScore: 5,
			wantWhy:   "Well-structured content",
		},
		{
			name:      "multi word negative phrase",
			text:      "to the moon, not financial advice",
			wantScore: -30,
			wantWhy:   "Contains 2 negative indicators",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Score(tt.text, tt.author)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantWhy, got.Rationale)
			assert.Equal(t, tt.wantScore >= DefaultAcceptThreshold, got.Accept)
		})
	}
}

func TestScore_AcceptThreshold(t *testing.T) {
	scorer := NewScorer(Options{})

	got := scorer.Score("breakthrough research", &AuthorMetrics{Followers: 5000})
	assert.Equal(t, 25, got.Score)
	assert.True(t, got.Accept)

	got = scorer.Score("breakthrough", nil)
	assert.Equal(t, 10, got.Score)
	assert.False(t, got.Accept)
}

func TestScore_LongTextWithoutPunctuation(t *testing.T) {
	scorer := NewScorer(Options{})
	got := scorer.Score(strings.Repeat("a", 150), nil)
	assert.Equal(t, 0, got.Score)
}

func TestScore_CountsRunesNotBytes(t *testing.T) {
	scorer := NewScorer(Options{})
	// 60 two-byte runes: 120 bytes but only 61 characters
	got := scorer.Score(strings.Repeat("é", 60)+".", nil)
	assert.Equal(t, 0, got.Score)
}

func TestScore_CustomOptions(t *testing.T) {
	scorer := NewScorer(Options{
		HighQuality:     []string{"Golang"},
		Negative:        []string{},
		MinFollowers:    10,
		AcceptThreshold: 10,
	})

	got := scorer.Score("golang scam", &AuthorMetrics{Followers: 10})
	assert.Equal(t, 15, got.Score)
	assert.True(t, got.Accept)
}

func TestNewKeywords_FoldsAndDedupes(t *testing.T) {
	kw := NewKeywords([]string{"Data", "data", " ", "STUDY"})
	assert.Equal(t, Keywords{"data", "study"}, kw)
	assert.Equal(t, 2, kw.CountIn(Fold("A DATA study")))
}

func TestAuthorMetricsFrom(t *testing.T) {
	assert.Nil(t, AuthorMetricsFrom(nil))
	assert.Nil(t, AuthorMetricsFrom(model.Metrics{model.MetricLikes: 3}))

	am := AuthorMetricsFrom(model.Metrics{model.MetricFollowers: 2500})
	if assert.NotNil(t, am) {
		assert.Equal(t, int64(2500), am.Followers)
	}
}
