package engine

import (
	"github.com/chelinho139/glitchbot/internal/curation"
	"github.com/chelinho139/glitchbot/internal/dedup"
	"github.com/chelinho139/glitchbot/internal/governor"
	"github.com/chelinho139/glitchbot/internal/publish"
	"github.com/chelinho139/glitchbot/internal/quality"
)

// Defaults for Config.
const (
	DefaultTopic          = "AI"
	DefaultOwnerHandle    = "lemoncheli"
	DefaultKnowledgeLimit = 10

	// MentionTopic is the topic under which fetched originals are stored.
	MentionTopic = "user_mention"

	// seedKnowledgeLimit caps the facts per topic kept in session state.
	seedKnowledgeLimit = 5
)

// DefaultSeedTopics are the topics whose knowledge is loaded on Bootstrap.
var DefaultSeedTopics = []string{"AI", "crypto", "biotech"}

// Config holds the tunables of the decision cycles.
type Config struct {
	// Topic is used when PostInsight gets no topic, and for replies.
	Topic string

	// OwnerHandle marks priority mentions and is always followed back.
	OwnerHandle string

	SeedTopics []string

	Governor governor.Config

	RecencyWindow      int
	CandidateThreshold int64

	SimilarityThreshold  float64
	SimilarityWindowDays int

	// PostScoreThreshold is the quality score a mention's original post
	// needs before a quote side output is prepared for it.
	PostScoreThreshold int
	MinFollowers       int64

	HighQualityKeywords []string
	NegativeKeywords    []string

	KnowledgeLimit int
	MaxPostRunes   int
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		Topic:                DefaultTopic,
		OwnerHandle:          DefaultOwnerHandle,
		SeedTopics:           append([]string(nil), DefaultSeedTopics...),
		Governor:             governor.DefaultConfig(),
		RecencyWindow:        curation.DefaultRecencyWindow,
		CandidateThreshold:   curation.DefaultScoreThreshold,
		SimilarityThreshold:  dedup.DefaultThreshold,
		SimilarityWindowDays: dedup.DefaultWindowDays,
		PostScoreThreshold:   quality.DefaultAcceptThreshold,
		MinFollowers:         quality.DefaultMinFollowers,
		KnowledgeLimit:       DefaultKnowledgeLimit,
		MaxPostRunes:         publish.MaxPostRunes,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Topic == "" {
		c.Topic = def.Topic
	}
	if c.OwnerHandle == "" {
		c.OwnerHandle = def.OwnerHandle
	}
	if c.SeedTopics == nil {
		c.SeedTopics = def.SeedTopics
	}
	if c.Governor.MaxPostsPerHour <= 0 {
		c.Governor.MaxPostsPerHour = def.Governor.MaxPostsPerHour
	}
	if c.Governor.MinBetweenPosts < 0 {
		c.Governor.MinBetweenPosts = def.Governor.MinBetweenPosts
	}
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = def.RecencyWindow
	}
	if c.CandidateThreshold == 0 {
		c.CandidateThreshold = def.CandidateThreshold
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = def.SimilarityThreshold
	}
	if c.SimilarityWindowDays <= 0 {
		c.SimilarityWindowDays = def.SimilarityWindowDays
	}
	if c.PostScoreThreshold == 0 {
		c.PostScoreThreshold = def.PostScoreThreshold
	}
	if c.MinFollowers <= 0 {
		c.MinFollowers = def.MinFollowers
	}
	if c.KnowledgeLimit <= 0 {
		c.KnowledgeLimit = def.KnowledgeLimit
	}
	if c.MaxPostRunes <= 0 {
		c.MaxPostRunes = def.MaxPostRunes
	}
	return c
}
