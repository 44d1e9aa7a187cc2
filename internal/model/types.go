package model

import "time"

// ContentItem is a piece of observed content (a timeline post, a search hit,
// or the original post behind a mention).
type ContentItem struct {
	ID                int64     `json:"id"`
	ExternalID        string    `json:"external_id"`
	Text              string    `json:"text"`
	Topic             string    `json:"topic"`
	AuthorID          string    `json:"author_id,omitempty"`
	EngagementMetrics Metrics   `json:"engagement_metrics,omitempty"`
	ObservedAt        time.Time `json:"observed_at"`
	Processed         bool      `json:"processed"`
}

// GeneratedOutput is a materialized candidate post.
type GeneratedOutput struct {
	ID               int64      `json:"id"`
	Text             string     `json:"text"`
	Topic            string     `json:"topic"`
	SourceContentIDs []string   `json:"source_content_ids,omitempty"`
	Posted           bool       `json:"posted"`
	PublishedID      string     `json:"published_id,omitempty"`
	PublishMetrics   Metrics    `json:"publish_metrics,omitempty"`
	PostedAt         *time.Time `json:"posted_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ResponseRecord is the reply history for a single mention.
// There is at most one record per MentionID.
type ResponseRecord struct {
	ID           int64     `json:"id"`
	MentionID    string    `json:"mention_id"`
	MentionText  string    `json:"mention_text"`
	ResponseText string    `json:"response_text"`
	ResponseID   string    `json:"response_id"`
	ContextUsed  string    `json:"context_used"`
	CreatedAt    time.Time `json:"created_at"`
}

// KnowledgeFact is a topic-scoped snippet used to ground generated text.
type KnowledgeFact struct {
	ID               int64     `json:"id"`
	Topic            string    `json:"topic" yaml:"topic"`
	Concept          string    `json:"concept" yaml:"concept"`
	Description      string    `json:"description" yaml:"description"`
	SourceContentIDs []string  `json:"source_content_ids,omitempty" yaml:"source_content_ids,omitempty"`
	ConfidenceScore  float64   `json:"confidence_score" yaml:"confidence_score"`
	LastUpdated      time.Time `json:"last_updated" yaml:"-"`
}

// DefaultConfidence is applied to facts stored without a confidence score.
const DefaultConfidence = 0.5

// EngagementSnapshot holds aggregate counts recomputed on demand.
type EngagementSnapshot struct {
	TotalMonitoredContent int64 `json:"total_monitored_content"`
	TotalThreadsGenerated int64 `json:"total_threads_generated"`
	TotalThreadsPosted    int64 `json:"total_threads_posted"`
	TotalMentionResponses int64 `json:"total_mention_responses"`
}

// Mention is an inbound message referencing the agent.
type Mention struct {
	ID     string `json:"id" yaml:"id"`
	Author string `json:"author" yaml:"author"`
	Text   string `json:"text" yaml:"text"`
}

// MetricEntry is one row of the free-form metrics log.
type MetricEntry struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Value      string    `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}
