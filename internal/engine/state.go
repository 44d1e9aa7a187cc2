package engine

import (
	"strings"
	"time"

	"github.com/chelinho139/glitchbot/internal/governor"
	"github.com/chelinho139/glitchbot/internal/model"
	"github.com/chelinho139/glitchbot/internal/quality"
)

// PostRecord is one confirmed publish in the session history.
type PostRecord struct {
	OutputID    int64     `json:"output_id"`
	PublishedID string    `json:"published_id"`
	At          time.Time `json:"at"`
}

// FollowDecision records whether an author should be followed and why.
type FollowDecision struct {
	Author string `json:"author"`
	Follow bool   `json:"follow"`
	Score  int    `json:"score"`
	Reason string `json:"reason"`
}

// SessionState is the engine's in-memory view between cycles.
//
// It is rebuilt from the store by Engine.Bootstrap and changed only through
// the transition methods below, each of which bumps Version. Callers get
// copies via Engine.State.
type SessionState struct {
	Version int64 `json:"version"`

	Governor       governor.State `json:"governor"`
	PostingHistory []PostRecord   `json:"posting_history,omitempty"`

	PriorityMentions []model.Mention `json:"priority_mentions,omitempty"`
	GeneralMentions  []model.Mention `json:"general_mentions,omitempty"`

	FollowDecisions []FollowDecision `json:"follow_decisions,omitempty"`

	Knowledge  map[string][]model.KnowledgeFact `json:"knowledge,omitempty"`
	Engagement model.EngagementSnapshot         `json:"engagement"`

	BootstrappedAt time.Time `json:"bootstrapped_at"`
}

// NewSessionState returns an empty state.
func NewSessionState() SessionState {
	return SessionState{
		Governor:  governor.NewState(),
		Knowledge: make(map[string][]model.KnowledgeFact),
	}
}

// Rollover resets the hourly post counter when the hour changed.
func (s *SessionState) Rollover(now time.Time) bool {
	if !s.Governor.Rollover(now) {
		return false
	}
	s.Version++
	return true
}

// RecordPost counts one confirmed publish.
func (s *SessionState) RecordPost(now time.Time, outputID int64, publishedID string) {
	s.Governor.RecordPost(now)
	s.PostingHistory = append(s.PostingHistory, PostRecord{
		OutputID:    outputID,
		PublishedID: publishedID,
		At:          now,
	})
	s.Engagement.TotalThreadsPosted++
	s.Version++
}

// ClassifyMentions files mentions into priority (the text names the owner
// handle) and general queues, and returns them priority first.
func (s *SessionState) ClassifyMentions(mentions []model.Mention, ownerHandle string) []model.Mention {
	owner := quality.Fold(strings.TrimPrefix(ownerHandle, "@"))
	var priority, general []model.Mention
	for _, m := range mentions {
		if owner != "" && strings.Contains(quality.Fold(m.Text), owner) {
			priority = append(priority, m)
		} else {
			general = append(general, m)
		}
	}
	s.PriorityMentions = append(s.PriorityMentions, priority...)
	s.GeneralMentions = append(s.GeneralMentions, general...)
	s.Version++
	return append(priority, general...)
}

// RecordFollowDecision appends a follow decision.
func (s *SessionState) RecordFollowDecision(fd FollowDecision) {
	s.FollowDecisions = append(s.FollowDecisions, fd)
	s.Version++
}

// clone returns a deep copy safe to hand to callers.
func (s SessionState) clone() SessionState {
	out := s
	if s.Governor.LastPostTime != nil {
		t := *s.Governor.LastPostTime
		out.Governor.LastPostTime = &t
	}
	out.PostingHistory = append([]PostRecord(nil), s.PostingHistory...)
	out.PriorityMentions = append([]model.Mention(nil), s.PriorityMentions...)
	out.GeneralMentions = append([]model.Mention(nil), s.GeneralMentions...)
	out.FollowDecisions = append([]FollowDecision(nil), s.FollowDecisions...)
	out.Knowledge = make(map[string][]model.KnowledgeFact, len(s.Knowledge))
	for topic, facts := range s.Knowledge {
		out.Knowledge[topic] = append([]model.KnowledgeFact(nil), facts...)
	}
	return out
}
