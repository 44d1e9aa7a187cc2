// Package governor enforces the posting cadence: at most MaxPostsPerHour
// posts per clock hour and at least MinBetweenPosts between consecutive posts.
//
// The governor is pure: State is plain data owned by the caller, and every
// operation takes the current time explicitly.
package governor

import (
	"fmt"
	"time"

	"github.com/chelinho139/glitchbot/internal/outcome"
)

// Defaults for Config.
const (
	DefaultMaxPostsPerHour = 2
	DefaultMinBetweenPosts = 30 * time.Minute
)

// Config holds the posting limits.
type Config struct {
	MaxPostsPerHour int
	MinBetweenPosts time.Duration
}

// DefaultConfig returns the default limits: 2 posts per hour, 30 minutes apart.
func DefaultConfig() Config {
	return Config{
		MaxPostsPerHour: DefaultMaxPostsPerHour,
		MinBetweenPosts: DefaultMinBetweenPosts,
	}
}

// State tracks posts in the current clock hour.
//
// HourStarted is the hour-of-day (0-23) the counter belongs to, or -1 when
// no hour has been observed yet. The counter resets whenever the hour-of-day
// changes, so a post at 09:59 and one at 10:01 land in different hours.
type State struct {
	PostsThisHour int        `json:"posts_this_hour"`
	HourStarted   int        `json:"hour_started"`
	LastPostTime  *time.Time `json:"last_post_time,omitempty"`
}

// NewState returns an empty state that rolls over on first use.
func NewState() State {
	return State{HourStarted: -1}
}

// Rollover resets the hourly counter if now is in a different hour-of-day
// than the one being counted. Returns true when a reset happened.
// Called at the start of every cycle.
func (s *State) Rollover(now time.Time) bool {
	if now.Hour() == s.HourStarted {
		return false
	}
	s.PostsThisHour = 0
	s.HourStarted = now.Hour()
	return true
}

// RecordPost counts one confirmed publish at now.
//
// Must be called exactly once per successful publish, never for denied or
// failed attempts.
func (s *State) RecordPost(now time.Time) {
	s.Rollover(now)
	s.PostsThisHour++
	t := now
	s.LastPostTime = &t
}

// Restore rebuilds state from posting history on cold start.
// posted holds publish times in any order; only those in now's hour-of-day
// (and within the last hour) count toward the limit.
func Restore(posted []time.Time, now time.Time) State {
	s := NewState()
	s.Rollover(now)
	for _, t := range posted {
		if t.After(now) {
			continue
		}
		if s.LastPostTime == nil || t.After(*s.LastPostTime) {
			last := t
			s.LastPostTime = &last
		}
		if now.Sub(t) < time.Hour && t.Hour() == now.Hour() {
			s.PostsThisHour++
		}
	}
	return s
}

// MayPostNow checks whether a post is allowed at now.
//
// Returns nil to allow, or an *outcome.Denial:
//   - HourlyLimitReached when the hourly quota is used up
//   - TooSoon (with Wait set) when the last post is too recent
//
// The hourly limit is checked first. Callers must Rollover before checking.
func MayPostNow(s State, cfg Config, now time.Time) error {
	if s.PostsThisHour >= cfg.MaxPostsPerHour {
		return &outcome.Denial{
			Reason:  outcome.ReasonHourlyLimitReached,
			Message: fmt.Sprintf("%d of %d posts used this hour", s.PostsThisHour, cfg.MaxPostsPerHour),
		}
	}

	if s.LastPostTime != nil {
		if elapsed := now.Sub(*s.LastPostTime); elapsed < cfg.MinBetweenPosts {
			wait := cfg.MinBetweenPosts - elapsed
			return &outcome.Denial{
				Reason:  outcome.ReasonTooSoon,
				Message: fmt.Sprintf("last post %s ago, wait %s", elapsed.Round(time.Second), wait.Round(time.Second)),
				Wait:    wait,
			}
		}
	}

	return nil
}
