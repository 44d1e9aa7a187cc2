// Package dedup prevents the agent from repeating itself: re-amplifying the
// same source, posting near-identical text, or answering a mention twice.
package dedup

import (
	"context"
	"fmt"

	"github.com/chelinho139/glitchbot/internal/outcome"
)

// Defaults for a Guard.
const (
	DefaultThreshold  = 0.9
	DefaultWindowDays = 7
)

// History is the slice of the content store the guard reads.
type History interface {
	HasPublishedExternalID(ctx context.Context, externalID string) (bool, error)
	RecentOutputsWithinWindow(ctx context.Context, days int) ([]string, error)
	HasResponded(ctx context.Context, mentionID string) (bool, error)
}

// Guard answers "may I do this without repeating myself?".
//
// Every check returns nil to allow, an *outcome.Denial to refuse, or a
// wrapped store error.
type Guard struct {
	Threshold  float64
	WindowDays int

	history History
}

// NewGuard creates a guard over the given history with default settings.
func NewGuard(history History) *Guard {
	return &Guard{
		Threshold:  DefaultThreshold,
		WindowDays: DefaultWindowDays,
		history:    history,
	}
}

// CheckSource denies reuse of a source item that already fed an output.
func (g *Guard) CheckSource(ctx context.Context, externalID string) error {
	used, err := g.history.HasPublishedExternalID(ctx, externalID)
	if err != nil {
		return fmt.Errorf("check source: %w", err)
	}
	if used {
		return outcome.Deny(outcome.ReasonAlreadyPosted, "source %s already used", externalID)
	}
	return nil
}

// CheckContent denies text too similar to any output in the window.
func (g *Guard) CheckContent(ctx context.Context, text string) error {
	recent, err := g.history.RecentOutputsWithinWindow(ctx, g.WindowDays)
	if err != nil {
		return fmt.Errorf("check content: %w", err)
	}
	for _, prev := range recent {
		if ratio := Similarity(text, prev); ratio >= g.Threshold {
			return outcome.Deny(outcome.ReasonSimilarContentExists,
				"similarity %.2f with a post from the last %d days", ratio, g.WindowDays)
		}
	}
	return nil
}

// CheckMention denies a second reply to the same mention.
func (g *Guard) CheckMention(ctx context.Context, mentionID string) error {
	done, err := g.history.HasResponded(ctx, mentionID)
	if err != nil {
		return fmt.Errorf("check mention: %w", err)
	}
	if done {
		return outcome.Deny(outcome.ReasonAlreadyResponded, "mention %s already answered", mentionID)
	}
	return nil
}
