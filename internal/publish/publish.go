// Package publish defines the outbound posting collaborator and a dry-run
// implementation that records instead of posting.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPostRunes is the platform's post length limit.
const MaxPostRunes = 280

// ErrTooLong is returned for text over MaxPostRunes.
var ErrTooLong = errors.New("post exceeds length limit")

// Publisher posts text, optionally as a reply, and returns the platform id.
// Errors wrapping outcome.ErrRateLimited signal a 429-equivalent.
type Publisher interface {
	Publish(ctx context.Context, text, inReplyTo string) (string, error)
}

// Post is one publish call seen by DryRun.
type Post struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// DryRun logs and records posts without sending them anywhere.
//
// Thread-safety: DryRun is safe for concurrent use via internal mutex.
type DryRun struct {
	mu     sync.Mutex
	posts  []Post
	newID  func() string
	logger *slog.Logger
}

// DryRunOption configures a DryRun.
type DryRunOption func(*DryRun)

// WithIDs overrides how published ids are generated.
func WithIDs(newID func() string) DryRunOption {
	return func(d *DryRun) {
		d.newID = newID
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) DryRunOption {
	return func(d *DryRun) {
		d.logger = logger
	}
}

// NewDryRun creates a dry-run publisher. Ids default to random UUIDs.
func NewDryRun(opts ...DryRunOption) *DryRun {
	d := &DryRun{
		newID:  func() string { return uuid.NewString() },
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish implements Publisher.
func (d *DryRun) Publish(ctx context.Context, text, inReplyTo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if n := utf8.RuneCountInString(text); n > MaxPostRunes {
		return "", fmt.Errorf("publish: %d characters: %w", n, ErrTooLong)
	}

	d.mu.Lock()
	post := Post{ID: d.newID(), Text: text, InReplyTo: inReplyTo}
	d.posts = append(d.posts, post)
	d.mu.Unlock()

	d.logger.Info("dry-run publish",
		"id", post.ID,
		"in_reply_to", inReplyTo,
		"chars", utf8.RuneCountInString(text))
	return post.ID, nil
}

// Posts returns a copy of everything published so far.
func (d *DryRun) Posts() []Post {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Post(nil), d.posts...)
}
