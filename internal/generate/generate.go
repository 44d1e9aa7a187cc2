// Package generate defines the text-generation collaborator and the call
// budget that keeps it within its hourly allowance.
package generate

import (
	"context"

	"github.com/chelinho139/glitchbot/internal/model"
)

// Kind selects what the generator is asked to write.
type Kind string

const (
	// KindThread is a standalone post about a topic.
	KindThread Kind = "thread"
	// KindReply answers a mention.
	KindReply Kind = "reply"
	// KindQuote comments on a source post that will be linked.
	KindQuote Kind = "quote"
)

// SkipSentinel is the answer a generator gives when it has nothing worth
// saying. The engine treats it like empty output.
const SkipSentinel = "SKIP"

// Request carries everything a generator may use.
type Request struct {
	Kind         Kind                  `json:"kind"`
	Topic        string                `json:"topic"`
	Facts        []model.KnowledgeFact `json:"facts,omitempty"`
	SourceText   string                `json:"source_text,omitempty"`
	SourceURL    string                `json:"source_url,omitempty"`
	AuthorHandle string                `json:"author_handle,omitempty"`
	MentionText  string                `json:"mention_text,omitempty"`
}

// Generator produces text for a request.
//
// An empty result (or SkipSentinel) means "nothing meaningful to say" and is
// not an error. Errors wrapping outcome.ErrRateLimited signal a 429-equivalent.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f(ctx, req).
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
