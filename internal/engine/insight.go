package engine

import (
	"context"

	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/governor"
	"github.com/chelinho139/glitchbot/internal/outcome"
)

// PostInsight runs one insight cycle: pick the best recent item, have the
// generator comment on it, and materialize the result as an unposted output.
//
// Stages, each of which may end the cycle:
//
//	Rollover → RateCheck → SelectCandidate → SourceDupCheck →
//	Generate → BlockedCheck → ContentDupCheck → Materialize
//
// The returned Decision carries the output id and text when done. Nothing is
// published here; see PublishOutput.
func (e *Engine) PostInsight(ctx context.Context, topic string) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	if topic == "" {
		topic = e.cfg.Topic
	}
	d := e.begin(ActionPostInsight)
	now := e.now()

	e.state.Rollover(now)
	if err := governor.MayPostNow(e.state.Governor, e.cfg.Governor, now); err != nil {
		return e.finish(ctx, d.deny(err))
	}

	items, err := e.store.RecentContent(ctx, e.selector.RecencyWindow)
	if err != nil {
		return e.finish(ctx, d.fail(outcome.KindIOFailure, "recent content", err))
	}

	best, ok := e.selector.SelectBest(items)
	if !ok {
		return e.finish(ctx, d.deny(outcome.Deny(outcome.ReasonNoCandidate,
			"no candidate among %d recent items reached %d", len(items), e.selector.ScoreThreshold)))
	}
	d.SourceID = best.Item.ExternalID

	if d, ok = d.check("check source", e.guard.CheckSource(ctx, best.Item.ExternalID)); !ok {
		return e.finish(ctx, d)
	}

	url := StatusURL(best.Item.ExternalID)
	summary, err := e.generator.Generate(ctx, generate.Request{
		Kind:         generate.KindQuote,
		Topic:        topic,
		Facts:        e.knowledge(ctx, topic),
		SourceText:   best.Item.Text,
		SourceURL:    url,
		AuthorHandle: best.Item.AuthorID,
	})
	if err != nil {
		return e.finish(ctx, d.fail(outcome.KindGenerationFailure, "generate quote", err))
	}
	if isBlocked(summary) {
		return e.finish(ctx, d.deny(outcome.Deny(outcome.ReasonNoMeaningfulContent,
			"generated text is empty or placeholder")))
	}

	text := ComposeQuote(summary, url, e.cfg.MaxPostRunes)
	if d, ok = d.check("check content", e.guard.CheckContent(ctx, text)); !ok {
		return e.finish(ctx, d)
	}

	outputID, err := e.store.RecordGeneratedOutput(ctx, text, topic, []string{best.Item.ExternalID})
	if err != nil {
		return e.finish(ctx, d.fail(outcome.KindIOFailure, "materialize", err))
	}
	e.state.Engagement.TotalThreadsGenerated++

	d.OutputID = outputID
	d.Text = text
	return e.finish(ctx, d)
}
