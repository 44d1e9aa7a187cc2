package engine

import (
	"context"

	"github.com/chelinho139/glitchbot/internal/governor"
	"github.com/chelinho139/glitchbot/internal/outcome"
)

// PublishOutput publishes the output materialized by a done PostInsight
// decision and confirms it.
//
// The governor is consulted again because time may have passed since the
// insight cycle. Handing in any other decision is denied with NoCandidate.
func (e *Engine) PublishOutput(ctx context.Context, insight Decision) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.begin(ActionPublish)
	d.OutputID = insight.OutputID
	d.SourceID = insight.SourceID

	if insight.Action != ActionPostInsight || !insight.Done() || insight.OutputID == 0 {
		return e.finish(ctx, d.deny(outcome.Deny(outcome.ReasonNoCandidate,
			"decision %s is not a materialized insight", insight.CycleID)))
	}

	out, err := e.store.GeneratedOutput(ctx, insight.OutputID)
	if err != nil {
		return e.finish(ctx, d.fail(outcome.KindIOFailure, "load output", err))
	}
	if out.Posted {
		return e.finish(ctx, d.deny(outcome.Deny(outcome.ReasonAlreadyPosted,
			"output %d already published as %s", out.ID, out.PublishedID)))
	}
	d.Text = out.Text

	now := e.now()
	e.state.Rollover(now)
	if err := governor.MayPostNow(e.state.Governor, e.cfg.Governor, now); err != nil {
		return e.finish(ctx, d.deny(err))
	}

	publishedID, err := e.publisher.Publish(ctx, out.Text, "")
	if err != nil {
		return e.finish(ctx, d.fail(outcome.KindPublishFailed, "publish output", err))
	}
	d.PublishedID = publishedID

	if err := e.confirm(ctx, out.ID, publishedID); err != nil {
		return e.finish(ctx, d.fail(outcome.KindIOFailure, "confirm", err))
	}
	return e.finish(ctx, d)
}

// ConfirmPublished records that an output was published elsewhere (for
// example by an external poster). The governor counts the post only the
// first time an output is confirmed.
func (e *Engine) ConfirmPublished(ctx context.Context, outputID int64, publishedID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.confirm(ctx, outputID, publishedID); err != nil {
		return outcome.Fail(outcome.KindIOFailure, "confirm", err)
	}
	return nil
}

func (e *Engine) confirm(ctx context.Context, outputID int64, publishedID string) error {
	changed, err := e.store.MarkPosted(ctx, outputID, publishedID, nil)
	if err != nil {
		return err
	}
	if !changed {
		e.logger.Debug("output already confirmed", "output_id", outputID)
		return nil
	}

	e.state.RecordPost(e.now(), outputID, publishedID)
	postsConfirmed.Inc()
	return nil
}
