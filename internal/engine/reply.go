package engine

import (
	"context"
	"fmt"

	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/model"
	"github.com/chelinho139/glitchbot/internal/outcome"
	"github.com/chelinho139/glitchbot/internal/quality"
)

// ReplyToMention runs one reply cycle for an inbound mention.
//
// Stages:
//
//	AlreadyRespondedCheck → FetchOriginal (best effort) → Generate →
//	EmptyCheck → Publish → RecordResponse → [SideOutput]
//
// The already-responded check runs before any generation work. When the
// mention refers to an original post scoring at least PostScoreThreshold, a
// quote output about that post is prepared as a side output; its failures are
// logged and counted but never change the reply's Decision.
func (e *Engine) ReplyToMention(ctx context.Context, mention model.Mention) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	d := e.begin(ActionReply)
	d.SourceID = mention.ID
	if mention.ID == "" {
		return e.finish(ctx, d.deny(outcome.Deny(outcome.ReasonNoMeaningfulContent, "mention has no id")))
	}

	var ok bool
	if d, ok = d.check("check mention", e.guard.CheckMention(ctx, mention.ID)); !ok {
		return e.finish(ctx, d)
	}

	original := e.fetchOriginal(ctx, mention.ID)
	var originalScore *quality.Assessment
	if original != nil {
		original.Topic = MentionTopic
		if _, err := e.store.RecordContent(ctx, *original); err != nil {
			e.stats.OriginalFetchFailures++
			originalFetchMisses.Inc()
			e.logger.Warn("storing original post failed", "mention_id", mention.ID, "error", err)
			original = nil
		}
	}
	if original != nil {
		// A fetched post always carries author metrics; a missing follower
		// count scores as zero followers.
		a := e.scorer.Score(original.Text, &quality.AuthorMetrics{
			Followers: original.EngagementMetrics.Get(model.MetricFollowers),
		})
		originalScore = &a
	}

	topic := e.cfg.Topic
	facts := e.knowledge(ctx, topic)

	req := generate.Request{
		Kind:         generate.KindReply,
		Topic:        topic,
		Facts:        facts,
		AuthorHandle: mention.Author,
		MentionText:  mention.Text,
		SourceURL:    StatusURL(mention.ID),
	}
	if original != nil {
		req.SourceText = original.Text
	}

	text, err := e.generator.Generate(ctx, req)
	if err != nil {
		return e.finish(ctx, d.fail(outcome.KindGenerationFailure, "generate reply", err))
	}
	if isEmptyReply(text) {
		return e.finish(ctx, d.deny(outcome.Deny(outcome.ReasonNoMeaningfulContent,
			"generated reply is empty")))
	}
	text = TruncateReply(text, e.cfg.MaxPostRunes)

	responseID, err := e.publisher.Publish(ctx, text, mention.ID)
	if err != nil {
		return e.finish(ctx, d.fail(outcome.KindPublishFailed, "publish reply", err))
	}
	d.ResponseID = responseID
	d.Text = text

	originalID := "none"
	if original != nil {
		originalID = original.ExternalID
	}
	err = e.store.RecordResponse(ctx, model.ResponseRecord{
		MentionID:    mention.ID,
		MentionText:  mention.Text,
		ResponseText: text,
		ResponseID:   responseID,
		ContextUsed: fmt.Sprintf("%s knowledge, priority=%t, original_post_id=%s",
			topic, e.isOwner(mention.Author), originalID),
	})
	if err != nil {
		// The reply is already out; without the record it may be sent again.
		return e.finish(ctx, d.fail(outcome.KindIOFailure, "record response", err))
	}
	e.state.Engagement.TotalMentionResponses++

	if original != nil && originalScore.Score >= e.cfg.PostScoreThreshold {
		d.SideOutputID = e.prepareSideOutput(ctx, d.CycleID, topic, facts, original)
	}

	return e.finish(ctx, d)
}

// prepareSideOutput materializes a quote output about a high-scoring
// original post. Returns the output id, or 0 when nothing was stored.
func (e *Engine) prepareSideOutput(ctx context.Context, cycleID, topic string, facts []model.KnowledgeFact, original *model.ContentItem) int64 {
	logger := e.logger.With("cycle_id", cycleID, "source_id", original.ExternalID)

	sideFailed := func(stage string, err error) int64 {
		e.stats.SideOutputFailures++
		sideOutputFailures.Inc()
		logger.Warn("side output failed", "stage", stage, "error", err)
		return 0
	}

	if err := e.guard.CheckSource(ctx, original.ExternalID); err != nil {
		if outcome.IsDenial(err) {
			logger.Debug("side output skipped", "reason", outcome.ReasonOf(err))
			return 0
		}
		return sideFailed("check source", err)
	}

	url := StatusURL(original.ExternalID)
	summary, err := e.generator.Generate(ctx, generate.Request{
		Kind:         generate.KindQuote,
		Topic:        topic,
		Facts:        facts,
		SourceText:   original.Text,
		SourceURL:    url,
		AuthorHandle: original.AuthorID,
	})
	if err != nil {
		return sideFailed("generate", err)
	}
	if isBlocked(summary) {
		logger.Debug("side output skipped", "reason", outcome.ReasonNoMeaningfulContent)
		return 0
	}

	text := ComposeQuote(summary, url, e.cfg.MaxPostRunes)
	if err := e.guard.CheckContent(ctx, text); err != nil {
		if outcome.IsDenial(err) {
			logger.Debug("side output skipped", "reason", outcome.ReasonOf(err))
			return 0
		}
		return sideFailed("check content", err)
	}

	id, err := e.store.RecordGeneratedOutput(ctx, text, topic, []string{original.ExternalID})
	if err != nil {
		return sideFailed("materialize", err)
	}
	e.state.Engagement.TotalThreadsGenerated++
	logger.Info("side output prepared", "output_id", id)
	return id
}
