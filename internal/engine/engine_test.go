package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/ingest"
	"github.com/chelinho139/glitchbot/internal/model"
	"github.com/chelinho139/glitchbot/internal/outcome"
	"github.com/chelinho139/glitchbot/internal/publish"
	"github.com/chelinho139/glitchbot/internal/store"
	"github.com/chelinho139/glitchbot/internal/testutil"
)

type fixture struct {
	store   *store.Store
	clock   *testutil.ManualClock
	gen     *generate.Scripted
	pub     *publish.DryRun
	fetcher *ingest.Fetcher
	engine  *Engine
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialPostIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("post-%d", n)
	}
}

// newFixture wires an engine to a temp store, a scripted generator, a
// dry-run publisher and a feed-backed fetcher, all on one manual clock.
func newFixture(t *testing.T, script generate.Script, feeds ...ingest.Feed) *fixture {
	t.Helper()
	return newFixtureWith(t, script, nil, feeds...)
}

func newFixtureWith(t *testing.T, script generate.Script, pub publish.Publisher, feeds ...ingest.Feed) *fixture {
	t.Helper()

	clock := testutil.NewManualClock(testutil.Epoch)
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f := &fixture{
		store:   s,
		clock:   clock,
		gen:     generate.NewScripted(script),
		pub:     publish.NewDryRun(publish.WithIDs(sequentialPostIDs()), publish.WithLogger(discardLogger())),
		fetcher: ingest.NewFetcher(feeds...),
	}
	if pub == nil {
		pub = f.pub
	}
	f.engine = New(s, f.gen, pub, f.fetcher,
		WithClock(clock.Now),
		WithCycleIDs(testutil.NewSequentialCycleIDs("cycle")),
		WithLogger(discardLogger()),
	)
	return f
}

func (f *fixture) addContent(t *testing.T, id, text string, age time.Duration) {
	t.Helper()
	_, err := f.store.RecordContent(context.Background(), model.ContentItem{
		ExternalID: id,
		Text:       text,
		Topic:      "AI",
		AuthorID:   "author-" + id,
		ObservedAt: f.clock.Now().Add(-age),
	})
	require.NoError(t, err)
}

type failingPublisher struct {
	err error
}

func (p failingPublisher) Publish(context.Context, string, string) (string, error) {
	return "", p.err
}

func TestNew_AppliesDefaults(t *testing.T) {
	f := newFixture(t, generate.Script{})

	cfg := f.engine.Config()
	assert.Equal(t, DefaultTopic, cfg.Topic)
	assert.Equal(t, DefaultOwnerHandle, cfg.OwnerHandle)
	assert.Equal(t, 2, cfg.Governor.MaxPostsPerHour)
	assert.Equal(t, 30*time.Minute, cfg.Governor.MinBetweenPosts)
	assert.Equal(t, 0.9, cfg.SimilarityThreshold)
	assert.Equal(t, 7, cfg.SimilarityWindowDays)
	assert.Equal(t, 15, cfg.PostScoreThreshold)
	assert.Equal(t, publish.MaxPostRunes, cfg.MaxPostRunes)
	assert.Equal(t, 15, f.engine.Scorer().Threshold())
}

func TestPostInsight_MaterializesBestCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, generate.Script{Quote: []string{"Reasoning models keep getting better at math."}})
	f.addContent(t, "a1", "New research and analysis: a breakthrough in reasoning.", time.Hour)
	f.addContent(t, "b2", "gm", 2*time.Hour)

	d := f.engine.PostInsight(ctx, "")

	require.True(t, d.Done(), "decision: %s err=%v", d.Summary(), d.Err)
	assert.Equal(t, ActionPostInsight, d.Action)
	assert.Equal(t, "cycle-0001", d.CycleID)
	assert.Equal(t, int64(1), d.Seq)
	assert.Equal(t, "a1", d.SourceID)
	assert.Equal(t, "Reasoning models keep getting better at math.\n\nhttps://x.com/i/web/status/a1", d.Text)

	out, err := f.store.GeneratedOutput(ctx, d.OutputID)
	require.NoError(t, err)
	assert.Equal(t, d.Text, out.Text)
	assert.Equal(t, "AI", out.Topic)
	assert.Equal(t, []string{"a1"}, out.SourceContentIDs)
	assert.False(t, out.Posted)

	src, err := f.store.Content(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, src.Processed)

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, generate.KindQuote, calls[0].Kind)
	assert.Equal(t, "AI", calls[0].Topic)
	assert.Equal(t, StatusURL("a1"), calls[0].SourceURL)

	// Materializing is not publishing.
	assert.Equal(t, 0, f.engine.State().Governor.PostsThisHour)
	assert.Empty(t, f.pub.Posts())

	metrics, err := f.store.RecentMetrics(ctx, 1)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "cycle", metrics[0].Name)
	assert.Equal(t, "post_insight:done", metrics[0].Value)
}

func TestPostInsight_NoCandidate(t *testing.T) {
	f := newFixture(t, generate.Script{Quote: []string{"unused"}})
	f.addContent(t, "x1", "gm", time.Hour)

	// With a window of 3 the lone item earns a recency bonus of 3, below
	// the threshold of 5.
	f.engine.cfg.RecencyWindow = 3
	f.engine.selector.RecencyWindow = 3

	d := f.engine.PostInsight(context.Background(), "AI")

	assert.Equal(t, StatusDenied, d.Status)
	assert.Equal(t, outcome.ReasonNoCandidate, d.Reason)
	assert.Empty(t, f.gen.Calls(), "no generation without a candidate")
}

func TestPostInsight_EmptyStoreIsNoCandidate(t *testing.T) {
	f := newFixture(t, generate.Script{})

	d := f.engine.PostInsight(context.Background(), "AI")

	assert.Equal(t, StatusDenied, d.Status)
	assert.Equal(t, outcome.ReasonNoCandidate, d.Reason)
	assert.Equal(t, "post_insight:denied:NoCandidate", d.Summary())
}

func TestPostInsight_SourceUsedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, generate.Script{Quote: []string{"First take.", "Second take."}})
	f.addContent(t, "a1", "research breakthrough", time.Minute)

	first := f.engine.PostInsight(ctx, "AI")
	require.True(t, first.Done())

	second := f.engine.PostInsight(ctx, "AI")
	assert.Equal(t, StatusDenied, second.Status)
	assert.Equal(t, outcome.ReasonAlreadyPosted, second.Reason)
	assert.Len(t, f.gen.Calls(), 1, "source check runs before generation")
}

func TestPostInsight_BlockedText(t *testing.T) {
	tests := []struct {
		name    string
		summary []string
	}{
		{"exhausted script", nil},
		{"skip sentinel", []string{"SKIP"}},
		{"skip sentinel lowercase", []string{"  skip "}},
		{"automated prefix", []string{"Automated update about AI"}},
		{"placeholder", []string{"This is an automated post."}},
		{"ellipsis", []string{"..."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, generate.Script{Quote: tt.summary})
			f.addContent(t, "a1", "research breakthrough", time.Minute)

			d := f.engine.PostInsight(ctx, "AI")

			assert.Equal(t, StatusDenied, d.Status)
			assert.Equal(t, outcome.ReasonNoMeaningfulContent, d.Reason)

			outs, err := f.store.RecentOutputs(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, outs)
		})
	}
}

func TestPostInsight_GeneratorFailures(t *testing.T) {
	tests := []struct {
		entry string
		kind  outcome.Kind
	}{
		{generate.ScriptError, outcome.KindGenerationFailure},
		{generate.ScriptRateLimited, outcome.KindRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.entry, func(t *testing.T) {
			f := newFixture(t, generate.Script{Quote: []string{tt.entry}})
			f.addContent(t, "a1", "research breakthrough", time.Minute)

			d := f.engine.PostInsight(context.Background(), "AI")

			assert.Equal(t, StatusFailed, d.Status)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.kind, outcome.KindOf(d.Err))
		})
	}
}

func TestPostInsight_SimilarContentDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, generate.Script{Quote: []string{"Same words here."}})
	f.addContent(t, "a1", "research breakthrough", time.Minute)

	_, err := f.store.RecordGeneratedOutput(ctx, "Same words here.\n\nhttps://x.com/i/web/status/zz", "AI", nil)
	require.NoError(t, err)

	d := f.engine.PostInsight(ctx, "AI")

	assert.Equal(t, StatusDenied, d.Status)
	assert.Equal(t, outcome.ReasonSimilarContentExists, d.Reason)

	src, err := f.store.Content(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, src.Processed, "denied cycles leave sources untouched")
}

func TestPublishOutput_PublishesAndConfirms(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, generate.Script{Quote: []string{"Worth a read."}})
	f.addContent(t, "a1", "research breakthrough", time.Minute)

	insight := f.engine.PostInsight(ctx, "AI")
	require.True(t, insight.Done())

	d := f.engine.PublishOutput(ctx, insight)
	require.True(t, d.Done(), "decision: %s err=%v", d.Summary(), d.Err)
	assert.Equal(t, ActionPublish, d.Action)
	assert.Equal(t, "post-1", d.PublishedID)
	assert.Equal(t, insight.OutputID, d.OutputID)

	out, err := f.store.GeneratedOutput(ctx, insight.OutputID)
	require.NoError(t, err)
	assert.True(t, out.Posted)
	assert.Equal(t, "post-1", out.PublishedID)
	require.NotNil(t, out.PostedAt)
	assert.True(t, out.PostedAt.Equal(testutil.Epoch))

	posts := f.pub.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, insight.Text, posts[0].Text)
	assert.Empty(t, posts[0].InReplyTo)

	state := f.engine.State()
	assert.Equal(t, 1, state.Governor.PostsThisHour)
	require.Len(t, state.PostingHistory, 1)
	assert.Equal(t, "post-1", state.PostingHistory[0].PublishedID)
	assert.Equal(t, int64(1), state.Engagement.TotalThreadsPosted)

	again := f.engine.PublishOutput(ctx, insight)
	assert.Equal(t, StatusDenied, again.Status)
	assert.Equal(t, outcome.ReasonAlreadyPosted, again.Reason)
	assert.Len(t, f.pub.Posts(), 1)
}

func TestPublishOutput_RejectsNonInsightDecision(t *testing.T) {
	f := newFixture(t, generate.Script{})

	denied := Decision{Action: ActionPostInsight, Status: StatusDenied, Reason: outcome.ReasonTooSoon}
	d := f.engine.PublishOutput(context.Background(), denied)

	assert.Equal(t, StatusDenied, d.Status)
	assert.Equal(t, outcome.ReasonNoCandidate, d.Reason)
	assert.Empty(t, f.pub.Posts())
}

func TestPublishOutput_GovernorLimits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, generate.Script{Quote: []string{
		"Reasoning models keep improving on math.",
		"Protein folding data is now open to every lab.",
		"A new chip design halves inference cost.",
	}})
	e := f.engine

	f.addContent(t, "a1", "research breakthrough", time.Minute)
	first := e.PostInsight(ctx, "AI")
	require.True(t, first.Done())

	f.addContent(t, "a2", "research breakthrough analysis data study", 0)
	second := e.PostInsight(ctx, "AI")
	require.True(t, second.Done())
	require.Equal(t, "a2", second.SourceID)

	// 09:00
	require.True(t, e.PublishOutput(ctx, first).Done())

	tooSoon := e.PublishOutput(ctx, second)
	assert.Equal(t, StatusDenied, tooSoon.Status)
	assert.Equal(t, outcome.ReasonTooSoon, tooSoon.Reason)
	assert.Equal(t, 30*time.Minute, tooSoon.Wait)

	// 09:31
	f.clock.Advance(31 * time.Minute)
	require.True(t, e.PublishOutput(ctx, second).Done())
	assert.Equal(t, 2, e.State().Governor.PostsThisHour)

	// 09:51: the hourly limit is checked before spacing.
	f.clock.Advance(20 * time.Minute)
	limited := e.PostInsight(ctx, "AI")
	assert.Equal(t, StatusDenied, limited.Status)
	assert.Equal(t, outcome.ReasonHourlyLimitReached, limited.Reason)

	// 10:01: new hour, 30 minutes since the last post.
	f.clock.Advance(10 * time.Minute)
	f.addContent(t, "a3", "research breakthrough analysis data study report whitepaper", 0)
	third := e.PostInsight(ctx, "AI")
	require.True(t, third.Done(), "decision: %s err=%v", third.Summary(), third.Err)
	require.True(t, e.PublishOutput(ctx, third).Done())
	assert.Equal(t, 1, e.State().Governor.PostsThisHour)
	assert.Len(t, f.pub.Posts(), 3)
}

func TestPublishOutput_PublishFailureLeavesOutputUnposted(t *testing.T) {
	ctx := context.Background()
	pub := failingPublisher{err: fmt.Errorf("upstream: %w", outcome.ErrRateLimited)}
	f := newFixtureWith(t, generate.Script{Quote: []string{"Worth a read."}}, pub)
	f.addContent(t, "a1", "research breakthrough", time.Minute)

	insight := f.engine.PostInsight(ctx, "AI")
	require.True(t, insight.Done())

	d := f.engine.PublishOutput(ctx, insight)
	assert.Equal(t, StatusFailed, d.Status)
	assert.Equal(t, outcome.KindRateLimited, d.Kind)
	assert.True(t, outcome.IsRateLimited(d.Err))

	out, err := f.store.GeneratedOutput(ctx, insight.OutputID)
	require.NoError(t, err)
	assert.False(t, out.Posted)
	assert.Equal(t, 0, f.engine.State().Governor.PostsThisHour)
}

func TestConfirmPublished_CountsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, generate.Script{Quote: []string{"Worth a read."}})
	f.addContent(t, "a1", "research breakthrough", time.Minute)

	insight := f.engine.PostInsight(ctx, "AI")
	require.True(t, insight.Done())

	require.NoError(t, f.engine.ConfirmPublished(ctx, insight.OutputID, "ext-1"))
	require.NoError(t, f.engine.ConfirmPublished(ctx, insight.OutputID, "ext-2"))

	state := f.engine.State()
	assert.Equal(t, 1, state.Governor.PostsThisHour)
	assert.Len(t, state.PostingHistory, 1)

	out, err := f.store.GeneratedOutput(ctx, insight.OutputID)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", out.PublishedID)
}

func TestConfirmPublished_UnknownOutput(t *testing.T) {
	f := newFixture(t, generate.Script{})

	err := f.engine.ConfirmPublished(context.Background(), 999, "ext-1")

	require.Error(t, err)
	assert.Equal(t, outcome.KindIOFailure, outcome.KindOf(err))
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, f.engine.State().Governor.PostsThisHour)
}

func mentionFeed(mentions ...ingest.Mention) ingest.Feed {
	return ingest.Feed{Mentions: mentions}
}

func TestReplyToMention_AnswersOnce(t *testing.T) {
	ctx := context.Background()
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "@glitchbot what do you think?"}
	f := newFixture(t, generate.Script{Reply: []string{"Good question, thanks!", "Should never be used."}}, mentionFeed(m))
	mention := model.Mention{ID: m.ID, Author: m.Author, Text: m.Text}

	first := f.engine.ReplyToMention(ctx, mention)
	require.True(t, first.Done(), "decision: %s err=%v", first.Summary(), first.Err)
	assert.Equal(t, ActionReply, first.Action)
	assert.Equal(t, "m1", first.SourceID)
	assert.Equal(t, "post-1", first.ResponseID)
	assert.Equal(t, "Good question, thanks!", first.Text)

	rec, err := f.store.Response(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "Good question, thanks!", rec.ResponseText)
	assert.Equal(t, "post-1", rec.ResponseID)
	assert.Equal(t, "AI knowledge, priority=false, original_post_id=none", rec.ContextUsed)

	second := f.engine.ReplyToMention(ctx, mention)
	assert.Equal(t, StatusDenied, second.Status)
	assert.Equal(t, outcome.ReasonAlreadyResponded, second.Reason)

	assert.Len(t, f.gen.Calls(), 1, "already-responded check runs before generation")
	posts := f.pub.Posts()
	require.Len(t, posts, 1)
	assert.Equal(t, "m1", posts[0].InReplyTo)

	// Replies do not spend the posting budget.
	assert.Equal(t, 0, f.engine.State().Governor.PostsThisHour)
	assert.Equal(t, int64(1), f.engine.State().Engagement.TotalMentionResponses)
}

func TestReplyToMention_RequestCarriesContext(t *testing.T) {
	ctx := context.Background()
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "thoughts?"}
	f := newFixture(t, generate.Script{Reply: []string{"Sure."}}, mentionFeed(m))
	_, err := f.store.UpsertKnowledge(ctx, model.KnowledgeFact{Topic: "AI", Concept: "scaling", Description: "bigger helps", ConfidenceScore: 0.9})
	require.NoError(t, err)

	d := f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Author: "alice", Text: "thoughts?"})
	require.True(t, d.Done())

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, generate.KindReply, calls[0].Kind)
	assert.Equal(t, "thoughts?", calls[0].MentionText)
	assert.Equal(t, "alice", calls[0].AuthorHandle)
	assert.Equal(t, StatusURL("m1"), calls[0].SourceURL)
	assert.Empty(t, calls[0].SourceText)
	require.Len(t, calls[0].Facts, 1)
	assert.Equal(t, "scaling", calls[0].Facts[0].Concept)
}

func TestReplyToMention_EmptyIDDenied(t *testing.T) {
	f := newFixture(t, generate.Script{Reply: []string{"unused"}})

	d := f.engine.ReplyToMention(context.Background(), model.Mention{Text: "hi"})

	assert.Equal(t, StatusDenied, d.Status)
	assert.Equal(t, outcome.ReasonNoMeaningfulContent, d.Reason)
	assert.Empty(t, f.gen.Calls())
}

func TestReplyToMention_EmptyReplyDenied(t *testing.T) {
	ctx := context.Background()
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "hello"}
	f := newFixture(t, generate.Script{Reply: []string{"SKIP"}}, mentionFeed(m))

	d := f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Author: "alice", Text: "hello"})

	assert.Equal(t, StatusDenied, d.Status)
	assert.Equal(t, outcome.ReasonNoMeaningfulContent, d.Reason)

	responded, err := f.store.HasResponded(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, responded, "a skipped mention may be answered later")
	assert.Empty(t, f.pub.Posts())
}

func TestReplyToMention_TruncatesLongReply(t *testing.T) {
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "go on"}
	long := strings.TrimSpace(strings.Repeat("a ", 150))
	f := newFixture(t, generate.Script{Reply: []string{long}}, mentionFeed(m))

	d := f.engine.ReplyToMention(context.Background(), model.Mention{ID: "m1", Author: "alice", Text: "go on"})

	require.True(t, d.Done())
	assert.Equal(t, 273, utf8.RuneCountInString(d.Text))
	assert.True(t, strings.HasSuffix(d.Text, "..."))
	assert.Equal(t, d.Text, f.pub.Posts()[0].Text)
}

func TestReplyToMention_PublishFailure(t *testing.T) {
	ctx := context.Background()
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "hello"}

	tests := []struct {
		name string
		err  error
		kind outcome.Kind
	}{
		{"rate limited", fmt.Errorf("429: %w", outcome.ErrRateLimited), outcome.KindRateLimited},
		{"other error", errors.New("connection reset"), outcome.KindPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixtureWith(t, generate.Script{Reply: []string{"Hi!"}}, failingPublisher{err: tt.err}, mentionFeed(m))

			d := f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Author: "alice", Text: "hello"})

			assert.Equal(t, StatusFailed, d.Status)
			assert.Equal(t, tt.kind, d.Kind)

			responded, err := f.store.HasResponded(ctx, "m1")
			require.NoError(t, err)
			assert.False(t, responded)
		})
	}
}

func TestReplyToMention_FetchFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "see this", FetchError: "timeout"}
	f := newFixture(t, generate.Script{Reply: []string{"Thanks!", "Thanks again!"}}, mentionFeed(m))

	d := f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Author: "alice", Text: "see this"})
	require.True(t, d.Done())

	// Not in any feed: no original, and not a failure.
	d = f.engine.ReplyToMention(ctx, model.Mention{ID: "m9", Author: "bob", Text: "and this"})
	require.True(t, d.Done())

	assert.Equal(t, 1, f.engine.Stats().OriginalFetchFailures)
	assert.Zero(t, d.SideOutputID)
}

func TestReplyToMention_StoringOriginalFailureIsBestEffort(t *testing.T) {
	ctx := context.Background()
	original := &ingest.Item{
		ID:      "o1",
		Text:    "research breakthrough with new data",
		Metrics: map[string]int64{model.MetricFollowers: 5000},
	}
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "look", Original: original}
	f := newFixture(t, generate.Script{Reply: []string{"Looks good."}, Quote: []string{"unused"}}, mentionFeed(m))

	_, err := f.store.DB().Exec(`
		CREATE TRIGGER reject_content BEFORE INSERT ON monitored_content
		BEGIN SELECT RAISE(ABORT, 'disk full'); END
	`)
	require.NoError(t, err)
	misses := promtest.ToFloat64(originalFetchMisses)

	d := f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Author: "alice", Text: "look"})

	require.True(t, d.Done(), "decision: %s err=%v", d.Summary(), d.Err)
	assert.Equal(t, "Looks good.", d.Text)
	assert.Zero(t, d.SideOutputID)
	assert.Equal(t, 1, f.engine.Stats().OriginalFetchFailures)
	assert.Equal(t, misses+1, promtest.ToFloat64(originalFetchMisses))

	calls := f.gen.Calls()
	require.Len(t, calls, 1)
	assert.Empty(t, calls[0].SourceText)

	rec, err := f.store.Response(ctx, "m1")
	require.NoError(t, err)
	assert.Contains(t, rec.ContextUsed, "original_post_id=none")
}

func TestReplyToMention_RepliesAreNotPhraseFiltered(t *testing.T) {
	tests := []string{
		"Automated market makers are older than most people think.",
		"...and that's why the benchmark matters.",
		"Generated post? No, written by hand.",
	}

	for _, reply := range tests {
		t.Run(reply, func(t *testing.T) {
			m := ingest.Mention{ID: "m1", Author: "alice", Text: "how do AMMs work?"}
			f := newFixture(t, generate.Script{Reply: []string{reply}}, mentionFeed(m))

			d := f.engine.ReplyToMention(context.Background(), model.Mention{ID: "m1", Author: "alice", Text: "how do AMMs work?"})

			require.Equal(t, StatusDone, d.Status, "reason %s", d.Reason)
			assert.Equal(t, reply, d.Text)
			require.Len(t, f.pub.Posts(), 1)
			assert.Equal(t, reply, f.pub.Posts()[0].Text)
		})
	}
}

func TestReplyToMention_OriginalWithoutFollowerCountScoresAsUnknownAuthor(t *testing.T) {
	// One keyword (+10), well structured (+5), no follower count (-5): 10.
	text := "A new study shows promising results for everyone involved in the field today, and many people have waited for it."
	require.Greater(t, utf8.RuneCountInString(text), 100)

	m := ingest.Mention{ID: "m1", Author: "alice", Text: "look", Original: &ingest.Item{ID: "o1", Text: text}}
	f := newFixture(t, generate.Script{Reply: []string{"Interesting."}, Quote: []string{"unused"}}, mentionFeed(m))

	d := f.engine.ReplyToMention(context.Background(), model.Mention{ID: "m1", Author: "alice", Text: "look"})

	require.True(t, d.Done())
	assert.Zero(t, d.SideOutputID)
	assert.Len(t, f.gen.Calls(), 1)
}

func TestEngine_CountsDecisionsInMetrics(t *testing.T) {
	ctx := context.Background()
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "hello"}
	f := newFixture(t, generate.Script{Reply: []string{"Hi!"}}, mentionFeed(m))

	done := decisionCount.WithLabelValues(string(ActionReply), string(StatusDone))
	denied := decisionCount.WithLabelValues(string(ActionReply), string(StatusDenied))
	responded := denialCount.WithLabelValues(string(outcome.ReasonAlreadyResponded))
	doneBefore, deniedBefore, respondedBefore := promtest.ToFloat64(done), promtest.ToFloat64(denied), promtest.ToFloat64(responded)

	require.True(t, f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Author: "alice", Text: "hello"}).Done())
	d := f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Author: "alice", Text: "hello"})
	require.Equal(t, outcome.ReasonAlreadyResponded, d.Reason)

	assert.Equal(t, doneBefore+1, promtest.ToFloat64(done))
	assert.Equal(t, deniedBefore+1, promtest.ToFloat64(denied))
	assert.Equal(t, respondedBefore+1, promtest.ToFloat64(responded))
}

func TestReplyToMention_StoresOriginalAndPreparesSideOutput(t *testing.T) {
	ctx := context.Background()
	original := &ingest.Item{
		ID:      "o1",
		Text:    "New research with open data on protein design.",
		Author:  "carol",
		Metrics: map[string]int64{model.MetricFollowers: 5000},
	}
	m := ingest.Mention{ID: "m2", Author: "LemonCheli", Text: "worth quoting?", Original: original}
	f := newFixture(t, generate.Script{
		Reply: []string{"Nice find."},
		Quote: []string{"Open protein data will speed up every lab."},
	}, mentionFeed(m))

	d := f.engine.ReplyToMention(ctx, model.Mention{ID: "m2", Author: "LemonCheli", Text: "worth quoting?"})

	require.True(t, d.Done(), "decision: %s err=%v", d.Summary(), d.Err)
	require.NotZero(t, d.SideOutputID)

	stored, err := f.store.Content(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, MentionTopic, stored.Topic)
	assert.Equal(t, "carol", stored.AuthorID)
	assert.True(t, stored.Processed)

	rec, err := f.store.Response(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "AI knowledge, priority=true, original_post_id=o1", rec.ContextUsed)

	side, err := f.store.GeneratedOutput(ctx, d.SideOutputID)
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, side.SourceContentIDs)
	assert.Equal(t, "Open protein data will speed up every lab.\n\n"+StatusURL("o1"), side.Text)
	assert.False(t, side.Posted)

	calls := f.gen.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, generate.KindReply, calls[0].Kind)
	assert.Equal(t, original.Text, calls[0].SourceText)
	assert.Equal(t, generate.KindQuote, calls[1].Kind)
	assert.Equal(t, StatusURL("o1"), calls[1].SourceURL)
}

func TestReplyToMention_LowScoreOriginalGetsNoSideOutput(t *testing.T) {
	m := ingest.Mention{ID: "m1", Author: "alice", Text: "lol", Original: &ingest.Item{ID: "o1", Text: "gm"}}
	f := newFixture(t, generate.Script{Reply: []string{"gm to you"}, Quote: []string{"unused"}}, mentionFeed(m))

	d := f.engine.ReplyToMention(context.Background(), model.Mention{ID: "m1", Author: "alice", Text: "lol"})

	require.True(t, d.Done())
	assert.Zero(t, d.SideOutputID)
	assert.Len(t, f.gen.Calls(), 1)
}

func TestReplyToMention_SideOutputFailureKeepsReply(t *testing.T) {
	m := ingest.Mention{
		ID:       "m1",
		Author:   "alice",
		Text:     "look",
		Original: &ingest.Item{ID: "o1", Text: "research breakthrough with new data"},
	}
	f := newFixture(t, generate.Script{Reply: []string{"Looks good."}, Quote: []string{generate.ScriptError}}, mentionFeed(m))

	d := f.engine.ReplyToMention(context.Background(), model.Mention{ID: "m1", Author: "alice", Text: "look"})

	require.True(t, d.Done())
	assert.Zero(t, d.SideOutputID)
	assert.Equal(t, 1, f.engine.Stats().SideOutputFailures)
}

func TestEngine_ClosedStoreIsIOFailure(t *testing.T) {
	f := newFixture(t, generate.Script{Quote: []string{"unused"}, Reply: []string{"unused"}})
	require.NoError(t, f.store.Close())
	ctx := context.Background()

	insight := f.engine.PostInsight(ctx, "AI")
	assert.Equal(t, StatusFailed, insight.Status)
	assert.Equal(t, outcome.KindIOFailure, insight.Kind)

	reply := f.engine.ReplyToMention(ctx, model.Mention{ID: "m1", Text: "hi"})
	assert.Equal(t, StatusFailed, reply.Status)
	assert.Equal(t, outcome.KindIOFailure, reply.Kind)

	err := f.engine.Bootstrap(ctx)
	require.Error(t, err)
	assert.Equal(t, outcome.KindIOFailure, outcome.KindOf(err))

	assert.Empty(t, f.gen.Calls())
}

func TestBootstrap_RestoresStateFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, generate.Script{})

	id, err := f.store.RecordGeneratedOutput(ctx, "earlier post", "AI", nil)
	require.NoError(t, err)
	f.clock.Advance(10 * time.Minute)
	_, err = f.store.MarkPosted(ctx, id, "ext-1", nil)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		_, err := f.store.UpsertKnowledge(ctx, model.KnowledgeFact{
			Topic:       "AI",
			Concept:     fmt.Sprintf("concept-%d", i),
			Description: "fact",
		})
		require.NoError(t, err)
	}
	_, err = f.store.UpsertKnowledge(ctx, model.KnowledgeFact{Topic: "crypto", Concept: "l2", Description: "rollups"})
	require.NoError(t, err)

	// 09:20
	f.clock.Advance(10 * time.Minute)
	require.NoError(t, f.engine.Bootstrap(ctx))

	state := f.engine.State()
	assert.Equal(t, 1, state.Governor.PostsThisHour)
	require.NotNil(t, state.Governor.LastPostTime)
	assert.True(t, state.Governor.LastPostTime.Equal(testutil.Epoch.Add(10*time.Minute)))
	assert.Len(t, state.Knowledge["AI"], 5)
	assert.Len(t, state.Knowledge["crypto"], 1)
	assert.Len(t, state.Knowledge["biotech"], 0)
	assert.Equal(t, int64(1), state.Engagement.TotalThreadsPosted)
	assert.True(t, state.BootstrappedAt.Equal(f.clock.Now()))

	d := f.engine.PostInsight(ctx, "AI")
	assert.Equal(t, outcome.ReasonTooSoon, d.Reason)
	assert.Equal(t, 20*time.Minute, d.Wait)
}

func TestClassifyMentions_PriorityFirst(t *testing.T) {
	f := newFixture(t, generate.Script{})

	ordered := f.engine.ClassifyMentions([]model.Mention{
		{ID: "m1", Author: "alice", Text: "hi"},
		{ID: "m2", Author: "bob", Text: "ping @LemonCheli about this"},
		{ID: "m3", Author: "carol", Text: "yo"},
	})

	ids := make([]string, len(ordered))
	for i, m := range ordered {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"m2", "m1", "m3"}, ids)

	state := f.engine.State()
	require.Len(t, state.PriorityMentions, 1)
	assert.Equal(t, "m2", state.PriorityMentions[0].ID)
	assert.Len(t, state.GeneralMentions, 2)
}

func TestDecideFollow(t *testing.T) {
	f := newFixture(t, generate.Script{})
	e := f.engine

	owner := e.DecideFollow("@lemoncheli", "gm", nil)
	assert.True(t, owner.Follow)
	assert.Equal(t, "owner handle", owner.Reason)

	good := e.DecideFollow("researcher", "Our research shows a breakthrough in data efficiency.",
		model.Metrics{model.MetricFollowers: 20000})
	assert.True(t, good.Follow)
	assert.GreaterOrEqual(t, good.Score, 15)

	spam := e.DecideFollow("shill", "pump it to the moon, lambo soon", model.Metrics{model.MetricFollowers: 50})
	assert.False(t, spam.Follow)
	assert.Less(t, spam.Score, 0)

	assert.Len(t, e.State().FollowDecisions, 3)
}

func TestState_ReturnsCopy(t *testing.T) {
	f := newFixture(t, generate.Script{})
	f.engine.ClassifyMentions([]model.Mention{{ID: "m1", Text: "hi"}})

	state := f.engine.State()
	state.GeneralMentions[0].ID = "changed"
	state.Knowledge["AI"] = nil

	fresh := f.engine.State()
	assert.Equal(t, "m1", fresh.GeneralMentions[0].ID)
	_, ok := fresh.Knowledge["AI"]
	assert.False(t, ok)
}

func TestDecision_Summary(t *testing.T) {
	assert.Equal(t, "reply_to_mention:done", Decision{Action: ActionReply, Status: StatusDone}.Summary())
	assert.Equal(t, "post_insight:denied:TooSoon",
		Decision{Action: ActionPostInsight, Status: StatusDenied, Reason: outcome.ReasonTooSoon}.Summary())
	assert.Equal(t, "publish_output:failed:RateLimited",
		Decision{Action: ActionPublish, Status: StatusFailed, Kind: outcome.KindRateLimited}.Summary())
}
