package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chelinho139/glitchbot/internal/curation"
	"github.com/chelinho139/glitchbot/internal/dedup"
	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/governor"
	"github.com/chelinho139/glitchbot/internal/model"
	"github.com/chelinho139/glitchbot/internal/outcome"
	"github.com/chelinho139/glitchbot/internal/publish"
	"github.com/chelinho139/glitchbot/internal/quality"
	"github.com/chelinho139/glitchbot/internal/store"
)

// PostFetcher looks up the post a mention refers to.
// Returns nil without error when the mention stands alone.
type PostFetcher interface {
	FetchOriginal(ctx context.Context, mentionID string) (*model.ContentItem, error)
}

// Stats counts best-effort sub-operations that failed without failing
// their cycle.
type Stats struct {
	OriginalFetchFailures int `json:"original_fetch_failures"`
	SideOutputFailures    int `json:"side_output_failures"`
	KnowledgeFailures     int `json:"knowledge_failures"`
}

// Engine runs decision cycles against the store and its collaborators.
//
// Thread-safety model:
//   - Every public cycle method holds the engine mutex for its whole run,
//     so accidental concurrent calls serialize instead of interleaving.
//   - The store serializes its own writes (single connection).
//
// INVARIANTS:
//   - Each cycle returns exactly one Decision with a terminal Status
//   - Governor state advances only on a confirmed publish
//   - No cycle panics or exits; failures are values
type Engine struct {
	mu sync.Mutex

	store     *store.Store
	generator generate.Generator
	publisher publish.Publisher
	fetcher   PostFetcher

	cfg      Config
	now      func() time.Time
	cycleIDs CycleIDGenerator
	seq      sequence
	logger   *slog.Logger

	scorer   *quality.Scorer
	selector *curation.Selector
	guard    *dedup.Guard

	state SessionState
	stats Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig sets the cycle tunables. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithCycleIDs overrides the cycle id generator (default UUIDv7Generator).
func WithCycleIDs(gen CycleIDGenerator) Option {
	return func(e *Engine) {
		e.cycleIDs = gen
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine.
//
// fetcher may be nil, in which case replies never see an original post.
func New(
	s *store.Store,
	gen generate.Generator,
	pub publish.Publisher,
	fetcher PostFetcher,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:     s,
		generator: gen,
		publisher: pub,
		fetcher:   fetcher,
		cfg:       DefaultConfig(),
		now:       time.Now,
		cycleIDs:  UUIDv7Generator{},
		logger:    slog.Default(),
		state:     NewSessionState(),
	}

	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.withDefaults()

	e.scorer = quality.NewScorer(quality.Options{
		HighQuality:     e.cfg.HighQualityKeywords,
		Negative:        e.cfg.NegativeKeywords,
		MinFollowers:    e.cfg.MinFollowers,
		AcceptThreshold: e.cfg.PostScoreThreshold,
	})

	e.selector = curation.NewSelector(e.scorer.HighQuality())
	e.selector.RecencyWindow = e.cfg.RecencyWindow
	e.selector.ScoreThreshold = e.cfg.CandidateThreshold

	e.guard = dedup.NewGuard(s)
	e.guard.Threshold = e.cfg.SimilarityThreshold
	e.guard.WindowDays = e.cfg.SimilarityWindowDays

	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Scorer returns the engine's quality scorer.
func (e *Engine) Scorer() *quality.Scorer {
	return e.scorer
}

// State returns a copy of the session state.
func (e *Engine) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.clone()
}

// Stats returns a copy of the best-effort failure counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Bootstrap rebuilds session state from the store: governor state from the
// last hour of posts, seed-topic knowledge and the engagement snapshot.
// Any previous in-memory state is replaced.
func (e *Engine) Bootstrap(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	posted, err := e.store.PostedOutputsSince(ctx, now.Add(-time.Hour))
	if err != nil {
		return outcome.Fail(outcome.KindIOFailure, "bootstrap", err)
	}

	next := NewSessionState()
	next.Governor = governor.Restore(posted, now)

	for _, topic := range e.cfg.SeedTopics {
		facts, err := e.store.KnowledgeForTopic(ctx, topic, seedKnowledgeLimit)
		if err != nil {
			return outcome.Fail(outcome.KindIOFailure, "bootstrap", err)
		}
		next.Knowledge[topic] = facts
	}

	next.Engagement, err = e.store.EngagementSnapshot(ctx)
	if err != nil {
		return outcome.Fail(outcome.KindIOFailure, "bootstrap", err)
	}

	next.BootstrappedAt = now
	next.Version = e.state.Version + 1
	e.state = next

	e.logger.Info("session bootstrapped",
		"posts_this_hour", next.Governor.PostsThisHour,
		"seed_topics", len(e.cfg.SeedTopics),
		"total_posted", next.Engagement.TotalThreadsPosted)
	return nil
}

// ClassifyMentions files inbound mentions into the priority and general
// queues of the session state and returns them in handling order, priority
// mentions first.
func (e *Engine) ClassifyMentions(mentions []model.Mention) []model.Mention {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.ClassifyMentions(mentions, e.cfg.OwnerHandle)
}

// DecideFollow decides whether to follow an author. The owner is always
// followed; anyone else is followed when their text scores as accepted.
// The decision is recorded in session state.
func (e *Engine) DecideFollow(author, text string, metrics model.Metrics) FollowDecision {
	e.mu.Lock()
	defer e.mu.Unlock()

	fd := FollowDecision{Author: author}
	if e.isOwner(author) {
		fd.Follow = true
		fd.Reason = "owner handle"
	} else {
		a := e.scorer.Score(text, quality.AuthorMetricsFrom(metrics))
		fd.Follow = a.Accept
		fd.Score = a.Score
		fd.Reason = a.Rationale
	}

	e.state.RecordFollowDecision(fd)
	return fd
}

func (e *Engine) isOwner(author string) bool {
	owner := quality.Fold(strings.TrimPrefix(e.cfg.OwnerHandle, "@"))
	return owner != "" && strings.Contains(quality.Fold(strings.TrimPrefix(author, "@")), owner)
}

// begin opens a decision cycle.
func (e *Engine) begin(action Action) Decision {
	return Decision{
		CycleID: e.cycleIDs.Generate(),
		Seq:     e.seq.next(),
		Action:  action,
	}
}

// finish logs the decision, updates counters and writes the metrics log row.
// A failed metrics write is logged but does not change the decision.
func (e *Engine) finish(ctx context.Context, d Decision) Decision {
	if d.Status == "" {
		d.Status = StatusDone
	}

	decisionCount.WithLabelValues(string(d.Action), string(d.Status)).Inc()

	attrs := []any{"cycle_id", d.CycleID, "action", d.Action}
	switch d.Status {
	case StatusDone:
		e.logger.Info("decision done", append(attrs,
			"output_id", d.OutputID,
			"source_id", d.SourceID,
			"response_id", d.ResponseID)...)
	case StatusDenied:
		denialCount.WithLabelValues(string(d.Reason)).Inc()
		e.logger.Debug("decision denied", append(attrs, "reason", d.Reason, "detail", d.Err)...)
	case StatusFailed:
		failureCount.WithLabelValues(string(d.Kind)).Inc()
		if d.Kind == outcome.KindRateLimited {
			e.logger.Warn("decision rate limited", append(attrs, "error", d.Err)...)
		} else {
			e.logger.Error("decision failed", append(attrs, "kind", d.Kind, "error", d.Err)...)
		}
	}

	if err := e.store.RecordMetric(ctx, "cycle", d.Summary()); err != nil {
		e.logger.Warn("metrics log write failed", "cycle_id", d.CycleID, "error", err)
	}
	return d
}

// knowledge loads grounding facts for a topic. Errors are logged and
// counted; generation proceeds without facts.
func (e *Engine) knowledge(ctx context.Context, topic string) []model.KnowledgeFact {
	facts, err := e.store.KnowledgeForTopic(ctx, topic, e.cfg.KnowledgeLimit)
	if err != nil {
		e.stats.KnowledgeFailures++
		e.logger.Warn("knowledge lookup failed", "topic", topic, "error", err)
		return nil
	}
	return facts
}

// fetchOriginal is the best-effort original-post lookup of a reply.
// Failures are counted and logged; the reply proceeds without the original.
func (e *Engine) fetchOriginal(ctx context.Context, mentionID string) *model.ContentItem {
	if e.fetcher == nil {
		return nil
	}
	original, err := e.fetcher.FetchOriginal(ctx, mentionID)
	if err != nil {
		e.stats.OriginalFetchFailures++
		originalFetchMisses.Inc()
		e.logger.Warn("original post lookup failed", "mention_id", mentionID, "error", err)
		return nil
	}
	if original == nil || original.ExternalID == "" {
		return nil
	}
	return original
}
