package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chelinho139/glitchbot/internal/engine"
	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/ingest"
	"github.com/chelinho139/glitchbot/internal/publish"
	"github.com/chelinho139/glitchbot/internal/store"
	"github.com/chelinho139/glitchbot/internal/testutil"
)

// Harness is the scenario execution context.
// It runs one scenario on a manual clock with deterministic ids.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.ManualClock
	gen      *generate.Scripted
	fetcher  *ingest.Fetcher
	mentions map[string]ingest.Mention
	topic    string
	logger   *slog.Logger

	// lastInsight is the most recent insight decision, used by publish steps.
	lastInsight engine.Decision
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create the store and engine on a manual clock
// 2. Store knowledge and feed items, then bootstrap the session
// 3. Execute steps, checking expect clauses
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewManualClock(testutil.Epoch)

	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store:    st,
		clock:    clock,
		gen:      generate.NewScripted(scenario.Responses),
		fetcher:  ingest.NewFetcher(scenario.Feed),
		mentions: make(map[string]ingest.Mention, len(scenario.Feed.Mentions)),
		logger:   logger,
	}
	for _, m := range scenario.Feed.Mentions {
		h.mentions[m.ID] = m
	}

	cfg := engineConfig(scenario.Config)
	h.topic = cfg.Topic
	pub := publish.NewDryRun(publish.WithIDs(sequentialIDs("post")), publish.WithLogger(logger))
	h.engine = engine.New(st, h.gen, pub, h.fetcher,
		engine.WithConfig(cfg),
		engine.WithClock(clock.Now),
		engine.WithCycleIDs(testutil.NewSequentialCycleIDs("cycle")),
		engine.WithLogger(logger),
	)

	ctx := context.Background()
	if err := h.setup(ctx, scenario); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Do, err)
		}
	}

	state := h.engine.State()
	result.Engagement = state.Engagement
	result.Stats = h.engine.Stats()

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// engineConfig applies scenario overrides to the engine defaults.
func engineConfig(sc ScenarioConfig) engine.Config {
	cfg := engine.DefaultConfig()
	if sc.Topic != "" {
		cfg.Topic = sc.Topic
	}
	if sc.OwnerHandle != "" {
		cfg.OwnerHandle = sc.OwnerHandle
	}
	if len(sc.SeedTopics) > 0 {
		cfg.SeedTopics = sc.SeedTopics
	}
	if sc.MaxPostsPerHour > 0 {
		cfg.Governor.MaxPostsPerHour = sc.MaxPostsPerHour
	}
	if sc.MinMinutesBetweenPosts > 0 {
		cfg.Governor.MinBetweenPosts = time.Duration(sc.MinMinutesBetweenPosts) * time.Minute
	}
	if sc.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = sc.SimilarityThreshold
	}
	if sc.PostScoreThreshold > 0 {
		cfg.PostScoreThreshold = sc.PostScoreThreshold
	}
	return cfg
}

// setup stores knowledge and feed items, then bootstraps the session.
func (h *Harness) setup(ctx context.Context, scenario *Scenario) error {
	for i, fact := range scenario.Knowledge {
		if _, err := h.store.UpsertKnowledge(ctx, fact); err != nil {
			return fmt.Errorf("knowledge[%d]: %w", i, err)
		}
	}
	if _, err := ingest.Ingest(ctx, h.store, scenario.Feed, h.topic); err != nil {
		return err
	}
	return h.engine.Bootstrap(ctx)
}

// executeStep runs one step, appends its trace event and checks its
// expect clause.
func (h *Harness) executeStep(ctx context.Context, n int, step Step, result *Result) error {
	var d engine.Decision

	switch step.Do {
	case StepInsight:
		d = h.engine.PostInsight(ctx, step.Topic)
		h.lastInsight = d

	case StepPublish:
		d = h.engine.PublishOutput(ctx, h.lastInsight)

	case StepReply:
		m := h.mentions[step.Mention]
		mention := ingest.Feed{Mentions: []ingest.Mention{m}}.ToMentions()[0]
		d = h.engine.ReplyToMention(ctx, mention)

	case StepConfirm:
		ev := TraceEvent{
			Step:        n,
			At:          h.clock.Now().UTC().Format(time.RFC3339),
			Action:      confirmAction,
			Status:      string(engine.StatusDone),
			OutputID:    step.OutputID,
			PublishedID: step.PublishedID,
		}
		if err := h.engine.ConfirmPublished(ctx, step.OutputID, step.PublishedID); err != nil {
			ev.Status = string(engine.StatusFailed)
			h.logger.Debug("confirm failed", "output_id", step.OutputID, "error", err)
		}
		result.AddEvent(ev)
		h.checkExpect(n, step.Expect, ev, result)
		return nil

	case StepIngest:
		_, err := ingest.Ingest(ctx, h.store, ingest.Feed{Items: step.Items}, h.topic)
		return err

	case StepAdvance:
		dur, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		h.clock.Advance(dur)
		return nil

	case StepBootstrap:
		return h.engine.Bootstrap(ctx)

	default:
		return fmt.Errorf("unknown step %q", step.Do)
	}

	ev := eventFromDecision(n, h.clock.Now(), d)
	result.AddEvent(ev)
	h.checkExpect(n, step.Expect, ev, result)
	return nil
}

// checkExpect compares a step's event with its expect clause.
func (h *Harness) checkExpect(n int, expect *ExpectClause, ev TraceEvent, result *Result) {
	if expect == nil {
		return
	}
	if ev.Status != expect.Status {
		result.AddError(fmt.Sprintf("step %d (%s): expected status %q, got %q (reason %q, kind %q)",
			n, ev.Action, expect.Status, ev.Status, ev.Reason, ev.Kind))
		return
	}
	if expect.Reason != "" && ev.Reason != expect.Reason {
		result.AddError(fmt.Sprintf("step %d (%s): expected reason %q, got %q", n, ev.Action, expect.Reason, ev.Reason))
	}
	if expect.Kind != "" && ev.Kind != expect.Kind {
		result.AddError(fmt.Sprintf("step %d (%s): expected kind %q, got %q", n, ev.Action, expect.Kind, ev.Kind))
	}
}

// sequentialIDs returns "<prefix>-1", "<prefix>-2", ...
func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

