package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/ingest"
)

func planningFeed() ingest.Feed {
	return ingest.Feed{
		Items: []ingest.Item{
			{ID: "7001", Text: "New research and analysis on agent planning."},
		},
		Mentions: []ingest.Mention{
			{ID: "9001", Author: "alice", Text: "thoughts?"},
			{ID: "9002", Author: "bob", Text: "what about this?", FetchError: "timeout"},
		},
	}
}

func TestRun_InsightThenPublish(t *testing.T) {
	scenario := &Scenario{
		Name:        "insight_then_publish",
		Description: "insight and publish",
		Feed:        planningFeed(),
		Responses:   generate.Script{Quote: []string{"Planning is the hard part."}},
		Steps: []Step{
			{Do: StepInsight, Expect: &ExpectClause{Status: "done"}},
			{Do: StepPublish, Expect: &ExpectClause{Status: "done"}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceOrder, Actions: []string{"post_insight", "publish_output"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, "cycle-0001", result.Trace[0].CycleID)
	assert.Equal(t, "7001", result.Trace[0].SourceID)
	assert.Equal(t, int64(1), result.Trace[0].OutputID)
	assert.Equal(t, "post-1", result.Trace[1].PublishedID)
	assert.Equal(t, int64(1), result.Engagement.TotalThreadsPosted)
}

func TestRun_ExpectMismatchFailsResult(t *testing.T) {
	scenario := &Scenario{
		Name:        "mismatch",
		Description: "empty store has no candidate",
		Steps: []Step{
			{Do: StepInsight, Expect: &ExpectClause{Status: "done"}},
			{Do: StepInsight, Expect: &ExpectClause{Status: "denied", Reason: "TooSoon"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], `expected status "done", got "denied"`)
	assert.Contains(t, result.Errors[1], `expected reason "TooSoon", got "NoCandidate"`)
}

func TestRun_ReplyWithFailedFetchStillAnswers(t *testing.T) {
	scenario := &Scenario{
		Name:        "fetch_failure",
		Description: "original lookup failure is best effort",
		Feed:        planningFeed(),
		Responses:   generate.Script{Reply: []string{"Happy to help."}},
		Steps: []Step{
			{Do: StepReply, Mention: "9002", Expect: &ExpectClause{Status: "done"}},
		},
		Assertions: []Assertion{
			{
				Type:   AssertFinalState,
				Table:  "mention_responses",
				Where:  map[string]any{"mention_id": "9002"},
				Expect: map[string]any{"response_text": "Happy to help."},
			},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Stats.OriginalFetchFailures)
}

func TestRun_GeneratorFailureKind(t *testing.T) {
	scenario := &Scenario{
		Name:        "generator_failure",
		Description: "a failing generator fails the cycle",
		Feed:        planningFeed(),
		Responses: generate.Script{
			Quote: []string{generate.ScriptError, generate.ScriptRateLimited},
		},
		Steps: []Step{
			{Do: StepInsight, Expect: &ExpectClause{Status: "failed", Kind: "GenerationFailure"}},
			{Do: StepInsight, Expect: &ExpectClause{Status: "failed", Kind: "RateLimited"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AdvanceAndBootstrap(t *testing.T) {
	scenario := &Scenario{
		Name:        "bootstrap",
		Description: "bootstrap restores the governor from the store",
		Feed:        planningFeed(),
		Responses:   generate.Script{Quote: []string{"Planning is the hard part."}},
		Steps: []Step{
			{Do: StepInsight},
			{Do: StepPublish},
			{Do: StepAdvance, Duration: "10m"},
			{Do: StepBootstrap},
			{Do: StepInsight, Expect: &ExpectClause{Status: "denied", Reason: "TooSoon"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	last := result.Trace[len(result.Trace)-1]
	assert.Equal(t, "2025-03-03T09:10:00Z", last.At)
	assert.Equal(t, "20m0s", last.Wait)
}

func TestRun_FailedAssertionsAreReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "assertions",
		Description: "assertion failures mark the result failed",
		Steps:       []Step{{Do: StepInsight}},
		Assertions: []Assertion{
			{Type: AssertTraceCount, Action: "post_insight", Count: 2},
			{Type: AssertFinalState, Table: "generated_outputs", Where: map[string]any{"id": 1}, Expect: map[string]any{"posted": true}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "2 occurrences of post_insight")
	assert.Contains(t, result.Errors[1], "row not found")
}

func TestEngineConfig_Overrides(t *testing.T) {
	cfg := engineConfig(ScenarioConfig{
		Topic:                  "crypto",
		OwnerHandle:            "owner",
		SeedTopics:             []string{"crypto"},
		MaxPostsPerHour:        5,
		MinMinutesBetweenPosts: 3,
		SimilarityThreshold:    0.5,
		PostScoreThreshold:     7,
	})
	assert.Equal(t, "crypto", cfg.Topic)
	assert.Equal(t, "owner", cfg.OwnerHandle)
	assert.Equal(t, []string{"crypto"}, cfg.SeedTopics)
	assert.Equal(t, 5, cfg.Governor.MaxPostsPerHour)
	assert.Equal(t, "3m0s", cfg.Governor.MinBetweenPosts.String())
	assert.Equal(t, 0.5, cfg.SimilarityThreshold)
	assert.Equal(t, 7, cfg.PostScoreThreshold)

	def := engineConfig(ScenarioConfig{})
	assert.Equal(t, "AI", def.Topic)
	assert.Equal(t, 2, def.Governor.MaxPostsPerHour)
}
