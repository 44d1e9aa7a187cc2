package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/ingest"
	"github.com/chelinho139/glitchbot/internal/model"
)

// Scenario is a scripted run of the decision engine.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Config overrides engine tunables. Zero fields keep the defaults.
	Config ScenarioConfig `yaml:"config,omitempty"`

	// Knowledge is stored before the first step.
	Knowledge []model.KnowledgeFact `yaml:"knowledge,omitempty"`

	// Feed items are stored before the first step; its mentions are what
	// reply steps answer and what the fetcher serves originals for.
	Feed ingest.Feed `yaml:"feed,omitempty"`

	// Responses script the generator, consumed in order per kind.
	Responses generate.Script `yaml:"responses,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and store.
	Assertions []Assertion `yaml:"assertions"`
}

// ScenarioConfig holds the tunables a scenario may override.
type ScenarioConfig struct {
	Topic                  string   `yaml:"topic,omitempty"`
	OwnerHandle            string   `yaml:"owner_handle,omitempty"`
	SeedTopics             []string `yaml:"seed_topics,omitempty"`
	MaxPostsPerHour        int      `yaml:"max_posts_per_hour,omitempty"`
	MinMinutesBetweenPosts int      `yaml:"min_minutes_between_posts,omitempty"`
	SimilarityThreshold    float64  `yaml:"similarity_threshold,omitempty"`
	PostScoreThreshold     int      `yaml:"post_score_threshold,omitempty"`
}

// Step kinds.
const (
	StepInsight   = "insight"
	StepPublish   = "publish"
	StepReply     = "reply"
	StepConfirm   = "confirm"
	StepIngest    = "ingest"
	StepAdvance   = "advance"
	StepBootstrap = "bootstrap"
)

// Step is one action of a scenario.
type Step struct {
	// Do names the step kind.
	Do string `yaml:"do"`

	// Topic is passed to insight steps.
	Topic string `yaml:"topic,omitempty"`

	// Mention is the feed mention id answered by a reply step.
	Mention string `yaml:"mention,omitempty"`

	// Duration is how far an advance step moves the clock (e.g. "31m").
	Duration string `yaml:"duration,omitempty"`

	// OutputID and PublishedID are used by confirm steps.
	OutputID    int64  `yaml:"output_id,omitempty"`
	PublishedID string `yaml:"published_id,omitempty"`

	// Items are stored by ingest steps.
	Items []ingest.Item `yaml:"items,omitempty"`

	// Expect checks the decision of insight, publish and reply steps.
	// If nil, no validation is performed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected decision of a step.
// Empty fields are not checked.
type ExpectClause struct {
	Status string `yaml:"status"`
	Reason string `yaml:"reason,omitempty"`
	Kind   string `yaml:"kind,omitempty"`
}

// Assertion validates the trace or the final store contents.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a decision with Action (and Status, Reason) exists
	// - "trace_order": Actions appear in order
	// - "trace_count": Action appears exactly Count times
	// - "final_state": one row of Table matching Where has the Expect values
	Type string `yaml:"type"`

	Action string `yaml:"action,omitempty"`
	Status string `yaml:"status,omitempty"`
	Reason string `yaml:"reason,omitempty"`

	// Table is the store table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values (used by final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (used by trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if err := s.Feed.Validate(); err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	mentions := make(map[string]bool, len(s.Feed.Mentions))
	for _, m := range s.Feed.Mentions {
		mentions[m.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, mentions); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its kind.
func validateStep(index int, step Step, mentions map[string]bool) error {
	switch step.Do {
	case StepInsight, StepPublish, StepBootstrap:
	case StepReply:
		if step.Mention == "" {
			return fmt.Errorf("steps[%d]: mention is required for reply", index)
		}
		if !mentions[step.Mention] {
			return fmt.Errorf("steps[%d]: mention %q is not in the feed", index, step.Mention)
		}
	case StepConfirm:
		if step.OutputID <= 0 || step.PublishedID == "" {
			return fmt.Errorf("steps[%d]: output_id and published_id are required for confirm", index)
		}
	case StepIngest:
		if len(step.Items) == 0 {
			return fmt.Errorf("steps[%d]: items are required for ingest", index)
		}
		if err := (ingest.Feed{Items: step.Items}).Validate(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case StepAdvance:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return fmt.Errorf("steps[%d]: invalid duration %q: %w", index, step.Duration, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d]: duration must be positive", index)
		}
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown step %q", index, step.Do)
	}

	if step.Expect != nil && step.Expect.Status == "" {
		return fmt.Errorf("steps[%d].expect: status is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
