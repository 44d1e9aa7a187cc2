package harness

import (
	"time"

	"github.com/chelinho139/glitchbot/internal/engine"
	"github.com/chelinho139/glitchbot/internal/model"
)

// TraceEvent is one decision (or confirmation) in the trace.
type TraceEvent struct {
	Step         int    `json:"step"`
	At           string `json:"at"`
	CycleID      string `json:"cycle_id,omitempty"`
	Seq          int64  `json:"seq,omitempty"`
	Action       string `json:"action"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Wait         string `json:"wait,omitempty"`
	SourceID     string `json:"source_id,omitempty"`
	OutputID     int64  `json:"output_id,omitempty"`
	SideOutputID int64  `json:"side_output_id,omitempty"`
	ResponseID   string `json:"response_id,omitempty"`
	PublishedID  string `json:"published_id,omitempty"`
	Text         string `json:"text,omitempty"`
}

// confirmAction labels confirm steps in the trace.
const confirmAction = "confirm"

// eventFromDecision flattens a decision for the trace.
func eventFromDecision(step int, at time.Time, d engine.Decision) TraceEvent {
	ev := TraceEvent{
		Step:         step,
		At:           at.UTC().Format(time.RFC3339),
		CycleID:      d.CycleID,
		Seq:          d.Seq,
		Action:       string(d.Action),
		Status:       string(d.Status),
		Reason:       string(d.Reason),
		Kind:         string(d.Kind),
		SourceID:     d.SourceID,
		OutputID:     d.OutputID,
		SideOutputID: d.SideOutputID,
		ResponseID:   d.ResponseID,
		PublishedID:  d.PublishedID,
		Text:         d.Text,
	}
	if d.Wait > 0 {
		ev.Wait = d.Wait.String()
	}
	return ev
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every decision in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Engagement is the session's engagement counters after the last step.
	Engagement model.EngagementSnapshot `json:"engagement"`

	// Stats are the engine's best-effort failure counters after the last step.
	Stats engine.Stats `json:"stats"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends an event to the trace.
func (r *Result) AddEvent(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
