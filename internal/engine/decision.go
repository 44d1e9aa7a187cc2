package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/chelinho139/glitchbot/internal/outcome"
)

// Action names the kind of decision cycle.
type Action string

const (
	ActionPostInsight Action = "post_insight"
	ActionReply       Action = "reply_to_mention"
	ActionPublish     Action = "publish_output"
)

// Status is the terminal state of a decision cycle.
type Status string

const (
	// StatusDone means the cycle reached its goal.
	StatusDone Status = "done"
	// StatusDenied means a named rule refused the action. Expected, not an error.
	StatusDenied Status = "denied"
	// StatusFailed means a store or collaborator error aborted the cycle.
	StatusFailed Status = "failed"
)

// Decision is the result of exactly one decision cycle.
type Decision struct {
	CycleID string `json:"cycle_id"`
	Seq     int64  `json:"seq"`
	Action  Action `json:"action"`
	Status  Status `json:"status"`

	// Set when Status is StatusDenied.
	Reason outcome.Reason `json:"reason,omitempty"`
	Wait   time.Duration  `json:"wait,omitempty"`

	// Set when Status is StatusFailed.
	Kind outcome.Kind `json:"kind,omitempty"`
	Err  error        `json:"-"`

	OutputID     int64  `json:"output_id,omitempty"`
	Text         string `json:"text,omitempty"`
	SourceID     string `json:"source_id,omitempty"`
	ResponseID   string `json:"response_id,omitempty"`
	PublishedID  string `json:"published_id,omitempty"`
	SideOutputID int64  `json:"side_output_id,omitempty"`
}

// Done reports whether the cycle reached its goal.
func (d Decision) Done() bool {
	return d.Status == StatusDone
}

// Summary is the compact form written to the metrics log, e.g.
// "post_insight:denied:TooSoon".
func (d Decision) Summary() string {
	switch d.Status {
	case StatusDenied:
		return fmt.Sprintf("%s:%s:%s", d.Action, d.Status, d.Reason)
	case StatusFailed:
		return fmt.Sprintf("%s:%s:%s", d.Action, d.Status, d.Kind)
	}
	return fmt.Sprintf("%s:%s", d.Action, d.Status)
}

// deny marks the decision denied with the Denial carried by err.
func (d Decision) deny(err error) Decision {
	var denial *outcome.Denial
	if !errors.As(err, &denial) {
		return d.fail(outcome.KindIOFailure, "", err)
	}
	d.Status = StatusDenied
	d.Reason = denial.Reason
	d.Wait = denial.Wait
	d.Err = denial
	return d
}

// fail marks the decision failed with a Failure of the given kind.
// Errors carrying outcome.ErrRateLimited become KindRateLimited.
func (d Decision) fail(kind outcome.Kind, op string, err error) Decision {
	f := outcome.Fail(kind, op, err)
	d.Status = StatusFailed
	d.Kind = f.Kind
	d.Err = f
	return d
}

// check routes a guard or governor result: nil passes through as ok=true,
// a Denial denies the decision and anything else fails it as IOFailure.
func (d Decision) check(op string, err error) (Decision, bool) {
	if err == nil {
		return d, true
	}
	if outcome.IsDenial(err) {
		return d.deny(err), false
	}
	return d.fail(outcome.KindIOFailure, op, err), false
}
