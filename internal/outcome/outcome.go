// Package outcome defines how a decision cycle can end short of success.
//
// Two families of results are distinguished:
//   - Denial: an expected, named veto (rate limit, duplicate, no candidate).
//     Denials are not errors in the operational sense and are logged at debug.
//   - Failure: something went wrong (store unreachable, collaborator error).
//     Failures carry a Kind so the caller can decide whether to back off.
//
// Nothing in the core is fatal to the process: every path returns a value.
package outcome

import (
	"errors"
	"fmt"
	"time"
)

// Reason names a ValidationDenial.
type Reason string

const (
	// ReasonHourlyLimitReached indicates the hourly post budget is spent.
	ReasonHourlyLimitReached Reason = "HourlyLimitReached"

	// ReasonTooSoon indicates the minimum spacing since the last post has not elapsed.
	ReasonTooSoon Reason = "TooSoon"

	// ReasonNoCandidate indicates no stored content cleared the selection threshold.
	ReasonNoCandidate Reason = "NoCandidate"

	// ReasonAlreadyPosted indicates the source content was already covered.
	ReasonAlreadyPosted Reason = "AlreadyPosted"

	// ReasonSimilarContentExists indicates a near-duplicate output exists in the window.
	ReasonSimilarContentExists Reason = "SimilarContentExists"

	// ReasonNoMeaningfulContent indicates generation was empty or blocked.
	ReasonNoMeaningfulContent Reason = "NoMeaningfulContent"

	// ReasonAlreadyResponded indicates the mention already has a response record.
	ReasonAlreadyResponded Reason = "AlreadyResponded"
)

// Denial is returned when a named rule vetoes the action.
type Denial struct {
	Reason  Reason
	Message string

	// Wait is the remaining time before the veto lifts (TooSoon only).
	Wait time.Duration
}

// Error implements the error interface.
func (d *Denial) Error() string {
	if d.Message == "" {
		return string(d.Reason)
	}
	return fmt.Sprintf("%s: %s", d.Reason, d.Message)
}

// Deny creates a Denial with a formatted message.
func Deny(reason Reason, format string, args ...any) *Denial {
	return &Denial{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Kind categorizes a Failure.
type Kind string

const (
	// KindIOFailure indicates the store was unreachable or a write failed.
	// The cycle is aborted; no partial state is visible.
	KindIOFailure Kind = "IOFailure"

	// KindRateLimited indicates a collaborator signalled a 429-equivalent.
	// The caller should back off and retry the decision later.
	KindRateLimited Kind = "RateLimited"

	// KindGenerationFailure indicates the generation collaborator errored.
	KindGenerationFailure Kind = "GenerationFailure"

	// KindPublishFailed indicates the publish collaborator errored.
	KindPublishFailed Kind = "PublishFailed"
)

// Failure wraps an error from a store or collaborator with its Kind.
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Op == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s: %s: %v", f.Kind, f.Op, f.Err)
}

// Unwrap returns the underlying error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Fail wraps err as a Failure. Returns nil if err is nil.
//
// Errors that already carry ErrRateLimited are reported as KindRateLimited
// regardless of the requested kind, so backoff decisions see them.
func Fail(kind Kind, op string, err error) *Failure {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) {
		kind = KindRateLimited
	}
	return &Failure{Kind: kind, Op: op, Err: err}
}

// ErrRateLimited is wrapped by collaborators to signal a 429-equivalent.
var ErrRateLimited = errors.New("rate limited")

// IsDenial returns true if err is a Denial.
// Uses errors.As to handle wrapped errors.
func IsDenial(err error) bool {
	var d *Denial
	return errors.As(err, &d)
}

// ReasonOf returns the Denial reason carried by err, or "" if none.
func ReasonOf(err error) Reason {
	var d *Denial
	if errors.As(err, &d) {
		return d.Reason
	}
	return ""
}

// KindOf returns the Failure kind carried by err, or "" if none.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	if errors.Is(err, ErrRateLimited) {
		return KindRateLimited
	}
	return ""
}

// IsRateLimited returns true if err signals a 429-equivalent anywhere in its chain.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}
