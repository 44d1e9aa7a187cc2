// Package scheduler drives the engine's decision cycles on a fixed cadence,
// backing off exponentially while collaborators report rate limits.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chelinho139/glitchbot/internal/engine"
	"github.com/chelinho139/glitchbot/internal/model"
	"github.com/chelinho139/glitchbot/internal/outcome"
)

// Defaults for Config.
const (
	DefaultInterval    = 900 * time.Second
	DefaultBaseBackoff = 900 * time.Second
	DefaultMaxBackoff  = 1800 * time.Second
)

var stepCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glitchbot_scheduler_steps_total",
	Help: "Scheduler steps by result",
}, []string{"result"})

// Engine is the part of *engine.Engine the loop drives.
type Engine interface {
	ReplyToMention(ctx context.Context, mention model.Mention) engine.Decision
	PostInsight(ctx context.Context, topic string) engine.Decision
	PublishOutput(ctx context.Context, insight engine.Decision) engine.Decision
}

// Config holds the loop cadence.
type Config struct {
	// Topic is passed to PostInsight. Empty uses the engine default.
	Topic string

	// Interval is the pause between steps.
	Interval time.Duration

	// BaseBackoff and MaxBackoff bound the exponential delay between
	// retries of a rate-limited step.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// MaxRetries caps retries of one rate-limited step. -1 (also used for
	// 0) retries until the context ends.
	MaxRetries int

	// MaxSteps stops the loop after this many steps. 0 runs until the
	// context ends.
	MaxSteps int

	// SkipInsight disables the insight and publish part of a step.
	SkipInsight bool
}

// DefaultConfig returns a 15 minute cadence with backoff doubling from
// 15 minutes up to 30.
func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		BaseBackoff: DefaultBaseBackoff,
		MaxBackoff:  DefaultMaxBackoff,
		MaxRetries:  -1,
	}
}

// Report lists the decisions of one step in the order they were made.
type Report struct {
	Step      int               `json:"step"`
	Decisions []engine.Decision `json:"decisions"`
}

// Counts tallies decisions by status.
func (r Report) Counts() (done, denied, failed int) {
	for _, d := range r.Decisions {
		switch d.Status {
		case engine.StatusDone:
			done++
		case engine.StatusDenied:
			denied++
		case engine.StatusFailed:
			failed++
		}
	}
	return done, denied, failed
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithOnStep registers a callback run after every attempt of a step,
// including attempts that end rate limited.
func WithOnStep(fn func(Report)) Option {
	return func(s *Scheduler) {
		s.onStep = fn
	}
}

// Scheduler runs steps: answer every queued mention, then try one insight
// and publish it.
type Scheduler struct {
	engine Engine
	queue  *engine.MentionQueue
	cfg    Config
	logger *slog.Logger
	onStep func(Report)
	steps  int
}

// New creates a scheduler. queue may be nil when no mentions are fed.
func New(eng Engine, queue *engine.MentionQueue, cfg Config, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = max(def.MaxBackoff, cfg.BaseBackoff)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	s := &Scheduler{
		engine: eng,
		queue:  queue,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Step runs one step and returns its decisions.
//
// A decision failed with RateLimited ends the step early with an error
// carrying outcome.ErrRateLimited; an unanswered mention goes back on the
// queue. Other failures are recorded in the report and the step continues.
func (s *Scheduler) Step(ctx context.Context) (Report, error) {
	s.steps++
	r := Report{Step: s.steps}

	if s.queue != nil {
		// Bounded by the length at start so re-queued mentions wait for
		// the next step.
		for n := s.queue.Len(); n > 0; n-- {
			m, ok := s.queue.TryDequeue()
			if !ok {
				break
			}
			d := s.engine.ReplyToMention(ctx, m)
			r.Decisions = append(r.Decisions, d)
			if isRateLimited(d) {
				s.queue.Enqueue(m)
				return r, rateLimited(d)
			}
		}
	}

	if s.cfg.SkipInsight {
		return r, nil
	}

	insight := s.engine.PostInsight(ctx, s.cfg.Topic)
	r.Decisions = append(r.Decisions, insight)
	if isRateLimited(insight) {
		return r, rateLimited(insight)
	}
	if !insight.Done() {
		return r, nil
	}

	published := s.engine.PublishOutput(ctx, insight)
	r.Decisions = append(r.Decisions, published)
	if isRateLimited(published) {
		return r, rateLimited(published)
	}
	return r, nil
}

// Run loops until ctx ends or MaxSteps steps completed.
//
// Steps are Interval apart unless a mention is queued in between. A
// rate-limited step is retried with exponential backoff between
// BaseBackoff and MaxBackoff. Returns nil when stopped by ctx or MaxSteps.
func (s *Scheduler) Run(ctx context.Context) error {
	policy := retrypolicy.NewBuilder[Report]().
		HandleIf(func(_ Report, err error) bool {
			return outcome.IsRateLimited(err)
		}).
		WithBackoff(s.cfg.BaseBackoff, s.cfg.MaxBackoff).
		WithMaxRetries(s.cfg.MaxRetries).
		Build()
	executor := failsafe.With[Report](policy)

	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"base_backoff", s.cfg.BaseBackoff,
		"max_backoff", s.cfg.MaxBackoff)

	for completed := 0; s.cfg.MaxSteps == 0 || completed < s.cfg.MaxSteps; completed++ {
		if ctx.Err() != nil {
			break
		}

		_, err := executor.WithContext(ctx).Get(func() (Report, error) {
			r, err := s.Step(ctx)
			s.observe(r, err)
			return r, err
		})
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			s.logger.Error("step gave up", "error", err)
		}

		if s.cfg.MaxSteps != 0 && completed+1 >= s.cfg.MaxSteps {
			break
		}

		s.pause(ctx)
	}

	s.logger.Info("scheduler stopped", "steps", s.steps)
	return nil
}

// pause waits out the interval between steps. A mention queued during the
// wait ends it early. Signals left from the finished step (re-queued
// mentions) are dropped first so they wait for the full interval.
func (s *Scheduler) pause(ctx context.Context) {
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	var wake <-chan struct{}
	if s.queue != nil {
		wake = s.queue.Wait()
		select {
		case _, ok := <-wake:
			if !ok {
				wake = nil
			}
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if s.queue.Len() > 0 {
				s.logger.Debug("mention queued, starting next step early")
				return
			}
		}
	}
}

func (s *Scheduler) observe(r Report, err error) {
	done, denied, failed := r.Counts()
	switch {
	case outcome.IsRateLimited(err):
		stepCount.WithLabelValues("rate_limited").Inc()
		s.logger.Warn("step rate limited, backing off",
			"step", r.Step, "done", done, "denied", denied, "failed", failed, "error", err)
	case err != nil:
		stepCount.WithLabelValues("error").Inc()
		s.logger.Error("step failed", "step", r.Step, "error", err)
	default:
		stepCount.WithLabelValues("ok").Inc()
		s.logger.Info("step finished", "step", r.Step, "done", done, "denied", denied, "failed", failed)
	}
	if s.onStep != nil {
		s.onStep(r)
	}
}

func isRateLimited(d engine.Decision) bool {
	return d.Status == engine.StatusFailed && d.Kind == outcome.KindRateLimited
}

func rateLimited(d engine.Decision) error {
	if d.Err != nil && errors.Is(d.Err, outcome.ErrRateLimited) {
		return fmt.Errorf("%s: %w", d.Action, d.Err)
	}
	return fmt.Errorf("%s: %w", d.Action, outcome.ErrRateLimited)
}
