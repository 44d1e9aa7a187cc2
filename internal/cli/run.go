package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chelinho139/glitchbot/internal/config"
	"github.com/chelinho139/glitchbot/internal/engine"
	"github.com/chelinho139/glitchbot/internal/generate"
	"github.com/chelinho139/glitchbot/internal/ingest"
	"github.com/chelinho139/glitchbot/internal/model"
	"github.com/chelinho139/glitchbot/internal/publish"
	"github.com/chelinho139/glitchbot/internal/scheduler"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database  string
	Feeds     []string
	Responses string
	Topic     string
	Once      bool
	Steps     int
	Interval  time.Duration

	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string

	// CycleIDs overrides the cycle id generator (for testing).
	// If nil, defaults to engine.UUIDv7Generator.
	CycleIDs engine.CycleIDGenerator

	// Clock overrides the wall clock of the engine (for testing).
	Clock func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the decision loop over feed files",
		Long: `Run the glitchbot decision loop.

Feed items are ingested into the database, mentions are classified (owner
mentions first) and queued. Every step answers the queued mentions, then
tries one insight post and publishes it. Posts go to a dry-run publisher.

Generated text comes from a responses script (YAML with thread, reply and
quote lists) or, without one, from a built-in template.

Example:
  glitchbot run --db ./glitchbot.db --feed ./feed.yaml --once
  glitchbot run --feed ./feed.yaml --responses ./responses.yaml --verbose
  glitchbot run --feed ./feed.yaml --metrics-addr :9464`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoop(cmd, opts)
		},
	}

	addDBFlag(cmd, &opts.Database)
	cmd.Flags().StringArrayVar(&opts.Feeds, "feed", nil, "feed file with items and mentions (repeatable)")
	cmd.Flags().StringVar(&opts.Responses, "responses", "", "scripted generator responses (YAML)")
	cmd.Flags().StringVar(&opts.Topic, "topic", "", "insight topic (default $GLITCHBOT_TOPIC)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single step and exit")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "stop after this many steps (0 runs until interrupted)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause between steps (default $GLITCHBOT_STEP_DELAY)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")

	return cmd
}

func runLoop(cmd *cobra.Command, opts *RunOptions) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	if opts.Topic != "" {
		cfg.Topic = opts.Topic
	}
	if opts.Interval > 0 {
		cfg.StepDelay = opts.Interval
		if cfg.MaxBackoff < cfg.StepDelay {
			cfg.MaxBackoff = cfg.StepDelay
		}
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	feeds := make([]ingest.Feed, 0, len(opts.Feeds))
	for _, path := range opts.Feeds {
		feed, err := ingest.Load(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load feed", err)
		}
		formatter.Verbosef("loaded %s: %d items, %d mentions", path, len(feed.Items), len(feed.Mentions))
		feeds = append(feeds, feed)
	}

	gen, err := newGenerator(opts.Responses, cfg, logger)
	if err != nil {
		return err
	}

	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	if opts.MetricsAddr != "" {
		ms, err := startMetricsServer(opts.MetricsAddr, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer ms.Close()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	for i, feed := range feeds {
		n, err := ingest.Ingest(ctx, st, feed, cfg.Topic)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to ingest feed", err)
		}
		slog.Info("feed ingested", "feed", opts.Feeds[i], "items", n, "mentions", len(feed.Mentions))
	}

	engineOpts := []engine.Option{
		engine.WithConfig(cfg.Engine()),
		engine.WithLogger(logger),
	}
	if opts.CycleIDs != nil {
		engineOpts = append(engineOpts, engine.WithCycleIDs(opts.CycleIDs))
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, engine.WithClock(opts.Clock))
	}
	pub := publish.NewDryRun(publish.WithLogger(logger))
	eng := engine.New(st, gen, pub, ingest.NewFetcher(feeds...), engineOpts...)

	if err := eng.Bootstrap(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to bootstrap session", err)
	}

	queue := engine.NewMentionQueue()
	for _, feed := range feeds {
		mentions := eng.ClassifyMentions(feed.ToMentions())
		for _, m := range mentions {
			fd := eng.DecideFollow(m.Author, m.Text, nil)
			slog.Debug("follow decision", "author", fd.Author, "follow", fd.Follow, "score", fd.Score)
		}
		queue.Enqueue(mentions...)
	}
	defer queue.Close()

	schedCfg := cfg.Scheduler()
	schedCfg.MaxSteps = opts.Steps
	if opts.Once {
		schedCfg.MaxSteps = 1
	}

	var reports []scheduler.Report
	sched := scheduler.New(eng, queue, schedCfg,
		scheduler.WithLogger(logger),
		scheduler.WithOnStep(func(r scheduler.Report) {
			reports = append(reports, r)
		}))

	if err := sched.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}

	return formatter.Result(renderReports(reports, eng.State()), runResult{
		Steps:      reports,
		Engagement: eng.State().Engagement,
		Stats:      eng.Stats(),
		Posts:      pub.Posts(),
	})
}

// runResult is the JSON payload of the run command.
type runResult struct {
	Steps      []scheduler.Report       `json:"steps"`
	Engagement model.EngagementSnapshot `json:"engagement"`
	Stats      engine.Stats             `json:"stats"`
	Posts      []publish.Post           `json:"posts"`
}

// newGenerator builds the generator chain: a script or the template,
// behind the hourly call budget.
func newGenerator(responses string, cfg config.Config, logger *slog.Logger) (generate.Generator, error) {
	var base generate.Generator = generate.Template{}
	if responses != "" {
		script, err := generate.LoadScript(responses)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load responses", err)
		}
		base = generate.NewScripted(script)
	}
	budget := generate.NewBudget(cfg.LLMCallsPerHour, nil)
	return generate.WithBudget(base, budget, logger), nil
}

func renderReports(reports []scheduler.Report, state engine.SessionState) string {
	var b strings.Builder
	for _, r := range reports {
		fmt.Fprintf(&b, "step %d\n", r.Step)
		for _, d := range r.Decisions {
			fmt.Fprintf(&b, "  %s\n", describeDecision(d))
		}
	}
	fmt.Fprintf(&b, "posted %d this hour, %d total, %d replies\n",
		state.Governor.PostsThisHour,
		state.Engagement.TotalThreadsPosted,
		state.Engagement.TotalMentionResponses)
	return b.String()
}

func describeDecision(d engine.Decision) string {
	line := d.Summary()
	if d.SourceID != "" {
		line += " source=" + d.SourceID
	}
	if d.OutputID != 0 {
		line += fmt.Sprintf(" output=%d", d.OutputID)
	}
	if d.PublishedID != "" {
		line += " published=" + d.PublishedID
	}
	if d.ResponseID != "" {
		line += " response=" + d.ResponseID
	}
	if d.SideOutputID != 0 {
		line += fmt.Sprintf(" side_output=%d", d.SideOutputID)
	}
	if d.Wait > 0 {
		line += " wait=" + d.Wait.Round(time.Second).String()
	}
	return line
}
