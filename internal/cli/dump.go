package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/chelinho139/glitchbot/internal/model"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// dumpResult is the JSON payload of the dump command.
type dumpResult struct {
	Content    []model.ContentItem              `json:"content"`
	Outputs    []model.GeneratedOutput          `json:"outputs"`
	Responses  []model.ResponseRecord           `json:"responses"`
	Knowledge  map[string][]model.KnowledgeFact `json:"knowledge"`
	Metrics    []model.MetricEntry              `json:"metrics"`
	Engagement model.EngagementSnapshot         `json:"engagement"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print recent database contents",
		Long: `Print the most recent rows of every table, newest first: content,
generated outputs, mention responses and metrics, plus the knowledge facts of
the seed topics.

Example:
  glitchbot dump --db ./glitchbot.db --limit 5
  glitchbot dump --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, opts)
		},
	}

	addDBFlag(cmd, &opts.Database)
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "rows per table")

	return cmd
}

func runDump(cmd *cobra.Command, opts *DumpOptions) error {
	if opts.Limit <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--limit must be positive, got %d", opts.Limit))
	}
	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx := cmd.Context()
	var res dumpResult
	if res.Content, err = st.RecentContent(ctx, opts.Limit); err != nil {
		return WrapExitError(ExitFailure, "failed to read content", err)
	}
	if res.Outputs, err = st.RecentOutputs(ctx, opts.Limit); err != nil {
		return WrapExitError(ExitFailure, "failed to read outputs", err)
	}
	if res.Responses, err = st.RecentResponses(ctx, opts.Limit); err != nil {
		return WrapExitError(ExitFailure, "failed to read responses", err)
	}
	res.Knowledge = make(map[string][]model.KnowledgeFact, len(cfg.SeedTopics))
	for _, topic := range cfg.SeedTopics {
		facts, err := st.KnowledgeForTopic(ctx, topic, opts.Limit)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read knowledge", err)
		}
		res.Knowledge[topic] = facts
	}
	if res.Metrics, err = st.RecentMetrics(ctx, opts.Limit); err != nil {
		return WrapExitError(ExitFailure, "failed to read metrics", err)
	}
	if res.Engagement, err = st.EngagementSnapshot(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to read snapshot", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Result(renderDump(res, cfg.SeedTopics), res)
}

func renderDump(res dumpResult, topics []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "content (%d)\n", len(res.Content))
	for _, c := range res.Content {
		mark := " "
		if c.Processed {
			mark = "*"
		}
		fmt.Fprintf(&b, "  %s %s [%s] %s\n", mark, c.ExternalID, c.Topic, oneLine(c.Text))
	}

	fmt.Fprintf(&b, "outputs (%d)\n", len(res.Outputs))
	for _, o := range res.Outputs {
		state := "pending"
		if o.Posted {
			state = "posted " + o.PublishedID
		}
		fmt.Fprintf(&b, "  #%d %s [%s] %s\n", o.ID, state, o.Topic, oneLine(o.Text))
	}

	fmt.Fprintf(&b, "responses (%d)\n", len(res.Responses))
	for _, r := range res.Responses {
		fmt.Fprintf(&b, "  %s -> %s %s\n", r.MentionID, r.ResponseID, oneLine(r.ResponseText))
	}

	b.WriteString("knowledge\n")
	for _, topic := range topics {
		for _, f := range res.Knowledge[topic] {
			fmt.Fprintf(&b, "  [%s] %s (%.2f): %s\n", topic, f.Concept, f.ConfidenceScore, oneLine(f.Description))
		}
	}

	fmt.Fprintf(&b, "metrics (%d)\n", len(res.Metrics))
	for _, m := range res.Metrics {
		fmt.Fprintf(&b, "  %s %s=%s\n", m.RecordedAt.UTC().Format(time.RFC3339), m.Name, m.Value)
	}
	return b.String()
}

// oneLine flattens newlines and caps the text at 60 runes.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > 60 {
		return string(r[:59]) + "…"
	}
	return s
}
