package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chelinho139/glitchbot/internal/quality"
)

// ScoreOptions holds flags for the score command.
type ScoreOptions struct {
	*RootOptions
	Followers int64
}

// NewScoreCommand creates the score command.
func NewScoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "score <text>",
		Short: "Score text with the quality rules",
		Long: `Score a text the way candidate content is scored: keyword hits, the
author's follower count and length.

Example:
  glitchbot score "New paper on zero-knowledge proof systems, with benchmarks."
  glitchbot score "moon soon" --followers 50 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScore(cmd, opts, args[0])
		},
	}

	cmd.Flags().Int64Var(&opts.Followers, "followers", -1, "author follower count (negative: unknown)")

	return cmd
}

func runScore(cmd *cobra.Command, opts *ScoreOptions, text string) error {
	cfg, err := opts.settings()
	if err != nil {
		return err
	}

	scorer := quality.NewScorer(quality.Options{
		MinFollowers:    cfg.MinFollowers,
		AcceptThreshold: cfg.PostScoreThreshold,
	})

	var author *quality.AuthorMetrics
	if opts.Followers >= 0 {
		author = &quality.AuthorMetrics{Followers: opts.Followers}
	}
	a := scorer.Score(text, author)

	verdict := "reject"
	if a.Accept {
		verdict = "accept"
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Result(fmt.Sprintf("%d %s (%s)\n", a.Score, verdict, a.Rationale), a)
}
