package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SnapshotOptions holds flags for the snapshot command.
type SnapshotOptions struct {
	*RootOptions
	Database string
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SnapshotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print engagement counts",
		Long: `Print the engagement snapshot: content observed, outputs generated,
outputs posted and mentions answered.

Example:
  glitchbot snapshot --db ./glitchbot.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd, opts)
		},
	}

	addDBFlag(cmd, &opts.Database)

	return cmd
}

func runSnapshot(cmd *cobra.Command, opts *SnapshotOptions) error {
	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	snap, err := st.EngagementSnapshot(cmd.Context())
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read snapshot", err)
	}

	text := fmt.Sprintf("content: %d\ngenerated: %d\nposted: %d\nreplies: %d\n",
		snap.TotalMonitoredContent,
		snap.TotalThreadsGenerated,
		snap.TotalThreadsPosted,
		snap.TotalMentionResponses)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Result(text, snap)
}
