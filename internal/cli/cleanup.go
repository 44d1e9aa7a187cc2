package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// CleanupOptions holds flags for the cleanup command.
type CleanupOptions struct {
	*RootOptions
	Database string
	Days     int
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanupOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old rows",
		Long: `Delete content, outputs, responses and metrics older than the retention
period. Knowledge facts are kept.

Example:
  glitchbot cleanup --db ./glitchbot.db --days 30`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd, opts)
		},
	}

	addDBFlag(cmd, &opts.Database)
	cmd.Flags().IntVar(&opts.Days, "days", 0, "retention in days (default $GLITCHBOT_CLEANUP_DAYS)")

	return cmd
}

func runCleanup(cmd *cobra.Command, opts *CleanupOptions) error {
	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	retention := cfg.CleanupRetention()
	if cmd.Flags().Changed("days") {
		if opts.Days <= 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("--days must be positive, got %d", opts.Days))
		}
		retention = time.Duration(opts.Days) * 24 * time.Hour
	}

	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	removed, err := st.Cleanup(cmd.Context(), retention)
	if err != nil {
		return WrapExitError(ExitFailure, "cleanup failed", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Result(fmt.Sprintf("removed %d rows\n", removed), map[string]any{
		"removed":        removed,
		"retention_days": int(retention / (24 * time.Hour)),
	})
}
