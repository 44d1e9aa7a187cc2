package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/chelinho139/glitchbot/internal/engine"
)

// ConfirmOptions holds flags for the confirm command.
type ConfirmOptions struct {
	*RootOptions
	Database string
}

// NewConfirmCommand creates the confirm command.
func NewConfirmCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfirmOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "confirm <output-id> <published-id>",
		Short: "Mark a generated output as published",
		Long: `Record that a generated output was published outside the loop.
Confirming an output twice changes nothing.

Example:
  glitchbot confirm 42 1849302019 --db ./glitchbot.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirm(cmd, opts, args[0], args[1])
		},
	}

	addDBFlag(cmd, &opts.Database)

	return cmd
}

func runConfirm(cmd *cobra.Command, opts *ConfirmOptions, rawID, publishedID string) error {
	outputID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || outputID <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid output id %q", rawID))
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

	eng := engine.New(st, nil, nil, nil, engine.WithConfig(cfg.Engine()))
	if err := eng.ConfirmPublished(cmd.Context(), outputID, publishedID); err != nil {
		return WrapExitError(ExitFailure, "confirm failed", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Result(fmt.Sprintf("output %d published as %s\n", outputID, publishedID), map[string]any{
		"output_id":    outputID,
		"published_id": publishedID,
	})
}
