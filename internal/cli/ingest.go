package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chelinho139/glitchbot/internal/ingest"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Database string
	Topic    string
}

// ingestResult reports one ingested feed.
type ingestResult struct {
	Feed     string `json:"feed"`
	Items    int    `json:"items"`
	Mentions int    `json:"mentions"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <feed>...",
		Short: "Store feed items as candidate content",
		Long: `Upsert the items of one or more feed files into the database.

Items without a topic get the --topic value. Re-ingesting an id overwrites
the stored item. Mentions are counted but not stored; use run to answer them.

Example:
  glitchbot ingest ./feed.yaml --db ./glitchbot.db
  glitchbot ingest a.yaml b.json --topic cryptocurrency`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args)
		},
	}

	addDBFlag(cmd, &opts.Database)
	cmd.Flags().StringVar(&opts.Topic, "topic", "", "topic for items without one (default $GLITCHBOT_TOPIC)")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *IngestOptions, paths []string) error {
	cfg, err := opts.settings()
	if err != nil {
		return err
	}
	topic := cfg.Topic
	if opts.Topic != "" {
		topic = opts.Topic
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	feeds := make([]ingest.Feed, 0, len(paths))
	for _, path := range paths {
		feed, err := ingest.Load(path)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load feed", err)
		}
		formatter.Verbosef("loaded %s: %d items, %d mentions", path, len(feed.Items), len(feed.Mentions))
		feeds = append(feeds, feed)
	}

	st, err := openStore(opts.Database, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	results := make([]ingestResult, 0, len(feeds))
	var b strings.Builder
	for i, feed := range feeds {
		n, err := ingest.Ingest(cmd.Context(), st, feed, topic)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to ingest feed", err)
		}
		results = append(results, ingestResult{Feed: paths[i], Items: n, Mentions: len(feed.Mentions)})
		fmt.Fprintf(&b, "%s: %d items, %d mentions\n", paths[i], n, len(feed.Mentions))
	}

	return formatter.Result(b.String(), results)
}
