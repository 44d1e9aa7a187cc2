package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chelinho139/glitchbot/internal/model"
)

// KnowledgeOptions holds flags for the knowledge command.
type KnowledgeOptions struct {
	*RootOptions
	Database string
}

// knowledgeFile is the on-disk format of the knowledge command.
type knowledgeFile struct {
	Facts []model.KnowledgeFact `yaml:"facts"`
}

// NewKnowledgeCommand creates the knowledge command.
func NewKnowledgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KnowledgeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "knowledge <facts.yaml>",
		Short: "Load knowledge facts",
		Long: `Upsert knowledge facts from a YAML file. A fact is keyed by topic and
concept; loading it again replaces its description, sources and confidence.

The file holds a facts list:

  facts:
    - topic: cryptocurrency
      concept: proof of stake
      description: Validators lock stake instead of burning energy.
      confidence_score: 0.8

Example:
  glitchbot knowledge ./facts.yaml --db ./glitchbot.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKnowledge(cmd, opts, args[0])
		},
	}

	addDBFlag(cmd, &opts.Database)

	return cmd
}

func runKnowledge(cmd *cobra.Command, opts *KnowledgeOptions, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read facts", err)
	}
	var file knowledgeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return WrapExitError(ExitCommandError, "failed to parse facts", err)
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

	ids := make([]int64, 0, len(file.Facts))
	for i, fact := range file.Facts {
		id, err := st.UpsertKnowledge(cmd.Context(), fact)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("fact %d", i), err)
		}
		ids = append(ids, id)
	}

	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return formatter.Result(fmt.Sprintf("stored %d facts\n", len(ids)), map[string]any{
		"stored": len(ids),
		"ids":    ids,
	})
}
