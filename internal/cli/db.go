package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/chelinho139/glitchbot/internal/config"
	"github.com/chelinho139/glitchbot/internal/store"
)

// addDBFlag registers the --db flag shared by store commands.
func addDBFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "db", "", "path to SQLite database (default $GLITCHBOT_DB, then glitchbot.db)")
}

// openStore opens the database named by the flag, falling back to the
// configured path.
func openStore(flagPath string, cfg config.Config) (*store.Store, error) {
	path := flagPath
	if path == "" {
		path = cfg.DBPath
	}
	slog.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func closeStore(st *store.Store) {
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
