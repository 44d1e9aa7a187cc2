package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/chelinho139/glitchbot/internal/config"
)

// testRoot returns root options with settings pointing at a fresh database.
func testRoot(t *testing.T, format string) (*RootOptions, string) {
	t.Helper()
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "glitchbot.db")
	return &RootOptions{Format: format, Settings: &cfg}, cfg.DBPath
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// decodeData unmarshals the data field of a JSON CLI response into v.
func decodeData(t *testing.T, out string, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

const testFeed = `
items:
  - id: "100"
    text: New research on agent planning, with benchmark data.
    author: researcher
  - id: "101"
    text: Quiet day.
    topic: misc
mentions:
  - id: "900"
    author: alice
    text: "@glitchbot what do you make of the planning paper?"
`

const testResponses = `
reply:
  - Planning benchmarks are finally getting serious.
quote:
  - Solid numbers on agent planning
`
