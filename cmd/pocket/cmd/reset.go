package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/neoke/pocket/internal/config"
)

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset pocket to a clean state",
	Long: `Reset pocket by removing all client-side state.

This removes the session, the remembered node, the unlock passphrase, the
credential cache, and any telemetry export files from the state directory.
Credentials stored on the node are not touched; a later login can fetch
them again.

Examples:
  # Interactive confirmation
  pocket reset

  # No prompt
  pocket reset --force`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetForce, "force", false, "skip confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

// stateFiles are the files pocket owns inside the state directory. Only
// these are removed; the directory may hold the user's pocket.yaml.
var stateFiles = []string{
	"session.json",
	"session.json.bak",
	"wallet.json",
	"wallet.json.bak",
	"wallet.json.lock",
	"credentials.db",
	"traces.jsonl",
	"metrics.jsonl",
}

func runReset(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return err
	}
	if stateDirFlag != "" {
		cfg.State.Dir = stateDirFlag
	}

	if !resetForce && !confirm(fmt.Sprintf("remove all wallet state in %s?", cfg.State.Dir)) {
		return fmt.Errorf("reset aborted")
	}

	removed := 0
	for _, name := range stateFiles {
		path := filepath.Join(cfg.State.Dir, name)
		switch err := os.Remove(path); {
		case err == nil:
			removed++
		case os.IsNotExist(err):
			// Nothing to do.
		default:
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	fmt.Fprintf(stdout, "reset complete (%d files removed)\n", removed)
	return nil
}
