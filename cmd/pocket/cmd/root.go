// Package cmd provides the CLI commands for pocket.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neoke/pocket/internal/config"
)

var (
	cfgFile      string
	nodeOverride string
	stateDirFlag string
	devMode      bool
	passphrase   string
)

var rootCmd = &cobra.Command{
	Use:   "pocket",
	Short: "pocket - cloud wallet client for verifiable credentials",
	Long: `pocket is a command-line client for a cloud wallet hosted on an id-node.

It authenticates with an API key, receives credentials from
openid-credential-offer:// URIs, keeps a local credential cache reconciled
against the node, and answers openid4vp:// presentation requests.

Quick start:
  1. pocket login --node <your-node> --api-key <key>
  2. pocket creds list --refresh

Configuration:
  Config is loaded from pocket.yaml in the current directory,
  $HOME/.pocket/, or /etc/pocket/.

  Environment variables can override config values with the POCKET_ prefix.
  Example: POCKET_NODE_IDENTIFIER=acme

State:
  Client-side state (session, wallet record, credential cache) lives in
  $HOME/.pocket by default. Override with --state-dir or state.dir.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./pocket.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeOverride, "node", "", "node identifier or URL (overrides config and remembered node)")
	rootCmd.PersistentFlags().StringVar(&stateDirFlag, "state-dir", "", "state directory (default: ~/.pocket)")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "enable development mode (debug logging)")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "unlock passphrase (prompted when required and not given)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
