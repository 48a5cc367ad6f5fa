package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var passphraseCmd = &cobra.Command{
	Use:   "passphrase",
	Short: "Manage the wallet unlock passphrase",
	Long: `Manage the optional passphrase that gates access to this wallet's state.

When a passphrase is set, every pocket invocation must unlock the wallet
first (via prompt, --passphrase, or POCKET_PASSPHRASE). The passphrase
protects access through the pocket CLI only; it does not encrypt the files
on disk.`,
}

var passphraseSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set or change the passphrase",
	Args:  cobra.NoArgs,
	RunE:  withApp(appOptions{}, runPassphraseSet),
}

var passphraseClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the passphrase",
	Args:  cobra.NoArgs,
	RunE:  withApp(appOptions{}, runPassphraseClear),
}

func init() {
	passphraseCmd.AddCommand(passphraseSetCmd)
	passphraseCmd.AddCommand(passphraseClearCmd)
	rootCmd.AddCommand(passphraseCmd)
}

func runPassphraseSet(ctx context.Context, a *app, _ []string) error {
	// newApp already verified the current passphrase when one exists.
	next, err := promptLine("New passphrase: ")
	if err != nil {
		return err
	}
	if next == "" {
		return fmt.Errorf("passphrase must not be empty (use `pocket passphrase clear` to remove it)")
	}
	again, err := promptLine("Repeat passphrase: ")
	if err != nil {
		return err
	}
	if next != again {
		return fmt.Errorf("passphrases do not match")
	}

	if err := a.store.SetPassphrase(next); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "passphrase set")
	return nil
}

func runPassphraseClear(ctx context.Context, a *app, _ []string) error {
	if err := a.store.SetPassphrase(""); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "passphrase removed")
	return nil
}
