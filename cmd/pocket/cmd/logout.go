package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	Long: `End the current session and remove the stored token.

The remembered node survives logout unless wallet.forget_node_on_logout is
set, so the next login targets the same node without --node.`,
	Args: cobra.NoArgs,
	RunE: withApp(appOptions{}, runLogout),
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	a.svc.Logout(ctx)
	fmt.Fprintln(stdout, "logged out")
	return nil
}
