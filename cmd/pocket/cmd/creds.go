package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	credsOutput  string
	credsRefresh bool
)

var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Work with stored credentials",
}

var credsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials",
	Long: `List credentials from the local cache.

With --refresh, the list is first reconciled against the node. When the
node is unreachable the cached list is shown with a degraded-mode notice.`,
	Args: cobra.NoArgs,
	RunE: withApp(appOptions{}, runCredsList),
}

var credsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one credential in full",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(appOptions{}, runCredsShow),
}

var credsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a credential",
	Long: `Delete a credential from the local cache and, best-effort, from the node.

The local removal always happens; a node-side failure is reported but does
not restore the credential.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(appOptions{}, runCredsDelete),
}

func init() {
	credsListCmd.Flags().StringVarP(&credsOutput, "output", "o", outputTable, "output format: table, json, or yaml")
	credsListCmd.Flags().BoolVar(&credsRefresh, "refresh", false, "reconcile against the node before listing")
	credsShowCmd.Flags().StringVarP(&credsOutput, "output", "o", outputJSON, "output format: json or yaml")

	credsCmd.AddCommand(credsListCmd)
	credsCmd.AddCommand(credsShowCmd)
	credsCmd.AddCommand(credsDeleteCmd)
	rootCmd.AddCommand(credsCmd)
}

func runCredsList(ctx context.Context, a *app, _ []string) error {
	format, err := validOutput(credsOutput)
	if err != nil {
		return err
	}

	if credsRefresh {
		creds, degraded, err := a.svc.Refresh(ctx)
		if err != nil {
			return err
		}
		if degraded {
			fmt.Fprintln(stdout, "note: node unreachable or incomplete, showing locally cached data")
		}
		return renderCredentials(stdout, format, creds)
	}

	creds, err := a.svc.Credentials(ctx)
	if err != nil {
		return err
	}
	return renderCredentials(stdout, format, creds)
}

func runCredsShow(ctx context.Context, a *app, args []string) error {
	format, err := validOutput(credsOutput)
	if err != nil {
		return err
	}
	if format == outputTable {
		format = outputJSON
	}

	creds, err := a.svc.Credentials(ctx)
	if err != nil {
		return err
	}
	for _, c := range creds {
		if c.ID == args[0] {
			return render(stdout, format, c)
		}
	}
	return fmt.Errorf("no credential with id %q", args[0])
}

func runCredsDelete(ctx context.Context, a *app, args []string) error {
	if err := a.svc.DeleteCredential(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "deleted %s\n", args[0])
	return nil
}
