package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and wallet status",
	Args:  cobra.NoArgs,
	RunE:  withApp(appOptions{}, runStatus),
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", outputTable, "output format: table, json, or yaml")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(ctx context.Context, a *app, _ []string) error {
	format, err := validOutput(statusOutput)
	if err != nil {
		return err
	}

	st := a.svc.Status(ctx)
	if format != outputTable {
		return render(stdout, format, st)
	}

	fmt.Fprintf(stdout, "state:       %s\n", st.State)
	if st.Node != nil {
		fmt.Fprintf(stdout, "node:        %s (%s)\n", st.Node.Identifier, st.Node.BaseURL)
	} else {
		fmt.Fprintln(stdout, "node:        none")
	}
	if st.ExpiresAt != nil {
		fmt.Fprintf(stdout, "expires:     %s\n", st.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(stdout, "credentials: %d cached\n", st.CredentialCount)
	return nil
}
