package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var keysOutput string

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List the wallet's signing keys on the node",
	Args:  cobra.NoArgs,
	RunE:  withApp(appOptions{requireNode: true}, runKeys),
}

func init() {
	keysCmd.Flags().StringVarP(&keysOutput, "output", "o", outputTable, "output format: table, json, or yaml")
	rootCmd.AddCommand(keysCmd)
}

func runKeys(ctx context.Context, a *app, _ []string) error {
	format, err := validOutput(keysOutput)
	if err != nil {
		return err
	}

	keys, err := a.svc.Keys(ctx)
	if err != nil {
		return err
	}
	if format != outputTable {
		return render(stdout, format, keys)
	}

	if len(keys) == 0 {
		fmt.Fprintln(stdout, "no keys")
		return nil
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tCREATED")
	for _, k := range keys {
		created := "-"
		if !k.CreatedAt.IsZero() {
			created = k.CreatedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", k.ID, k.Type, created)
	}
	return tw.Flush()
}
