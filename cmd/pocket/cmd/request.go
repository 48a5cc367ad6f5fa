package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var requestDCQLFile string

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Create a presentation-preview request from a DCQL query",
	Long: `Create a presentation-preview request on the node from a DCQL query
document and print the invocation URL. Hand the URL to the holder who
should answer it (or render it as a QR code yourself).

Examples:
  pocket request --dcql query.json`,
	Args: cobra.NoArgs,
	RunE: withApp(appOptions{requireNode: true}, runRequest),
}

func init() {
	requestCmd.Flags().StringVar(&requestDCQLFile, "dcql", "", "path to the DCQL query document (- for stdin)")
	_ = requestCmd.MarkFlagRequired("dcql")
	rootCmd.AddCommand(requestCmd)
}

func runRequest(ctx context.Context, a *app, _ []string) error {
	var (
		raw []byte
		err error
	)
	if requestDCQLFile == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(requestDCQLFile)
	}
	if err != nil {
		return fmt.Errorf("read DCQL query: %w", err)
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%s is not valid JSON", requestDCQLFile)
	}

	url, err := a.svc.CreateRequest(ctx, json.RawMessage(raw))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, url)
	return nil
}
