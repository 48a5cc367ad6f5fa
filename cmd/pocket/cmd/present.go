package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neoke/pocket/internal/adapter/outbound/node"
	"github.com/neoke/pocket/internal/service"
)

var (
	presentSelect   []int
	presentSkipX509 bool
	presentYes      bool
)

var presentCmd = &cobra.Command{
	Use:   "present <request-uri>",
	Short: "Answer a presentation request",
	Long: `Answer an openid4vp:// presentation request.

The request is previewed first: the verifier identity and the candidate
credentials for each query are shown. Disclosure happens only after a
consent rule pre-approves it, --yes is given, or you confirm interactively.

Examples:
  pocket present "openid4vp://?request_uri=https://..."
  pocket present --select 0,2 --yes "openid4vp://..."`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(appOptions{requireNode: true}, runPresent),
}

func init() {
	presentCmd.Flags().IntSliceVar(&presentSelect, "select", nil, "candidate indices to disclose (default: first candidate per query)")
	presentCmd.Flags().BoolVar(&presentSkipX509, "skip-x509-validation", false, "skip the verifier's X.509 chain validation")
	presentCmd.Flags().BoolVarP(&presentYes, "yes", "y", false, "approve the disclosure without prompting")
	rootCmd.AddCommand(presentCmd)
}

func runPresent(ctx context.Context, a *app, args []string) error {
	uri := args[0]

	preview, err := a.svc.Preview(ctx, uri)
	if err != nil {
		return err
	}
	printPreview(preview)

	redirect, err := a.svc.Present(ctx, uri, presentSelect, presentSkipX509, presentYes)
	if errors.Is(err, service.ErrConsentRequired) {
		if !confirm(fmt.Sprintf("disclose to %s?", preview.Verifier)) {
			return fmt.Errorf("disclosure declined")
		}
		redirect, err = a.svc.Present(ctx, uri, presentSelect, presentSkipX509, true)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "presentation submitted")
	if redirect != "" {
		fmt.Fprintf(stdout, "continue at: %s\n", redirect)
	}
	return nil
}

// printPreview shows the verifier and candidate credentials per query.
func printPreview(p *node.PresentationPreview) {
	fmt.Fprintf(stdout, "verifier: %s\n", p.Verifier)
	for _, q := range p.Queries {
		header := "requested:"
		if q.Purpose != "" {
			header = fmt.Sprintf("requested (%s):", q.Purpose)
		}
		fmt.Fprintln(stdout, header)
		for _, cand := range q.Candidates {
			desc := strings.Join(cand.Type, ", ")
			if desc == "" {
				desc = "credential"
			}
			fmt.Fprintf(stdout, "  [%d] %s from %s\n", cand.Index, desc, cand.Issuer)
		}
	}
}
