package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var receiveKeyID string

var receiveCmd = &cobra.Command{
	Use:   "receive <offer-uri>",
	Short: "Accept a credential offer",
	Long: `Accept an openid-credential-offer:// URI and store the credential.

The URI usually comes from a QR code or deep link handed out by an issuer.

Examples:
  pocket receive "openid-credential-offer://?credential_offer_uri=https://..."
  pocket receive --key key-7 "openid-credential-offer://..."`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(appOptions{requireNode: true}, runReceive),
}

func init() {
	receiveCmd.Flags().StringVar(&receiveKeyID, "key", "", "signing key to bind the credential to (default: node chooses)")
	rootCmd.AddCommand(receiveCmd)
}

func runReceive(ctx context.Context, a *app, args []string) error {
	if err := showFirstRunNotice(a); err != nil {
		return err
	}

	keyID := receiveKeyID
	if keyID == "" {
		keyID = a.cfg.Wallet.DefaultKeyID
	}

	cred, err := a.svc.ReceiveOffer(ctx, args[0], keyID)
	if err != nil {
		return err
	}

	label := cred.ID
	if cred.Display != nil && cred.Display.Label != "" {
		label = fmt.Sprintf("%s (%s)", cred.Display.Label, cred.ID)
	}
	fmt.Fprintf(stdout, "received %s from %s\n", label, cred.Issuer)
	return nil
}

// showFirstRunNotice prints the storage notice once per wallet.
func showFirstRunNotice(a *app) error {
	shown, err := a.store.FirstRunNoticeShown()
	if err != nil || shown {
		return err
	}
	fmt.Fprintf(stdout, "Credentials are cached unencrypted in %s.\n", a.cfg.State.Dir)
	fmt.Fprintln(stdout, "Consider `pocket passphrase set` to gate access to this wallet.")
	return a.store.MarkFirstRunNoticeShown()
}
