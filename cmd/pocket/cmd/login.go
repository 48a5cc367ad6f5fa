package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var loginAPIKey string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to the node with an API key",
	Long: `Authenticate to the node and start a session.

The API key comes from --api-key, the POCKET_API_KEY environment variable,
or an interactive prompt. The node identity comes from --node, pocket.yaml,
or the remembered node of a previous login.

Examples:
  pocket login --node acme --api-key pk_live_...
  POCKET_API_KEY=pk_live_... pocket login`,
	Args: cobra.NoArgs,
	RunE: withApp(appOptions{requireNode: true}, runLogin),
}

func init() {
	loginCmd.Flags().StringVar(&loginAPIKey, "api-key", "", "API key (prompted when not given)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(ctx context.Context, a *app, _ []string) error {
	apiKey := loginAPIKey
	if apiKey == "" {
		apiKey = os.Getenv("POCKET_API_KEY")
	}
	if apiKey == "" {
		var err error
		apiKey, err = promptLine("API key: ")
		if err != nil {
			return err
		}
	}
	if apiKey == "" {
		return fmt.Errorf("an API key is required")
	}

	expiresAt, err := a.svc.Login(ctx, apiKey)
	if err != nil {
		return err
	}

	rec := a.sessions.Node()
	fmt.Fprintf(stdout, "logged in to %s (session valid until %s)\n",
		rec.Identifier, expiresAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}
