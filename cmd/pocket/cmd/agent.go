package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/neoke/pocket/internal/adapter/inbound/agent"
	"github.com/neoke/pocket/internal/observability"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve wallet operations over JSON-RPC on stdio",
	Long: `Serve wallet operations as newline-delimited JSON-RPC on stdin/stdout,
for automation and AI agents. Logs go to stderr; stdout carries only
responses.

Methods: wallet/status, credentials/list, offers/receive,
presentations/preview, presentations/respond.

When observability.debug_addr is configured, Prometheus metrics are served
on /metrics for the lifetime of the agent.`,
	Args: cobra.NoArgs,
	RunE: withApp(appOptions{requireNode: true}, runAgent),
}

func init() {
	rootCmd.AddCommand(agentCmd)
}

func runAgent(ctx context.Context, a *app, _ []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var debug *observability.DebugServer
	if addr := a.cfg.Observability.DebugAddr; addr != "" {
		debug = observability.NewDebugServer(addr, a.registry, a.logger)
		debug.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := debug.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("debug listener shutdown failed", "error", err)
			}
		}()
	}

	a.logger.Info("agent bridge started")
	bridge := agent.NewBridge(a.svc, a.logger)
	err := bridge.Run(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.logger.Info("agent bridge stopped")
	return err
}
