package cmd

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/neoke/pocket/internal/adapter/outbound/node"
	"github.com/neoke/pocket/internal/adapter/outbound/store"
	"github.com/neoke/pocket/internal/config"
	"github.com/neoke/pocket/internal/domain/consent"
	"github.com/neoke/pocket/internal/domain/credential"
	"github.com/neoke/pocket/internal/domain/session"
	"github.com/neoke/pocket/internal/observability"
	"github.com/neoke/pocket/internal/service"
)

// app holds the wired components shared by all commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.FileSessionStore
	cache    *store.CredentialCache
	sessions *session.Manager
	client   *node.Client
	svc      *service.WalletService
	registry *prometheus.Registry
	metrics  *observability.NodeMetrics

	telemetry  *observability.Telemetry
	traceFile  *os.File
	metricFile *os.File
}

// appOptions control optional wiring steps.
type appOptions struct {
	// requireNode fails fast when no node is configured, remembered, or
	// given with --node. Commands that never touch the network leave it off.
	requireNode bool
}

// newApp loads config, opens state, restores the session, and wires the
// node client and wallet service. Callers must Close it.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, err
	}
	if devMode {
		cfg.DevMode = true
	}
	if stateDirFlag != "" {
		cfg.State.Dir = stateDirFlag
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	a := &app{cfg: cfg}
	a.logger = observability.NewLogger(os.Stderr, cfg.Observability.LogLevel)

	if err := a.initTelemetry(); err != nil {
		return nil, err
	}

	a.store, err = store.NewFileSessionStore(cfg.State.Dir, a.logger)
	if err != nil {
		a.closePartial()
		return nil, err
	}

	if err := a.unlock(); err != nil {
		a.closePartial()
		return nil, err
	}

	a.cache, err = store.OpenCredentialCache(filepath.Join(cfg.State.Dir, "credentials.db"))
	if err != nil {
		a.closePartial()
		return nil, err
	}

	a.sessions = session.NewManager(a.store, a.logger, session.Config{
		ForgetNodeOnLogout: cfg.Wallet.ForgetNodeOnLogout,
	}, func() {
		fmt.Fprintln(os.Stderr, "session expired, log in again with `pocket login`")
	})
	a.sessions.Restore(ctx)

	identifier := nodeOverride
	if identifier == "" {
		identifier = cfg.Node.Identifier
	}
	if identifier == "" {
		if rec := a.sessions.Node(); rec != nil {
			identifier = rec.Identifier
		}
	}
	if identifier == "" && opts.requireNode {
		a.closePartial()
		return nil, fmt.Errorf("no node configured: pass --node, set node.identifier in pocket.yaml, or log in once")
	}

	baseURL := ""
	if identifier != "" {
		baseURL = node.ResolveBaseURL(identifier)
		a.sessions.SetNode(ctx, identifier, baseURL)
	}

	a.registry = observability.NewRegistry()
	a.metrics = observability.NewNodeMetrics(a.registry)
	a.client = node.NewClient(baseURL, a.sessions,
		node.WithLogger(a.logger),
		node.WithTimeout(cfg.NodeTimeout()),
		node.WithMetrics(a.metrics),
	)

	consentEngine, err := buildConsentEngine(cfg)
	if err != nil {
		a.closePartial()
		return nil, err
	}

	reconciler := credential.NewReconciler(a.cache,
		credential.EmptyServerPolicy(cfg.Wallet.EmptyServerPolicy), a.logger)
	a.svc = service.NewWalletService(a.sessions, a.client, reconciler, a.cache, consentEngine, a.logger)
	return a, nil
}

// initTelemetry opens the export files and installs the providers when
// tracing is enabled.
func (a *app) initTelemetry() error {
	if !a.cfg.Observability.Tracing {
		a.telemetry = &observability.Telemetry{}
		return nil
	}
	if err := os.MkdirAll(a.cfg.State.Dir, 0700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	var err error
	a.traceFile, err = os.OpenFile(filepath.Join(a.cfg.State.Dir, "traces.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open trace export file: %w", err)
	}
	a.metricFile, err = os.OpenFile(filepath.Join(a.cfg.State.Dir, "metrics.jsonl"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open metric export file: %w", err)
	}
	a.telemetry, err = observability.InitTelemetry(true, a.traceFile, a.metricFile, a.logger)
	return err
}

// unlock enforces the optional state passphrase before any stored state is
// honored.
func (a *app) unlock() error {
	has, err := a.store.HasPassphrase()
	if err != nil {
		return err
	}
	if !has {
		return nil
	}
	pw := passphrase
	if pw == "" {
		pw = os.Getenv("POCKET_PASSPHRASE")
	}
	if pw == "" {
		pw, err = promptLine("Passphrase: ")
		if err != nil {
			return err
		}
	}
	return a.store.VerifyPassphrase(pw)
}

// Close releases everything newApp opened.
func (a *app) Close(ctx context.Context) {
	if a.sessions != nil {
		a.sessions.Close()
	}
	a.closePartial()
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown failed", "error", err)
		}
		a.telemetry = nil
	}
}

// closePartial closes what is safe to close during failed construction.
func (a *app) closePartial() {
	if a.cache != nil {
		_ = a.cache.Close()
		a.cache = nil
	}
	if a.traceFile != nil {
		_ = a.traceFile.Close()
		a.traceFile = nil
	}
	if a.metricFile != nil {
		_ = a.metricFile.Close()
		a.metricFile = nil
	}
}

// buildConsentEngine compiles the configured consent rules. A config with
// no rules yields a nil engine, meaning every disclosure prompts.
func buildConsentEngine(cfg *config.Config) (*consent.Engine, error) {
	if len(cfg.Consent.Rules) == 0 {
		return nil, nil
	}
	rules := make([]consent.Rule, 0, len(cfg.Consent.Rules))
	for _, r := range cfg.Consent.Rules {
		rules = append(rules, consent.Rule{Name: r.Name, Expression: r.Expression})
	}
	eng, err := consent.NewEngine(rules)
	if err != nil {
		return nil, fmt.Errorf("consent rules: %w", err)
	}
	return eng, nil
}

// withApp wraps a command body with app construction and teardown.
func withApp(opts appOptions, run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, opts)
		if err != nil {
			return err
		}
		defer a.Close(ctx)
		return run(ctx, a, args)
	}
}

// promptLine reads one line from stdin after printing prompt to stderr.
func promptLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question on stderr. Anything but y/yes is no.
func confirm(prompt string) bool {
	answer, err := promptLine(prompt + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}
