// Package config provides configuration types and loading for pocket.
//
// Configuration is file-based (pocket.yaml) with POCKET_* environment
// overrides. Everything has a default: a fresh install runs with no config
// file at all, remembering its node from the first `pocket login --node`.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the top-level configuration for pocket.
type Config struct {
	// Node configures the id-node connection.
	Node NodeConfig `yaml:"node" mapstructure:"node"`

	// State configures where client-side state lives.
	State StateConfig `yaml:"state" mapstructure:"state"`

	// Wallet configures reconciliation and session policy.
	Wallet WalletConfig `yaml:"wallet" mapstructure:"wallet"`

	// Consent defines rules that pre-approve disclosures.
	Consent ConsentConfig `yaml:"consent" mapstructure:"consent"`

	// Observability configures logging, metrics, and trace export.
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`

	// DevMode enables development conveniences (debug logging).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// NodeConfig configures the id-node connection.
type NodeConfig struct {
	// Identifier is the node to talk to. A bare identifier expands to
	// https://<identifier>.id-node.neoke.com; a hostname or URL is used
	// as-is. Overridable per-invocation with --node.
	Identifier string `yaml:"identifier" mapstructure:"identifier"`

	// Timeout is the per-request timeout (e.g. "30s").
	// Defaults to "30s" if not specified.
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty,duration"`
}

// StateConfig configures the client-side state directory.
type StateConfig struct {
	// Dir holds session.json, wallet.json, and credentials.db.
	// Defaults to ~/.pocket.
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// WalletConfig configures wallet behavior.
type WalletConfig struct {
	// EmptyServerPolicy decides what an empty server credential list does
	// to a non-empty local cache: "preserve" keeps the cache, "clear"
	// wipes it. Defaults to "preserve".
	EmptyServerPolicy string `yaml:"empty_server_policy" mapstructure:"empty_server_policy" validate:"omitempty,oneof=preserve clear"`

	// ForgetNodeOnLogout clears the remembered node on logout instead of
	// retaining it for the next login.
	ForgetNodeOnLogout bool `yaml:"forget_node_on_logout" mapstructure:"forget_node_on_logout"`

	// DefaultKeyID is the signing key offered for credential binding when
	// `receive` is not given one explicitly.
	DefaultKeyID string `yaml:"default_key_id" mapstructure:"default_key_id"`
}

// ConsentConfig configures disclosure consent rules.
type ConsentConfig struct {
	// Rules are CEL expressions over `verifier` and `credential`. A rule
	// evaluating to true pre-approves the disclosure. No rules means every
	// disclosure prompts.
	Rules []ConsentRuleConfig `yaml:"rules" mapstructure:"rules" validate:"omitempty,dive"`
}

// ConsentRuleConfig is one named consent rule.
type ConsentRuleConfig struct {
	// Name identifies the rule in logs and prompts.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Expression is the CEL expression.
	Expression string `yaml:"expression" mapstructure:"expression" validate:"required"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info"; DevMode overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// DebugAddr, when set, serves Prometheus metrics on /metrics at this
	// address for long-running modes. Empty disables the listener.
	DebugAddr string `yaml:"debug_addr" mapstructure:"debug_addr" validate:"omitempty,hostname_port"`

	// Tracing enables OpenTelemetry export of spans and metric snapshots
	// to files under the state directory.
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`
}

// SetDefaults applies default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Node.Timeout == "" {
		c.Node.Timeout = "30s"
	}
	if c.State.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.State.Dir = filepath.Join(home, ".pocket")
		} else {
			c.State.Dir = ".pocket"
		}
	}
	if c.Wallet.EmptyServerPolicy == "" {
		c.Wallet.EmptyServerPolicy = "preserve"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
}

// SetDevDefaults applies development-mode defaults. Applied after
// SetDefaults and any CLI flag overrides, before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Observability.LogLevel = "debug"
}

// NodeTimeout returns the parsed request timeout. Validation guarantees
// the string parses; a zero value still falls back to 30 seconds.
func (c *Config) NodeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Node.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
