// Package session owns the wallet's authentication state: which node we
// talk to, the bearer token, its expiry, and the inactivity-gated silent
// restore of a remembered session.
package session

import (
	"context"
	"time"
)

// State is the session lifecycle state.
type State int

const (
	// Unauthenticated means no token is held and none has lapsed.
	Unauthenticated State = iota
	// Authenticated means a token is held and outside its warning window.
	Authenticated
	// Expired means a token was held and has lapsed; the node identity is
	// retained so re-authentication can reuse it.
	Expired
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

const (
	// ExpiryWarningWindow is how long before the token's absolute expiry
	// the session is already treated as expired, so the user re-authenticates
	// before requests start failing.
	ExpiryWarningWindow = 5 * time.Minute

	// RestoreExpiryGuard rejects silent restore of a token within a minute
	// of its expiry; such a token is treated as already dead.
	RestoreExpiryGuard = time.Minute

	// InactivityWindow is how long a remembered node record stays silently
	// restorable. Beyond it the durable record is treated as absent.
	InactivityWindow = 7 * 24 * time.Hour

	// WatchInterval is how often the background watch re-evaluates expiry.
	WatchInterval = 15 * time.Second
)

// TokenRecord is the short-lived storage tier: the bearer token and its
// absolute expiry. Cleared on logout and on expiry.
type TokenRecord struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NodeRecord is the durable storage tier: the remembered node and the last
// activity timestamp that gates silent restore. It survives logout under the
// default retention policy.
type NodeRecord struct {
	Identifier   string    `json:"identifier"`
	BaseURL      string    `json:"base_url"`
	LastActivity time.Time `json:"last_activity"`
}

// Store persists the two session tiers. Implementations report failures
// explicitly; the Manager degrades every failure to "session not
// remembered" and never lets one corrupt its in-memory state.
type Store interface {
	// Token returns the short-lived record, or nil when absent.
	Token(ctx context.Context) (*TokenRecord, error)
	PutToken(ctx context.Context, rec *TokenRecord) error
	DeleteToken(ctx context.Context) error

	// Node returns the durable record, or nil when absent.
	Node(ctx context.Context) (*NodeRecord, error)
	PutNode(ctx context.Context, rec *NodeRecord) error
	DeleteNode(ctx context.Context) error
}
