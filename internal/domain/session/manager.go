package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config holds Manager policy knobs.
type Config struct {
	// ForgetNodeOnLogout clears the remembered node on logout instead of
	// retaining it for re-entry convenience.
	ForgetNodeOnLogout bool

	// WatchInterval overrides the background expiry check cadence.
	// Default: WatchInterval (15s).
	WatchInterval time.Duration

	// Now overrides the clock, for tests. Default: time.Now.
	Now func() time.Time
}

// Manager is the single source of truth for "are we logged in, with what
// token, to which node". All methods are safe for concurrent use.
type Manager struct {
	store     Store
	logger    *slog.Logger
	cfg       Config
	onExpired func()

	mu        sync.Mutex
	state     State
	token     string
	expiresAt time.Time
	node      *NodeRecord

	// watchGen invalidates any watch goroutine armed for a previous token,
	// so a leaked tick can never fire against a stale session.
	watchGen  uint64
	watchStop chan struct{}
}

// NewManager creates a Manager. onExpired, if non-nil, is called (without
// locks held) whenever the session transitions Authenticated -> Expired.
func NewManager(store Store, logger *slog.Logger, cfg Config, onExpired func()) *Manager {
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = WatchInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		store:     store,
		logger:    logger,
		cfg:       cfg,
		onExpired: onExpired,
		state:     Unauthenticated,
	}
}

// Restore attempts a silent resume from the persisted session record. Call
// it once at startup, before anything issues a network request: it is what
// resolves the node base URL the API client must be primed with.
//
// Restore succeeds only when the durable node record exists and is within
// the inactivity window, the short-lived token record is present, and the
// token is not within RestoreExpiryGuard of its expiry. Anything else,
// including storage trouble, degrades to Unauthenticated.
func (m *Manager) Restore(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.cfg.Now()

	node, err := m.store.Node(ctx)
	if err != nil {
		m.logger.Warn("durable session record unreadable, starting unauthenticated", "error", err)
		return m.state
	}
	if node == nil {
		return m.state
	}
	// The node identity is remembered even when the token cannot be
	// restored, so login can re-target the same node.
	m.node = node

	if now.Sub(node.LastActivity) >= InactivityWindow {
		m.logger.Info("remembered session outside inactivity window, re-authentication required",
			"node", node.Identifier, "last_activity", node.LastActivity)
		return m.state
	}

	tok, err := m.store.Token(ctx)
	if err != nil {
		m.logger.Warn("token record unreadable, starting unauthenticated", "error", err)
		return m.state
	}
	if tok == nil || tok.Token == "" || tok.ExpiresAt.IsZero() {
		return m.state
	}
	if !now.Before(tok.ExpiresAt.Add(-RestoreExpiryGuard)) {
		// Too close to expiry to be worth resuming.
		if err := m.store.DeleteToken(ctx); err != nil {
			m.logger.Warn("failed to clear near-expiry token", "error", err)
		}
		return m.state
	}

	m.token = tok.Token
	m.expiresAt = tok.ExpiresAt
	m.state = Authenticated
	m.armWatchLocked()
	m.logger.Info("session restored", "node", node.Identifier, "expires_at", tok.ExpiresAt)
	return m.state
}

// SetToken transitions to Authenticated with a fresh token. The token tier
// is persisted and the durable activity timestamp touched, both best-effort.
// The expiry watch is re-armed for the new token.
func (m *Manager) SetToken(ctx context.Context, token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	m.expiresAt = expiresAt
	m.state = Authenticated

	if err := m.store.PutToken(ctx, &TokenRecord{Token: token, ExpiresAt: expiresAt}); err != nil {
		m.logger.Warn("session will not be remembered", "error", err)
	}
	m.touchActivityLocked(ctx)
	m.armWatchLocked()
}

// MarkExpired transitions to Expired, typically on a 401 from the node.
// The token is cleared from memory and storage; the node identity stays so
// re-authentication can reuse it.
func (m *Manager) MarkExpired(ctx context.Context) {
	m.mu.Lock()
	wasAuthenticated := m.state == Authenticated
	m.clearTokenLocked(ctx)
	m.state = Expired
	m.mu.Unlock()

	if wasAuthenticated && m.onExpired != nil {
		m.onExpired()
	}
}

// Logout transitions to Unauthenticated, clearing the token tier and the
// durable activity timestamp. The remembered node survives unless
// ForgetNodeOnLogout is set.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearTokenLocked(ctx)
	m.state = Unauthenticated

	if m.cfg.ForgetNodeOnLogout {
		m.node = nil
		if err := m.store.DeleteNode(ctx); err != nil {
			m.logger.Warn("failed to forget node", "error", err)
		}
		return
	}
	if m.node != nil {
		m.node.LastActivity = time.Time{}
		if err := m.store.PutNode(ctx, m.node); err != nil {
			m.logger.Warn("failed to clear activity timestamp", "error", err)
		}
	}
}

// SetNode records which node subsequent operations target. Switching to a
// different node invalidates any token held for the previous one.
func (m *Manager) SetNode(ctx context.Context, identifier, baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.node != nil && m.node.Identifier != identifier && m.token != "" {
		m.logger.Info("node changed, invalidating prior token",
			"previous", m.node.Identifier, "node", identifier)
		m.clearTokenLocked(ctx)
		m.state = Unauthenticated
	}

	var last time.Time
	if m.node != nil && m.node.Identifier == identifier {
		last = m.node.LastActivity
	}
	m.node = &NodeRecord{Identifier: identifier, BaseURL: baseURL, LastActivity: last}
	if err := m.store.PutNode(ctx, m.node); err != nil {
		m.logger.Warn("node will not be remembered", "error", err)
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BearerToken returns the current token. ok is false unless the session is
// Authenticated and outside the expiry warning window at the time of the
// call.
func (m *Manager) BearerToken() (token string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated {
		return "", false
	}
	if !m.cfg.Now().Before(m.expiresAt.Add(-ExpiryWarningWindow)) {
		return "", false
	}
	return m.token, true
}

// ExpiresAt returns the absolute expiry of the current token, zero when
// not authenticated.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}

// Node returns the active node record, or nil when none is set.
func (m *Manager) Node() *NodeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.node == nil {
		return nil
	}
	n := *m.node
	return &n
}

// SessionExpired reports whether a previously held session has lapsed, as
// opposed to never having logged in.
func (m *Manager) SessionExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Expired
}

// Close disarms the expiry watch. The Manager must not be used afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disarmWatchLocked()
}

// clearTokenLocked wipes the in-memory token, removes the short-lived tier,
// and disarms the watch. Callers hold m.mu.
func (m *Manager) clearTokenLocked(ctx context.Context) {
	m.token = ""
	m.expiresAt = time.Time{}
	m.disarmWatchLocked()
	if err := m.store.DeleteToken(ctx); err != nil {
		m.logger.Warn("failed to clear stored token", "error", err)
	}
}

// touchActivityLocked updates the durable activity timestamp. Callers hold m.mu.
func (m *Manager) touchActivityLocked(ctx context.Context) {
	if m.node == nil {
		return
	}
	m.node.LastActivity = m.cfg.Now()
	if err := m.store.PutNode(ctx, m.node); err != nil {
		m.logger.Warn("failed to touch activity timestamp", "error", err)
	}
}

// armWatchLocked starts the background expiry check for the current token,
// replacing any watch armed for a previous token. Callers hold m.mu.
func (m *Manager) armWatchLocked() {
	m.disarmWatchLocked()
	m.watchGen++
	gen := m.watchGen
	stop := make(chan struct{})
	m.watchStop = stop

	go func() {
		ticker := time.NewTicker(m.cfg.WatchInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if m.watchTick(gen) {
					return
				}
			}
		}
	}()
}

// disarmWatchLocked cancels the current watch, if any. Callers hold m.mu.
func (m *Manager) disarmWatchLocked() {
	if m.watchStop != nil {
		close(m.watchStop)
		m.watchStop = nil
	}
}

// watchTick evaluates one expiry check. It returns true when the watch
// should stop, either because it tripped or because it no longer guards the
// current token.
func (m *Manager) watchTick(gen uint64) bool {
	m.mu.Lock()
	if gen != m.watchGen || m.state != Authenticated {
		m.mu.Unlock()
		return true
	}
	if m.cfg.Now().Before(m.expiresAt.Add(-ExpiryWarningWindow)) {
		m.mu.Unlock()
		return false
	}

	m.logger.Info("session entering expiry window", "expires_at", m.expiresAt)
	m.token = ""
	m.expiresAt = time.Time{}
	m.state = Expired
	m.watchStop = nil // this goroutine exits; nothing to close
	m.watchGen++
	if err := m.store.DeleteToken(context.Background()); err != nil {
		m.logger.Warn("failed to clear stored token", "error", err)
	}
	m.mu.Unlock()

	if m.onExpired != nil {
		m.onExpired()
	}
	return true
}
