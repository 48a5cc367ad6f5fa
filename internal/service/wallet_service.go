// Package service contains the wallet orchestration layer: it ties the
// session manager, node client, reconciler, and consent engine together
// behind the operations the CLI and agent bridge expose.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neoke/pocket/internal/adapter/outbound/node"
	"github.com/neoke/pocket/internal/domain/consent"
	"github.com/neoke/pocket/internal/domain/credential"
	"github.com/neoke/pocket/internal/domain/session"
	"github.com/neoke/pocket/internal/domain/walleturi"
)

// ErrConsentRequired means a disclosure was neither covered by a consent
// rule nor explicitly approved. The CLI reacts by prompting; the agent
// bridge reports it to the caller.
var ErrConsentRequired = errors.New("disclosure requires explicit consent")

// NodeAPI is the slice of the node client the wallet service uses.
type NodeAPI interface {
	Authenticate(ctx context.Context, apiKey string) (string, time.Time, error)
	CreatePresentationRequest(ctx context.Context, dcql json.RawMessage) (string, error)
	PreviewPresentation(ctx context.Context, requestURI string) (*node.PresentationPreview, error)
	SubmitPresentation(ctx context.Context, req node.SubmitRequest) (string, error)
	ReceiveCredential(ctx context.Context, offerURI, keyID string) (*credential.Credential, error)
	ListStoredCredentials(ctx context.Context) ([]credential.Credential, error)
	DeleteStoredCredential(ctx context.Context, id string) error
	ListKeys(ctx context.Context) ([]node.Key, error)
}

// CredentialStore is the local cache with single-entry removal on top of
// the reconciler's wholesale view.
type CredentialStore interface {
	credential.Cache
	Delete(ctx context.Context, id string) error
}

// WalletService implements the wallet operations.
type WalletService struct {
	sessions   *session.Manager
	node       NodeAPI
	reconciler *credential.Reconciler
	creds      CredentialStore
	consent    *consent.Engine
	logger     *slog.Logger
}

// NewWalletService creates the service. consentEngine may be nil, in which
// case every disclosure requires explicit approval.
func NewWalletService(sessions *session.Manager, nodeAPI NodeAPI, reconciler *credential.Reconciler,
	creds CredentialStore, consentEngine *consent.Engine, logger *slog.Logger) *WalletService {
	return &WalletService{
		sessions:   sessions,
		node:       nodeAPI,
		reconciler: reconciler,
		creds:      creds,
		consent:    consentEngine,
		logger:     logger,
	}
}

// Login exchanges the API key for a bearer token and installs it in the
// session. Returns the token's absolute expiry.
func (s *WalletService) Login(ctx context.Context, apiKey string) (time.Time, error) {
	token, expiresAt, err := s.node.Authenticate(ctx, apiKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("login: %w", err)
	}
	s.sessions.SetToken(ctx, token, expiresAt)
	s.logger.Info("logged in", "expires_at", expiresAt)
	return expiresAt, nil
}

// Logout ends the session locally. The node is not notified; bearer tokens
// simply lapse.
func (s *WalletService) Logout(ctx context.Context) {
	s.sessions.Logout(ctx)
	s.logger.Info("logged out")
}

// Status is a point-in-time snapshot of the wallet for display.
type Status struct {
	State           string              `json:"state"`
	Node            *session.NodeRecord `json:"node,omitempty"`
	ExpiresAt       *time.Time          `json:"expiresAt,omitempty"`
	CredentialCount int                 `json:"credentialCount"`
}

// Status reports the session state, active node, token expiry, and cached
// credential count. Cache trouble degrades to a zero count.
func (s *WalletService) Status(ctx context.Context) Status {
	st := Status{
		State: s.sessions.State().String(),
		Node:  s.sessions.Node(),
	}
	if exp := s.sessions.ExpiresAt(); !exp.IsZero() {
		st.ExpiresAt = &exp
	}
	cached, err := s.creds.Load(ctx)
	if err != nil {
		s.logger.Warn("credential cache unreadable", "error", err)
	}
	st.CredentialCount = len(cached)
	return st
}

// Credentials returns the local credential cache without touching the node.
func (s *WalletService) Credentials(ctx context.Context) ([]credential.Credential, error) {
	return s.creds.Load(ctx)
}

// Refresh fetches the node's credential list and reconciles it into the
// local cache. degraded is true when connectivity failed and the returned
// list is the local cache only.
//
// A 401 marks the session expired and propagates; it is never masked with
// cached data. A 404 on the listing endpoint falls back to key-based
// discovery.
func (s *WalletService) Refresh(ctx context.Context) (creds []credential.Credential, degraded bool, err error) {
	gen := s.reconciler.Begin()

	server, err := s.node.ListStoredCredentials(ctx)
	switch {
	case err == nil:
		// Fall through to reconcile.
	case errors.Is(err, node.ErrUnauthorized):
		s.sessions.MarkExpired(ctx)
		return nil, false, err
	case errors.Is(err, node.ErrNotFound):
		return s.refreshViaKeys(ctx, gen)
	case isConnectionError(err):
		local, ferr := s.reconciler.Fallback(ctx, err)
		if ferr != nil {
			return nil, false, ferr
		}
		s.logger.Warn("node unreachable, serving cached credentials", "error", err)
		return local, true, nil
	default:
		return nil, false, err
	}

	merged, err := s.reconciler.Reconcile(ctx, gen, server)
	if err != nil {
		return nil, false, err
	}
	return merged, false, nil
}

// refreshViaKeys is the discovery path for nodes without a stored-credentials
// listing: the key list proves connectivity and auth, and when the cache is
// empty it seeds positional stubs so the wallet is not blind.
func (s *WalletService) refreshViaKeys(ctx context.Context, gen uint64) ([]credential.Credential, bool, error) {
	keys, err := s.node.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, node.ErrUnauthorized) {
			s.sessions.MarkExpired(ctx)
		}
		return nil, false, err
	}

	local, err := s.creds.Load(ctx)
	if err != nil {
		s.logger.Warn("credential cache unreadable during discovery", "error", err)
		local = nil
	}
	if len(local) > 0 {
		// The cache stays authoritative; a key listing carries no credential
		// detail worth overwriting it with.
		if len(local) != len(keys) {
			s.logger.Info("key count differs from cached credentials",
				"keys", len(keys), "cached", len(local))
		}
		return local, true, nil
	}

	stubs := make([]credential.Credential, 0, len(keys))
	for i := range keys {
		c := credential.Credential{ID: credential.SynthesizeID("", i)}
		c.Display = credential.SynthesizeDisplay(&c)
		stubs = append(stubs, c)
	}
	merged, err := s.reconciler.Reconcile(ctx, gen, stubs)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("seeded credential stubs from key listing", "count", len(merged))
	return merged, true, nil
}

// ReceiveOffer redeems a credential offer URI and appends the credential to
// the local cache. keyID optionally selects the binding key.
func (s *WalletService) ReceiveOffer(ctx context.Context, uri, keyID string) (*credential.Credential, error) {
	kind, err := walleturi.Classify(uri)
	if err != nil {
		return nil, err
	}
	if kind != walleturi.CredentialOffer {
		return nil, fmt.Errorf("%q is a %s, not a credential offer", uri, kind)
	}

	cred, err := s.node.ReceiveCredential(ctx, uri, keyID)
	if err != nil {
		if errors.Is(err, node.ErrUnauthorized) {
			s.sessions.MarkExpired(ctx)
		}
		return nil, fmt.Errorf("receive credential: %w", err)
	}

	local, err := s.creds.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential cache: %w", err)
	}
	if cred.ID == "" {
		cred.ID = credential.SynthesizeID(cred.DocType, len(local))
	}
	if cred.Display == nil {
		cred.Display = credential.SynthesizeDisplay(cred)
	}

	replaced := false
	for i := range local {
		if local[i].ID == cred.ID {
			local[i] = *cred
			replaced = true
			break
		}
	}
	if !replaced {
		local = append(local, *cred)
	}
	if err := s.creds.Replace(ctx, local); err != nil {
		return nil, fmt.Errorf("cache received credential: %w", err)
	}
	s.logger.Info("credential received", "id", cred.ID, "issuer", cred.Issuer)
	return cred, nil
}

// Preview resolves a presentation request URI into the verifier identity
// and candidate credentials, without disclosing anything.
func (s *WalletService) Preview(ctx context.Context, uri string) (*node.PresentationPreview, error) {
	kind, err := walleturi.Classify(uri)
	if err != nil {
		return nil, err
	}
	if kind != walleturi.PresentationRequest {
		return nil, fmt.Errorf("%q is a %s, not a presentation request", uri, kind)
	}
	preview, err := s.node.PreviewPresentation(ctx, uri)
	if err != nil {
		if errors.Is(err, node.ErrUnauthorized) {
			s.sessions.MarkExpired(ctx)
		}
		return nil, fmt.Errorf("preview presentation: %w", err)
	}
	return preview, nil
}

// ConsentGranted evaluates the consent rules for disclosing a candidate to
// a verifier. With no engine configured nothing is pre-approved.
func (s *WalletService) ConsentGranted(ctx context.Context, verifier string, cand node.Candidate) (bool, string) {
	if s.consent == nil {
		return false, ""
	}
	cred := &credential.Credential{Type: cand.Type, Issuer: cand.Issuer}
	return s.consent.Allow(ctx, verifier, cred)
}

// Present answers a presentation request end to end: preview, consent
// check per selected candidate, submit. selections index into the flattened
// candidate list; empty selections means every query's first candidate.
// approved skips the consent rules, as an interactive "yes" does.
func (s *WalletService) Present(ctx context.Context, uri string, selections []int, skipX509, approved bool) (redirect string, err error) {
	preview, err := s.Preview(ctx, uri)
	if err != nil {
		return "", err
	}

	if len(selections) == 0 {
		selections = defaultSelections(preview)
	}

	if !approved {
		for _, cand := range selectedCandidates(preview, selections) {
			ok, rule := s.ConsentGranted(ctx, preview.Verifier, cand)
			if !ok {
				return "", fmt.Errorf("%w: candidate %d for verifier %q", ErrConsentRequired, cand.Index, preview.Verifier)
			}
			s.logger.Debug("disclosure pre-approved by consent rule",
				"rule", rule, "verifier", preview.Verifier, "candidate", cand.Index)
		}
	}

	redirect, err = s.node.SubmitPresentation(ctx, node.SubmitRequest{
		Request:                 uri,
		Selections:              selections,
		SkipX509ChainValidation: skipX509,
	})
	if err != nil {
		if errors.Is(err, node.ErrUnauthorized) {
			s.sessions.MarkExpired(ctx)
		}
		return "", fmt.Errorf("submit presentation: %w", err)
	}
	s.logger.Info("presentation submitted", "verifier", preview.Verifier, "selections", selections)
	return redirect, nil
}

// CreateRequest mints a presentation-preview invocation URL from a DCQL
// query document.
func (s *WalletService) CreateRequest(ctx context.Context, dcql json.RawMessage) (string, error) {
	url, err := s.node.CreatePresentationRequest(ctx, dcql)
	if err != nil {
		if errors.Is(err, node.ErrUnauthorized) {
			s.sessions.MarkExpired(ctx)
		}
		return "", fmt.Errorf("create presentation request: %w", err)
	}
	return url, nil
}

// DeleteCredential removes a credential locally and, best-effort, on the
// node. Local removal is the operation; node failure only logs.
func (s *WalletService) DeleteCredential(ctx context.Context, id string) error {
	if err := s.creds.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete cached credential: %w", err)
	}
	if err := s.node.DeleteStoredCredential(ctx, id); err != nil {
		if errors.Is(err, node.ErrUnauthorized) {
			s.sessions.MarkExpired(ctx)
		}
		s.logger.Warn("node-side delete failed, credential removed locally", "id", id, "error", err)
	}
	return nil
}

// Keys lists the wallet's signing keys on the node.
func (s *WalletService) Keys(ctx context.Context) ([]node.Key, error) {
	keys, err := s.node.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, node.ErrUnauthorized) {
			s.sessions.MarkExpired(ctx)
		}
		return nil, err
	}
	return keys, nil
}

func isConnectionError(err error) bool {
	var connErr *node.ConnectionError
	return errors.As(err, &connErr)
}

// defaultSelections picks each query's first candidate.
func defaultSelections(p *node.PresentationPreview) []int {
	var sel []int
	for _, q := range p.Queries {
		if len(q.Candidates) > 0 {
			sel = append(sel, q.Candidates[0].Index)
		}
	}
	return sel
}

// selectedCandidates resolves selection indices back to candidates so the
// consent rules can see type and issuer. Unknown indices are skipped; the
// node validates them again on submit.
func selectedCandidates(p *node.PresentationPreview, selections []int) []node.Candidate {
	byIndex := map[int]node.Candidate{}
	for _, q := range p.Queries {
		for _, cand := range q.Candidates {
			byIndex[cand.Index] = cand
		}
	}
	var out []node.Candidate
	for _, idx := range selections {
		if cand, ok := byIndex[idx]; ok {
			out = append(out, cand)
		}
	}
	return out
}
