package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/neoke/pocket/internal/adapter/outbound/node"
	"github.com/neoke/pocket/internal/domain/consent"
	"github.com/neoke/pocket/internal/domain/credential"
	"github.com/neoke/pocket/internal/domain/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memSessionStore is an in-memory session.Store.
type memSessionStore struct {
	token *session.TokenRecord
	node  *session.NodeRecord
}

func (m *memSessionStore) Token(context.Context) (*session.TokenRecord, error) { return m.token, nil }
func (m *memSessionStore) PutToken(_ context.Context, r *session.TokenRecord) error {
	m.token = r
	return nil
}
func (m *memSessionStore) DeleteToken(context.Context) error { m.token = nil; return nil }
func (m *memSessionStore) Node(context.Context) (*session.NodeRecord, error) { return m.node, nil }
func (m *memSessionStore) PutNode(_ context.Context, r *session.NodeRecord) error {
	m.node = r
	return nil
}
func (m *memSessionStore) DeleteNode(context.Context) error { m.node = nil; return nil }

// memCredStore is an in-memory CredentialStore.
type memCredStore struct {
	creds    []credential.Credential
	replaces int
}

func (m *memCredStore) Load(context.Context) ([]credential.Credential, error) {
	return append([]credential.Credential(nil), m.creds...), nil
}
func (m *memCredStore) Replace(_ context.Context, creds []credential.Credential) error {
	m.creds = append([]credential.Credential(nil), creds...)
	m.replaces++
	return nil
}
func (m *memCredStore) Delete(_ context.Context, id string) error {
	out := m.creds[:0]
	for _, c := range m.creds {
		if c.ID != id {
			out = append(out, c)
		}
	}
	m.creds = out
	return nil
}

// fakeNode is a scriptable NodeAPI.
type fakeNode struct {
	authenticateFn func(ctx context.Context, apiKey string) (string, time.Time, error)
	listStoredFn   func(ctx context.Context) ([]credential.Credential, error)
	listKeysFn     func(ctx context.Context) ([]node.Key, error)
	receiveFn      func(ctx context.Context, offerURI, keyID string) (*credential.Credential, error)
	previewFn      func(ctx context.Context, requestURI string) (*node.PresentationPreview, error)
	submitFn       func(ctx context.Context, req node.SubmitRequest) (string, error)
	deleteFn       func(ctx context.Context, id string) error
	createFn       func(ctx context.Context, dcql json.RawMessage) (string, error)
}

func (f *fakeNode) Authenticate(ctx context.Context, apiKey string) (string, time.Time, error) {
	return f.authenticateFn(ctx, apiKey)
}
func (f *fakeNode) ListStoredCredentials(ctx context.Context) ([]credential.Credential, error) {
	return f.listStoredFn(ctx)
}
func (f *fakeNode) ListKeys(ctx context.Context) ([]node.Key, error) { return f.listKeysFn(ctx) }
func (f *fakeNode) ReceiveCredential(ctx context.Context, offerURI, keyID string) (*credential.Credential, error) {
	return f.receiveFn(ctx, offerURI, keyID)
}
func (f *fakeNode) PreviewPresentation(ctx context.Context, requestURI string) (*node.PresentationPreview, error) {
	return f.previewFn(ctx, requestURI)
}
func (f *fakeNode) SubmitPresentation(ctx context.Context, req node.SubmitRequest) (string, error) {
	return f.submitFn(ctx, req)
}
func (f *fakeNode) DeleteStoredCredential(ctx context.Context, id string) error {
	return f.deleteFn(ctx, id)
}
func (f *fakeNode) CreatePresentationRequest(ctx context.Context, dcql json.RawMessage) (string, error) {
	return f.createFn(ctx, dcql)
}

func newTestService(t *testing.T, n *fakeNode, creds *memCredStore, eng *consent.Engine) (*WalletService, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(&memSessionStore{}, testLogger(), session.Config{}, nil)
	t.Cleanup(mgr.Close)
	rec := credential.NewReconciler(creds, credential.EmptyServerPreserve, testLogger())
	return NewWalletService(mgr, n, rec, creds, eng, testLogger()), mgr
}

func TestLoginInstallsToken(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	n := &fakeNode{
		authenticateFn: func(_ context.Context, apiKey string) (string, time.Time, error) {
			if apiKey != "key-1" {
				t.Errorf("apiKey = %q", apiKey)
			}
			return "tok", exp, nil
		},
	}
	svc, mgr := newTestService(t, n, &memCredStore{}, nil)

	got, err := svc.Login(context.Background(), "key-1")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if !got.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got, exp)
	}
	if mgr.State() != session.Authenticated {
		t.Errorf("state = %v, want Authenticated", mgr.State())
	}
	if _, ok := mgr.BearerToken(); !ok {
		t.Error("BearerToken() not usable after login")
	}
}

func TestRefreshReconcilesServerList(t *testing.T) {
	creds := &memCredStore{creds: []credential.Credential{
		{ID: "cred-1", Issuer: "old", Display: &credential.DisplayMetadata{Label: "Mine"}},
	}}
	n := &fakeNode{
		listStoredFn: func(context.Context) ([]credential.Credential, error) {
			return []credential.Credential{{ID: "cred-1", Issuer: "new"}}, nil
		},
	}
	svc, _ := newTestService(t, n, creds, nil)

	merged, degraded, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if degraded {
		t.Error("degraded = true for a successful refresh")
	}
	if len(merged) != 1 || merged[0].Issuer != "new" {
		t.Errorf("merged = %+v, want server-authoritative issuer", merged)
	}
	if merged[0].Display == nil || merged[0].Display.Label != "Mine" {
		t.Error("local display metadata lost in refresh")
	}
}

func TestRefreshUnauthorizedMarksExpired(t *testing.T) {
	creds := &memCredStore{creds: []credential.Credential{{ID: "cred-1"}}}
	n := &fakeNode{
		listStoredFn: func(context.Context) ([]credential.Credential, error) {
			return nil, node.ErrUnauthorized
		},
	}
	svc, mgr := newTestService(t, n, creds, nil)
	mgr.SetToken(context.Background(), "tok", time.Now().Add(time.Hour))

	_, _, err := svc.Refresh(context.Background())
	if !errors.Is(err, node.ErrUnauthorized) {
		t.Fatalf("Refresh() error = %v, want ErrUnauthorized", err)
	}
	if !mgr.SessionExpired() {
		t.Error("session not marked expired after 401")
	}
	if creds.replaces != 0 {
		t.Error("cache rewritten on auth failure")
	}
}

func TestRefreshConnectionFailureFallsBack(t *testing.T) {
	n := &fakeNode{
		listStoredFn: func(context.Context) ([]credential.Credential, error) {
			return nil, &node.ConnectionError{Cause: errors.New("dial tcp: refused")}
		},
	}

	t.Run("cache present", func(t *testing.T) {
		creds := &memCredStore{creds: []credential.Credential{{ID: "cred-1"}}}
		svc, _ := newTestService(t, n, creds, nil)
		got, degraded, err := svc.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if !degraded || len(got) != 1 {
			t.Errorf("got %d credentials, degraded=%v; want 1, true", len(got), degraded)
		}
	})

	t.Run("cache empty", func(t *testing.T) {
		svc, _ := newTestService(t, n, &memCredStore{}, nil)
		if _, _, err := svc.Refresh(context.Background()); err == nil {
			t.Error("Refresh() = nil error with no cache and no connectivity")
		}
	})
}

func TestRefreshNotFoundUsesKeyDiscovery(t *testing.T) {
	n := &fakeNode{
		listStoredFn: func(context.Context) ([]credential.Credential, error) {
			return nil, node.ErrNotFound
		},
		listKeysFn: func(context.Context) ([]node.Key, error) {
			return []node.Key{{ID: "k1"}, {ID: "k2"}}, nil
		},
	}

	t.Run("empty cache seeds stubs", func(t *testing.T) {
		creds := &memCredStore{}
		svc, _ := newTestService(t, n, creds, nil)
		got, degraded, err := svc.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if !degraded || len(got) != 2 {
			t.Fatalf("got %d credentials, degraded=%v; want 2, true", len(got), degraded)
		}
		if got[0].ID != "credential-0" || got[1].ID != "credential-1" {
			t.Errorf("stub IDs = %q, %q", got[0].ID, got[1].ID)
		}
	})

	t.Run("populated cache wins", func(t *testing.T) {
		creds := &memCredStore{creds: []credential.Credential{{ID: "cred-1", Issuer: "I"}}}
		svc, _ := newTestService(t, n, creds, nil)
		got, degraded, err := svc.Refresh(context.Background())
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if !degraded || len(got) != 1 || got[0].ID != "cred-1" {
			t.Errorf("got %+v, degraded=%v", got, degraded)
		}
		if creds.replaces != 0 {
			t.Error("cache rewritten from key stubs despite having data")
		}
	})
}

func TestReceiveOffer(t *testing.T) {
	n := &fakeNode{
		receiveFn: func(_ context.Context, offerURI, keyID string) (*credential.Credential, error) {
			return &credential.Credential{ID: "cred-9", Issuer: "I"}, nil
		},
	}
	creds := &memCredStore{creds: []credential.Credential{{ID: "cred-1"}}}
	svc, _ := newTestService(t, n, creds, nil)

	cred, err := svc.ReceiveOffer(context.Background(), "openid-credential-offer://offer?x=1", "")
	if err != nil {
		t.Fatalf("ReceiveOffer() error = %v", err)
	}
	if cred.Display == nil {
		t.Error("received credential has no display metadata synthesized")
	}
	if len(creds.creds) != 2 || creds.creds[1].ID != "cred-9" {
		t.Errorf("cache = %+v, want appended cred-9", creds.creds)
	}
}

func TestReceiveOfferRejectsWrongScheme(t *testing.T) {
	svc, _ := newTestService(t, &fakeNode{}, &memCredStore{}, nil)

	if _, err := svc.ReceiveOffer(context.Background(), "openid4vp://request", ""); err == nil {
		t.Error("presentation request accepted as an offer")
	}
	if _, err := svc.ReceiveOffer(context.Background(), "https://example.com", ""); err == nil {
		t.Error("arbitrary URL accepted as an offer")
	}
}

func TestPresentConsent(t *testing.T) {
	preview := &node.PresentationPreview{
		Verifier: "verifier.example",
		Queries: []node.PresentationQuery{
			{Candidates: []node.Candidate{{Index: 0, Type: []string{"EmployeeCredential"}, Issuer: "I"}}},
		},
	}
	submitted := 0
	n := &fakeNode{
		previewFn: func(context.Context, string) (*node.PresentationPreview, error) { return preview, nil },
		submitFn: func(_ context.Context, req node.SubmitRequest) (string, error) {
			submitted++
			return "https://verifier.example/done", nil
		},
	}

	eng, err := consent.NewEngine([]consent.Rule{
		{Name: "trusted-verifier", Expression: `verifier == "verifier.example"`},
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	t.Run("rule grants consent", func(t *testing.T) {
		svc, _ := newTestService(t, n, &memCredStore{}, eng)
		redirect, err := svc.Present(context.Background(), "openid4vp://request", nil, false, false)
		if err != nil {
			t.Fatalf("Present() error = %v", err)
		}
		if redirect != "https://verifier.example/done" {
			t.Errorf("redirect = %q", redirect)
		}
	})

	t.Run("no rules means consent required", func(t *testing.T) {
		svc, _ := newTestService(t, n, &memCredStore{}, nil)
		_, err := svc.Present(context.Background(), "openid4vp://request", nil, false, false)
		if !errors.Is(err, ErrConsentRequired) {
			t.Errorf("error = %v, want ErrConsentRequired", err)
		}
	})

	t.Run("explicit approval bypasses rules", func(t *testing.T) {
		svc, _ := newTestService(t, n, &memCredStore{}, nil)
		if _, err := svc.Present(context.Background(), "openid4vp://request", []int{0}, true, true); err != nil {
			t.Errorf("Present(approved) error = %v", err)
		}
	})

	if submitted != 2 {
		t.Errorf("submissions = %d, want 2", submitted)
	}
}

func TestDeleteCredentialIsLocalFirst(t *testing.T) {
	creds := &memCredStore{creds: []credential.Credential{{ID: "cred-1"}, {ID: "cred-2"}}}
	n := &fakeNode{
		deleteFn: func(context.Context, string) error {
			return &node.APIError{StatusCode: 500, Body: "boom"}
		},
	}
	svc, _ := newTestService(t, n, creds, nil)

	if err := svc.DeleteCredential(context.Background(), "cred-1"); err != nil {
		t.Fatalf("DeleteCredential() error = %v", err)
	}
	if len(creds.creds) != 1 || creds.creds[0].ID != "cred-2" {
		t.Errorf("cache = %+v, want cred-1 removed", creds.creds)
	}
}
