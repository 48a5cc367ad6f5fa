package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/neoke/pocket/internal/domain/credential"
	"github.com/neoke/pocket/internal/domain/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *FileSessionStore {
	t.Helper()
	s, err := NewFileSessionStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewFileSessionStore() error = %v", err)
	}
	return s
}

func TestTokenTierRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Absent before any write.
	rec, err := s.Token(ctx)
	if err != nil || rec != nil {
		t.Fatalf("Token() = %+v, %v; want nil, nil", rec, err)
	}

	want := &session.TokenRecord{Token: "tok", ExpiresAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	if err := s.PutToken(ctx, want); err != nil {
		t.Fatalf("PutToken() error = %v", err)
	}

	rec, err = s.Token(ctx)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if rec.Token != want.Token || !rec.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("Token() = %+v, want %+v", rec, want)
	}

	if err := s.DeleteToken(ctx); err != nil {
		t.Fatalf("DeleteToken() error = %v", err)
	}
	if rec, _ := s.Token(ctx); rec != nil {
		t.Errorf("Token() = %+v after delete, want nil", rec)
	}
	// Deleting again is not an error.
	if err := s.DeleteToken(ctx); err != nil {
		t.Errorf("second DeleteToken() error = %v", err)
	}
}

func TestNodeTierRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := &session.NodeRecord{
		Identifier:   "acme",
		BaseURL:      "https://acme.id-node.neoke.com",
		LastActivity: time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
	}
	if err := s.PutNode(ctx, want); err != nil {
		t.Fatalf("PutNode() error = %v", err)
	}

	rec, err := s.Node(ctx)
	if err != nil {
		t.Fatalf("Node() error = %v", err)
	}
	if rec.Identifier != want.Identifier || rec.BaseURL != want.BaseURL || !rec.LastActivity.Equal(want.LastActivity) {
		t.Errorf("Node() = %+v, want %+v", rec, want)
	}

	if err := s.DeleteNode(ctx); err != nil {
		t.Fatalf("DeleteNode() error = %v", err)
	}
	if rec, _ := s.Node(ctx); rec != nil {
		t.Errorf("Node() = %+v after delete, want nil", rec)
	}
}

func TestNodeTierSurvivesTokenDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutNode(ctx, &session.NodeRecord{Identifier: "acme", BaseURL: "https://acme.id-node.neoke.com"}); err != nil {
		t.Fatalf("PutNode() error = %v", err)
	}
	if err := s.PutToken(ctx, &session.TokenRecord{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("PutToken() error = %v", err)
	}
	if err := s.DeleteToken(ctx); err != nil {
		t.Fatalf("DeleteToken() error = %v", err)
	}

	rec, err := s.Node(ctx)
	if err != nil || rec == nil {
		t.Fatalf("Node() = %+v, %v; want surviving record", rec, err)
	}
}

func TestStateFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not supported on windows")
	}
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.PutToken(ctx, &session.TokenRecord{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("PutToken() error = %v", err)
	}

	info, err := os.Stat(filepath.Join(s.Dir(), sessionFileName))
	if err != nil {
		t.Fatalf("stat session file: %v", err)
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		t.Errorf("session file mode = %04o, want 0600", mode)
	}
}

func TestCorruptDurableFileIsAnError(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(filepath.Join(s.Dir(), walletFileName), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Node(context.Background()); err == nil {
		t.Error("Node() = nil error for corrupt file, want error")
	}
}

func TestPassphrase(t *testing.T) {
	s := newTestStore(t)

	// No passphrase set: anything verifies.
	if err := s.VerifyPassphrase("whatever"); err != nil {
		t.Fatalf("VerifyPassphrase() with none set error = %v", err)
	}

	if err := s.SetPassphrase("correct horse"); err != nil {
		t.Fatalf("SetPassphrase() error = %v", err)
	}
	if has, _ := s.HasPassphrase(); !has {
		t.Error("HasPassphrase() = false after set")
	}
	if err := s.VerifyPassphrase("correct horse"); err != nil {
		t.Errorf("VerifyPassphrase(correct) error = %v", err)
	}
	if err := s.VerifyPassphrase("battery staple"); !errors.Is(err, ErrPassphraseMismatch) {
		t.Errorf("VerifyPassphrase(wrong) error = %v, want ErrPassphraseMismatch", err)
	}

	// Clearing the passphrase keeps the rest of the durable tier.
	if err := s.PutNode(context.Background(), &session.NodeRecord{Identifier: "acme", BaseURL: "https://acme.id-node.neoke.com"}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPassphrase(""); err != nil {
		t.Fatalf("SetPassphrase(clear) error = %v", err)
	}
	if has, _ := s.HasPassphrase(); has {
		t.Error("HasPassphrase() = true after clear")
	}
	if rec, _ := s.Node(context.Background()); rec == nil {
		t.Error("node record lost when clearing passphrase")
	}
}

func TestFirstRunNoticeFlag(t *testing.T) {
	s := newTestStore(t)

	if shown, _ := s.FirstRunNoticeShown(); shown {
		t.Error("flag set before first run")
	}
	if err := s.MarkFirstRunNoticeShown(); err != nil {
		t.Fatalf("MarkFirstRunNoticeShown() error = %v", err)
	}
	if shown, _ := s.FirstRunNoticeShown(); !shown {
		t.Error("flag not set after marking")
	}
}

func TestCredentialCacheRoundTrip(t *testing.T) {
	cache, err := OpenCredentialCache(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("OpenCredentialCache() error = %v", err)
	}
	defer cache.Close()
	ctx := context.Background()

	// Empty on first open.
	creds, err := cache.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(creds) != 0 {
		t.Fatalf("Load() = %d credentials on fresh cache", len(creds))
	}

	want := []credential.Credential{
		{
			ID:         "cred-2",
			DocType:    "org.iso.18013.5.1.mDL",
			Issuer:     "I",
			Status:     credential.StatusActive,
			Namespaces: map[string]map[string]any{"org.iso.18013.5.1": {"family_name": "Doe"}},
			Display:    &credential.DisplayMetadata{Label: "mDL"},
		},
		{ID: "cred-1", Type: []string{"VerifiableCredential", "EmployeeCredential"}},
	}
	if err := cache.Replace(ctx, want); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err := cache.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load() = %+v, want %+v (order preserved)", got, want)
	}

	// Replace is wholesale, not additive.
	if err := cache.Replace(ctx, want[:1]); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	got, _ = cache.Load(ctx)
	if len(got) != 1 || got[0].ID != "cred-2" {
		t.Errorf("Load() after shrink = %+v", got)
	}

	if err := cache.Delete(ctx, "cred-2"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = cache.Load(ctx)
	if len(got) != 0 {
		t.Errorf("Load() after delete = %+v, want empty", got)
	}
	// Deleting a missing credential is not an error.
	if err := cache.Delete(ctx, "cred-2"); err != nil {
		t.Errorf("Delete(absent) error = %v", err)
	}
}
