package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/neoke/pocket/internal/domain/session"
)

// ErrPassphraseMismatch is returned when an unlock passphrase does not
// verify against the stored hash.
var ErrPassphraseMismatch = errors.New("passphrase does not match")

// argon2idParams follow the OWASP minimum for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Token returns the short-lived record, or nil when absent.
func (s *FileSessionStore) Token(ctx context.Context) (*session.TokenRecord, error) {
	var f sessionFile
	found, err := s.readJSON(s.sessionPath(), &f)
	if err != nil || !found {
		return nil, err
	}
	return &session.TokenRecord{Token: f.Token, ExpiresAt: f.ExpiresAt}, nil
}

// PutToken persists the short-lived record.
func (s *FileSessionStore) PutToken(ctx context.Context, rec *session.TokenRecord) error {
	return s.writeJSON(s.sessionPath(), &sessionFile{
		Token:     rec.Token,
		ExpiresAt: rec.ExpiresAt,
		SavedAt:   time.Now().UTC(),
	})
}

// DeleteToken removes the short-lived record. Absence is not an error.
func (s *FileSessionStore) DeleteToken(ctx context.Context) error {
	if err := os.Remove(s.sessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// Node returns the durable record, or nil when no node is remembered.
func (s *FileSessionStore) Node(ctx context.Context) (*session.NodeRecord, error) {
	w, err := s.loadWallet()
	if err != nil {
		return nil, err
	}
	if w.NodeIdentifier == "" {
		return nil, nil
	}
	return &session.NodeRecord{
		Identifier:   w.NodeIdentifier,
		BaseURL:      w.NodeBaseURL,
		LastActivity: w.LastActivity,
	}, nil
}

// PutNode persists the durable record, preserving unrelated durable fields
// (passphrase hash, one-shot flags).
func (s *FileSessionStore) PutNode(ctx context.Context, rec *session.NodeRecord) error {
	w, err := s.loadWallet()
	if err != nil {
		return err
	}
	w.NodeIdentifier = rec.Identifier
	w.NodeBaseURL = rec.BaseURL
	w.LastActivity = rec.LastActivity
	return s.saveWallet(w)
}

// DeleteNode forgets the remembered node but keeps the rest of the durable
// tier.
func (s *FileSessionStore) DeleteNode(ctx context.Context) error {
	w, err := s.loadWallet()
	if err != nil {
		return err
	}
	w.NodeIdentifier = ""
	w.NodeBaseURL = ""
	w.LastActivity = time.Time{}
	return s.saveWallet(w)
}

// SetPassphrase stores the Argon2id hash of the unlock passphrase. An empty
// passphrase clears it.
func (s *FileSessionStore) SetPassphrase(passphrase string) error {
	w, err := s.loadWallet()
	if err != nil {
		return err
	}
	if passphrase == "" {
		w.PassphraseHash = ""
		return s.saveWallet(w)
	}
	hash, err := argon2id.CreateHash(passphrase, argon2idParams)
	if err != nil {
		return fmt.Errorf("hash passphrase: %w", err)
	}
	w.PassphraseHash = hash
	return s.saveWallet(w)
}

// HasPassphrase reports whether an unlock passphrase is set.
func (s *FileSessionStore) HasPassphrase() (bool, error) {
	w, err := s.loadWallet()
	if err != nil {
		return false, err
	}
	return w.PassphraseHash != "", nil
}

// VerifyPassphrase checks the passphrase against the stored hash. When no
// passphrase is set, any input verifies.
func (s *FileSessionStore) VerifyPassphrase(passphrase string) error {
	w, err := s.loadWallet()
	if err != nil {
		return err
	}
	if w.PassphraseHash == "" {
		return nil
	}
	match, err := argon2id.ComparePasswordAndHash(passphrase, w.PassphraseHash)
	if err != nil {
		return fmt.Errorf("verify passphrase: %w", err)
	}
	if !match {
		return ErrPassphraseMismatch
	}
	return nil
}

// MarkFirstRunNoticeShown records the one-shot onboarding flag.
func (s *FileSessionStore) MarkFirstRunNoticeShown() error {
	w, err := s.loadWallet()
	if err != nil {
		return err
	}
	if w.FirstRunNoticeShown {
		return nil
	}
	w.FirstRunNoticeShown = true
	return s.saveWallet(w)
}

// FirstRunNoticeShown reports the one-shot onboarding flag.
func (s *FileSessionStore) FirstRunNoticeShown() (bool, error) {
	w, err := s.loadWallet()
	if err != nil {
		return false, err
	}
	return w.FirstRunNoticeShown, nil
}

// Compile-time check that FileSessionStore implements session.Store.
var _ session.Store = (*FileSessionStore)(nil)
