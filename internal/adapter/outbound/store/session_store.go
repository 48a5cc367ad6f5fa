// Package store provides file-based persistence for the wallet's client-side
// state: the short-lived token tier, the durable node tier, and the sqlite
// credential cache. Writes are atomic (write-tmp-then-rename) with a .bak
// backup, cross-process flock, and 0600 permissions.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

const (
	sessionFileName = "session.json"
	walletFileName  = "wallet.json"
)

// sessionFile is the short-lived tier on disk: the bearer token and its
// absolute expiry. Removed on logout and on expiry.
type sessionFile struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SavedAt   time.Time `json:"saved_at"`
}

// walletFile is the durable tier on disk. It survives restarts and, under
// the default retention policy, logout.
type walletFile struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// NodeIdentifier and NodeBaseURL identify the remembered node.
	NodeIdentifier string `json:"node_identifier,omitempty"`
	NodeBaseURL    string `json:"node_base_url,omitempty"`

	// LastActivity gates silent session restore. Zero means no recent
	// activity is recorded.
	LastActivity time.Time `json:"last_activity,omitempty"`

	// PassphraseHash is the Argon2id hash of the optional unlock
	// passphrase. Empty means no passphrase is set.
	PassphraseHash string `json:"passphrase_hash,omitempty"`

	// FirstRunNoticeShown records that the one-time onboarding notice has
	// been displayed.
	FirstRunNoticeShown bool `json:"first_run_notice_shown,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// FileSessionStore persists the two session tiers under a state directory.
// It implements session.Store. All operations report failures explicitly;
// callers decide how to degrade.
type FileSessionStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileSessionStore creates a store rooted at dir, creating it (0700) if
// needed.
func NewFileSessionStore(dir string, logger *slog.Logger) (*FileSessionStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileSessionStore{dir: dir, logger: logger}, nil
}

// Dir returns the state directory.
func (s *FileSessionStore) Dir() string {
	return s.dir
}

func (s *FileSessionStore) sessionPath() string { return filepath.Join(s.dir, sessionFileName) }
func (s *FileSessionStore) walletPath() string  { return filepath.Join(s.dir, walletFileName) }

// readJSON loads and decodes path into v. Returns (false, nil) when the
// file does not exist.
func (s *FileSessionStore) readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	// Warn when an existing file is readable by group or other.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(path); statErr == nil {
			if mode := info.Mode().Perm(); mode&0077 != 0 {
				s.logger.Warn("state file has too-open permissions, should be 0600",
					"path", path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON atomically persists v to path.
//
// The write sequence is: acquire in-process mutex, acquire flock on
// path+".lock", back up the current file to path+".bak", write path+".tmp"
// with 0600 permissions, fsync, rename over path.
func (s *FileSessionStore) writeJSON(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockPath := path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	if currentData, readErr := os.ReadFile(path); readErr == nil {
		if writeErr := os.WriteFile(path+".bak", currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	data = append(data, '\n')

	if err := writeAtomic(path, data); err != nil {
		return err
	}

	if err := os.Chmod(path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on state file", "error", err)
	}
	return nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it over
// the target path. On any error the temp file is cleaned up.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// loadWallet reads the durable tier, returning defaults when absent.
func (s *FileSessionStore) loadWallet() (*walletFile, error) {
	var w walletFile
	found, err := s.readJSON(s.walletPath(), &w)
	if err != nil {
		return nil, err
	}
	if !found {
		return &walletFile{Version: "1"}, nil
	}
	if w.Version == "" {
		w.Version = "1"
	}
	return &w, nil
}

func (s *FileSessionStore) saveWallet(w *walletFile) error {
	w.UpdatedAt = time.Now().UTC()
	return s.writeJSON(s.walletPath(), w)
}
