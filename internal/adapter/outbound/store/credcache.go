package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/neoke/pocket/internal/domain/credential"
)

// CredentialCache is the sqlite-backed local credential cache. It is the
// reconciler's materialized view: Replace rewrites it wholesale, Load reads
// it back in insertion order.
type CredentialCache struct {
	db *sql.DB
}

const credentialSchema = `
CREATE TABLE IF NOT EXISTS credentials (
	pos  INTEGER NOT NULL,
	id   TEXT    NOT NULL PRIMARY KEY,
	data BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS credentials_pos ON credentials (pos);
`

// OpenCredentialCache opens (creating if needed) the cache database at path.
func OpenCredentialCache(path string) (*CredentialCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open credential cache: %w", err)
	}
	// The cache is only ever touched by one synchronous caller; a single
	// connection sidesteps sqlite write contention entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(credentialSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize credential cache schema: %w", err)
	}
	return &CredentialCache{db: db}, nil
}

// Load returns the cached credential list in stored order.
func (c *CredentialCache) Load(ctx context.Context) ([]credential.Credential, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT data FROM credentials ORDER BY pos`)
	if err != nil {
		return nil, fmt.Errorf("query credential cache: %w", err)
	}
	defer rows.Close()

	var creds []credential.Credential
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		var cred credential.Credential
		if err := json.Unmarshal(data, &cred); err != nil {
			return nil, fmt.Errorf("decode cached credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential cache: %w", err)
	}
	return creds, nil
}

// Replace overwrites the cache with the given list, atomically.
func (c *CredentialCache) Replace(ctx context.Context, creds []credential.Credential) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache rewrite: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("clear credential cache: %w", err)
	}
	for i, cred := range creds {
		data, err := json.Marshal(&cred)
		if err != nil {
			return fmt.Errorf("encode credential %q: %w", cred.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (pos, id, data) VALUES (?, ?, ?)`,
			i, cred.ID, data); err != nil {
			return fmt.Errorf("store credential %q: %w", cred.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache rewrite: %w", err)
	}
	return nil
}

// Delete removes one credential from the cache. Absence is not an error.
func (c *CredentialCache) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete cached credential %q: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *CredentialCache) Close() error {
	return c.db.Close()
}

// Compile-time check that CredentialCache implements credential.Cache.
var _ credential.Cache = (*CredentialCache)(nil)
