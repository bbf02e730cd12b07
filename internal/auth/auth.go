// Package auth is the credential capability spec.md lists as an external
// collaborator: a single process-wide bearer token, persisted to SQLite and
// invalidated on a 401/403 from upstream. Generalized from the teacher's
// SessionStore, which keeps one row per character; this domain has exactly
// one always-active credential, so the multi-row/is_active bookkeeping
// collapses to a single-row table.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"boxscan/internal/logger"
)

const tag = "AUTH"

// ErrAuthInvalid is returned by Token when the stored credential has been
// invalidated and no replacement has been saved yet.
var ErrAuthInvalid = errors.New("auth: credential invalid")

// Credential is a bearer token with an expiry instant.
type Credential struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Store persists the single process-wide credential in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by db, which must already have the
// `credential` table migrated (see internal/cache.Open).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save stores cred as the active credential, overwriting any prior one.
func (s *Store) Save(cred Credential) error {
	_, err := s.db.Exec(
		`INSERT INTO credential (id, access_token, expires_at, valid) VALUES (1, ?, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET access_token = excluded.access_token, expires_at = excluded.expires_at, valid = 1`,
		cred.AccessToken, cred.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	logger.Success(tag, "credential saved")
	return nil
}

// Token returns the current access token. Returns ErrAuthInvalid if none has
// been saved, or if the stored credential was invalidated.
func (s *Store) Token() (string, error) {
	var token string
	var expiresAt int64
	var valid int
	err := s.db.QueryRow(`SELECT access_token, expires_at, valid FROM credential WHERE id = 1`).Scan(&token, &expiresAt, &valid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrAuthInvalid
		}
		return "", fmt.Errorf("query credential: %w", err)
	}
	if valid == 0 {
		return "", ErrAuthInvalid
	}
	return token, nil
}

// Invalidate marks the stored credential invalid, per spec.md §7: a
// 401/403 from upstream invalidates the credential and aborts the current
// scan cycle.
func (s *Store) Invalidate() error {
	_, err := s.db.Exec(`UPDATE credential SET valid = 0 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("invalidate credential: %w", err)
	}
	logger.Warn(tag, "credential invalidated")
	return nil
}
