package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/user"
)

const getCredentialQuery = `
SELECT credential_id, user_id, credential_json, created_at, last_used_at
FROM passkey_credentials
WHERE credential_id = ?1;
`

const listCredentialsByUserQuery = `
SELECT credential_id, user_id, credential_json, created_at, last_used_at
FROM passkey_credentials
WHERE user_id = ?1
ORDER BY created_at;
`

const updateCredentialQuery = `
UPDATE passkey_credentials
SET credential_json = ?2, last_used_at = ?3
WHERE credential_id = ?1;
`

const insertUserQuery = `
INSERT INTO users (id, username, username_normalized, created_at)
VALUES (?1, ?2, ?3, ?4);
`

const insertCredentialQuery = `
INSERT INTO passkey_credentials (credential_id, user_id, credential_json, created_at, last_used_at)
VALUES (?1, ?2, ?3, ?4, ?5);
`

// GetCredential fetches a stored passkey credential.
func (s *Store) GetCredential(ctx context.Context, credentialID string) (storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return storage.Credential{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Credential{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credentialID) == "" {
		return storage.Credential{}, fmt.Errorf("credential id is required")
	}

	credential, err := scanCredential(s.sqlDB.QueryRowContext(ctx, getCredentialQuery, credentialID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Credential{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Credential{}, fmt.Errorf("scan credential: %w", err)
	}
	return credential, nil
}

// ListCredentialsByUser fetches all credentials registered to a user, oldest
// first.
func (s *Store) ListCredentialsByUser(ctx context.Context, userID string) ([]storage.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, listCredentialsByUserQuery, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	credentials := make([]storage.Credential, 0)
	for rows.Next() {
		credential, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return credentials, nil
}

// UpdateCredential replaces the stored verifier state and last-used timestamp
// of an existing credential.
func (s *Store) UpdateCredential(ctx context.Context, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, updateCredentialQuery,
		credential.CredentialID,
		credential.CredentialJSON,
		nullableMillis(credential.LastUsedAt),
	)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateCredential inserts a credential and, when newUser is non-nil, the
// owning user row inside one transaction. The UNIQUE constraints on
// credential_id and username_normalized are the source of truth for the
// uniqueness guarantees: concurrent registrations race on the insert, not on
// a prior read.
func (s *Store) CreateCredential(ctx context.Context, newUser *user.User, credential storage.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(credential.CredentialID) == "" {
		return fmt.Errorf("credential id is required")
	}
	if strings.TrimSpace(credential.UserID) == "" {
		return fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(credential.CredentialJSON) == "" {
		return fmt.Errorf("credential json is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if newUser != nil {
		_, err := tx.ExecContext(ctx, insertUserQuery,
			newUser.ID,
			newUser.Username,
			newUser.UsernameNormalized,
			toMillis(newUser.CreatedAt),
		)
		if isUniqueViolation(err, "users.username_normalized") {
			return storage.ErrUsernameTaken
		}
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, insertCredentialQuery,
		credential.CredentialID,
		credential.UserID,
		credential.CredentialJSON,
		toMillis(credential.CreatedAt),
		nullableMillis(credential.LastUsedAt),
	)
	if isUniqueViolation(err, "passkey_credentials.credential_id") {
		return storage.ErrCredentialExists
	}
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanCredential(scan func(dest ...any) error) (storage.Credential, error) {
	var credential storage.Credential
	var createdAt int64
	var lastUsedAt sql.NullInt64
	if err := scan(
		&credential.CredentialID,
		&credential.UserID,
		&credential.CredentialJSON,
		&createdAt,
		&lastUsedAt,
	); err != nil {
		return storage.Credential{}, err
	}
	credential.CreatedAt = fromMillis(createdAt)
	if lastUsedAt.Valid {
		value := fromMillis(lastUsedAt.Int64)
		credential.LastUsedAt = &value
	}
	return credential, nil
}

func nullableMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}
