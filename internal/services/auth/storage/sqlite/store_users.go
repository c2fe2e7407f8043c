package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/user"
)

const getUserQuery = `
SELECT id, username, username_normalized, created_at
FROM users
WHERE id = ?1;
`

const getUserByUsernameQuery = `
SELECT id, username, username_normalized, created_at
FROM users
WHERE username = ?1;
`

const getUserByNormalizedUsernameQuery = `
SELECT id, username, username_normalized, created_at
FROM users
WHERE username_normalized = ?1;
`

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return user.User{}, fmt.Errorf("user id is required")
	}
	return scanUser(s.sqlDB.QueryRowContext(ctx, getUserQuery, userID))
}

// GetUserByUsername fetches a user by the exact username as registered.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(username) == "" {
		return user.User{}, fmt.Errorf("username is required")
	}
	return scanUser(s.sqlDB.QueryRowContext(ctx, getUserByUsernameQuery, username))
}

// GetUserByNormalizedUsername fetches a user by the normalized form of its
// username, the collision guard used by registration and login.
func (s *Store) GetUserByNormalizedUsername(ctx context.Context, normalized string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return user.User{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(normalized) == "" {
		return user.User{}, fmt.Errorf("normalized username is required")
	}
	return scanUser(s.sqlDB.QueryRowContext(ctx, getUserByNormalizedUsernameQuery, normalized))
}

func scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.UsernameNormalized, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, storage.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}
