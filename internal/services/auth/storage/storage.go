package storage

import (
	"context"
	"time"

	apperrors "github.com/starhaven/platform/internal/platform/errors"
	"github.com/starhaven/platform/internal/services/auth/user"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrCredentialExists indicates a credential id is already registered.
var ErrCredentialExists = apperrors.New(apperrors.CodeCredentialTaken, "this passkey is already registered")

// ErrUsernameTaken indicates another user already holds the normalized username.
var ErrUsernameTaken = apperrors.New(apperrors.CodeUsernameTaken, "username already in use, please log in instead")

// Credential stores a passkey credential for a user. CredentialID is the
// base64url-encoded raw credential id; CredentialJSON is the verifier-specific
// state blob including the public key and signature counter.
type Credential struct {
	CredentialID   string
	UserID         string
	CredentialJSON string
	CreatedAt      time.Time
	LastUsedAt     *time.Time
}

// UserStore persists user identity records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (user.User, error)
	GetUserByUsername(ctx context.Context, username string) (user.User, error)
	// GetUserByNormalizedUsername looks up the case- and format-insensitive
	// collision guard used by registration.
	GetUserByNormalizedUsername(ctx context.Context, normalized string) (user.User, error)
}

// CredentialStore persists passkey credentials.
type CredentialStore interface {
	GetCredential(ctx context.Context, credentialID string) (Credential, error)
	ListCredentialsByUser(ctx context.Context, userID string) ([]Credential, error)
	UpdateCredential(ctx context.Context, credential Credential) error

	// CreateCredential inserts a credential, and the owning user row when
	// newUser is non-nil, inside one transaction. It fails with
	// ErrCredentialExists when the credential id is already registered and
	// ErrUsernameTaken when the user insert hits the normalized-username
	// uniqueness guard; the uniqueness checks and the inserts are atomic so
	// concurrent finishes presenting the same physical key cannot both pass.
	CreateCredential(ctx context.Context, newUser *user.User, credential Credential) error
}
