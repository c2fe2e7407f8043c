package ceremony

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	apperrors "github.com/starhaven/platform/internal/platform/errors"
	"github.com/starhaven/platform/internal/services/auth/challenge"
	"github.com/starhaven/platform/internal/services/auth/session"
	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/user"
)

// StartRegistration begins a registration ceremony for username. With an
// anonymous session it registers a new account: the username must pass the
// platform policy and be free, and a user id is pre-allocated without writing
// a user row. With a logged-in session it adds a passkey to the existing
// account, and the username must match the session user; existing credentials
// are excluded so the authenticator refuses to re-register a key it already
// holds. Starting again for the same username replaces any pending challenge.
func (e *Engine) StartRegistration(ctx context.Context, username string, current session.Session) (*protocol.CredentialCreation, error) {
	if current.LoggedIn() {
		return e.startAddPasskey(ctx, username, current)
	}
	return e.startNewAccount(ctx, username)
}

func (e *Engine) startNewAccount(ctx context.Context, username string) (*protocol.CredentialCreation, error) {
	if err := user.Validate(username); err != nil {
		return nil, err
	}
	_, err := e.users.GetUserByNormalizedUsername(ctx, user.Normalize(username))
	switch {
	case err == nil:
		return nil, storage.ErrUsernameTaken
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("look up username: %w", err)
	}

	userID, err := e.idGenerator()
	if err != nil {
		return nil, fmt.Errorf("generate user id: %w", err)
	}
	candidate := &ceremonyUser{id: userID, name: username}
	options, sessionData, err := e.webAuthn.BeginRegistration(candidate,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if _, replaced := e.challenges.InsertRegistration(username, challenge.Registration{UserID: userID, Session: *sessionData}); replaced {
		log.Printf("registration challenge for %q replaced by a new start", username)
	}
	return options, nil
}

func (e *Engine) startAddPasskey(ctx context.Context, username string, current session.Session) (*protocol.CredentialCreation, error) {
	account, ok, err := current.User(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session user: %w", err)
	}
	if !ok || user.Normalize(username) != account.UsernameNormalized {
		return nil, ErrUsernameMismatch
	}

	webUser, err := e.loadCeremonyUser(ctx, account)
	if err != nil {
		return nil, err
	}
	options, sessionData, err := e.webAuthn.BeginRegistration(webUser,
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithExclusions(webauthn.Credentials(webUser.credentials).CredentialDescriptors()),
	)
	if err != nil {
		return nil, fmt.Errorf("begin registration: %w", err)
	}
	if _, replaced := e.challenges.InsertRegistration(username, challenge.Registration{UserID: account.ID, Session: *sessionData}); replaced {
		log.Printf("registration challenge for %q replaced by a new start", username)
	}
	return options, nil
}

// FinishRegistration completes a registration ceremony. The start-time
// ownership rules are re-checked here: an existing account accepts a new
// passkey only from its own session, and a new-account ceremony only from an
// anonymous one. The session/username match runs before the challenge is
// consumed, so a finish from the wrong session leaves the owner's pending
// ceremony intact; once consumed, a failed finish requires a fresh start.
// On success the credential is stored, the user row is created when the
// ceremony registered a new account, and a session is minted for the owner.
func (e *Engine) FinishRegistration(ctx context.Context, username string, current session.Session, response []byte) (Result, error) {
	sessionUserID, loggedIn := current.UserID()
	if loggedIn {
		sessionUser, ok, err := current.User(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("load session user: %w", err)
		}
		if !ok || user.Normalize(username) != sessionUser.UsernameNormalized {
			return Result{}, ErrUsernameMismatch
		}
	}

	reg, ok := e.challenges.RemoveRegistration(username)
	if !ok {
		return Result{}, ErrInvalidChallenge
	}
	parsed, err := e.parser.ParseCredentialCreationResponseBytes(response)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeCredentialVerification, "bad credentials", err)
	}

	// The pre-allocated id resolves to a row only when the ceremony adds a
	// passkey to an existing account.
	var account user.User
	var newUser *user.User
	existing, err := e.users.GetUser(ctx, reg.UserID)
	switch {
	case err == nil:
		if !loggedIn || sessionUserID != existing.ID {
			return Result{}, ErrUsernameMismatch
		}
		account = existing
	case errors.Is(err, storage.ErrNotFound):
		if loggedIn {
			return Result{}, ErrUsernameMismatch
		}
		account = user.User{
			ID:                 reg.UserID,
			Username:           username,
			UsernameNormalized: user.Normalize(username),
			CreatedAt:          e.clock(),
		}
		newUser = &account
	default:
		return Result{}, fmt.Errorf("look up user: %w", err)
	}

	webUser := &ceremonyUser{id: account.ID, name: account.Username}
	if newUser == nil {
		webUser, err = e.loadCeremonyUser(ctx, account)
		if err != nil {
			return Result{}, err
		}
	}
	credential, err := e.webAuthn.CreateCredential(webUser, reg.Session, parsed)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeCredentialVerification, "bad credentials", err)
	}
	if err := e.storeCredential(ctx, newUser, account.ID, credential); err != nil {
		return Result{}, err
	}

	sessionToken, claims, err := e.sessions.Login(account.ID)
	if err != nil {
		return Result{}, fmt.Errorf("mint session: %w", err)
	}
	return Result{User: account, Token: sessionToken, Claims: claims}, nil
}

// storeCredential persists a freshly verified credential, together with the
// owning user row when newUser is non-nil. The uniqueness guards live in the
// store transaction, so a credential already registered elsewhere surfaces as
// storage.ErrCredentialExists even when two finishes race.
func (e *Engine) storeCredential(ctx context.Context, newUser *user.User, userID string, credential *webauthn.Credential) error {
	blob, err := encodeCredentialJSON(credential)
	if err != nil {
		return err
	}
	record := storage.Credential{
		CredentialID:   encodeCredentialID(credential.ID),
		UserID:         userID,
		CredentialJSON: blob,
		CreatedAt:      e.clock(),
	}
	if err := e.credentials.CreateCredential(ctx, newUser, record); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}
