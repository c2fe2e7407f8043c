package ceremony

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	apperrors "github.com/starhaven/platform/internal/platform/errors"
	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/user"
)

// StartLogin begins a targeted login ceremony for username. The assertion
// options carry the user's registered credential ids, so the authenticator
// can pick a matching key without discoverable credential support. It fails
// with ErrNoPasskeys when the username is unknown or has no credentials; the
// returned ceremony id keys the finish call.
func (e *Engine) StartLogin(ctx context.Context, username string) (string, *protocol.CredentialAssertion, error) {
	account, err := e.users.GetUserByNormalizedUsername(ctx, user.Normalize(username))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "", nil, ErrNoPasskeys
	case err != nil:
		return "", nil, fmt.Errorf("look up username: %w", err)
	}

	webUser, err := e.loadCeremonyUser(ctx, account)
	if err != nil {
		return "", nil, err
	}
	if len(webUser.credentials) == 0 {
		return "", nil, ErrNoPasskeys
	}

	options, sessionData, err := e.webAuthn.BeginLogin(webUser)
	if err != nil {
		return "", nil, fmt.Errorf("begin login: %w", err)
	}
	ceremonyID, err := e.idGenerator()
	if err != nil {
		return "", nil, fmt.Errorf("generate ceremony id: %w", err)
	}
	e.challenges.InsertLogin(ceremonyID, *sessionData)
	return ceremonyID, options, nil
}

// FinishLogin completes a targeted login ceremony. The challenge is consumed
// on every outcome, so replaying a ceremony id fails with
// ErrInvalidChallenge.
func (e *Engine) FinishLogin(ctx context.Context, ceremonyID string, response []byte) (Result, error) {
	sessionData, ok := e.challenges.RemoveLogin(ceremonyID)
	if !ok {
		return Result{}, ErrInvalidChallenge
	}
	parsed, err := e.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeCredentialVerification, "bad credentials", err)
	}

	// The challenge state pins the account the assertion must prove.
	account, err := e.users.GetUser(ctx, string(sessionData.UserID))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return Result{}, apperrors.Wrap(apperrors.CodeCredentialVerification, "bad credentials", err)
	case err != nil:
		return Result{}, fmt.Errorf("look up user: %w", err)
	}
	webUser, err := e.loadCeremonyUser(ctx, account)
	if err != nil {
		return Result{}, err
	}
	credential, err := e.webAuthn.ValidateLogin(webUser, sessionData, parsed)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeCredentialVerification, "bad credentials", err)
	}
	return e.authenticate(ctx, account, credential)
}

// StartDiscoverableLogin begins a username-less login ceremony. The
// authenticator picks a resident credential and reports the user handle in
// the assertion, so the account is only known at finish time.
func (e *Engine) StartDiscoverableLogin(ctx context.Context) (string, *protocol.CredentialAssertion, error) {
	options, sessionData, err := e.webAuthn.BeginDiscoverableLogin()
	if err != nil {
		return "", nil, fmt.Errorf("begin discoverable login: %w", err)
	}
	ceremonyID, err := e.idGenerator()
	if err != nil {
		return "", nil, fmt.Errorf("generate ceremony id: %w", err)
	}
	e.challenges.InsertDiscoverableLogin(ceremonyID, *sessionData)
	return ceremonyID, options, nil
}

// FinishDiscoverableLogin completes a username-less login ceremony. The user
// handle asserted by the authenticator resolves the account; the credential
// must belong to it.
func (e *Engine) FinishDiscoverableLogin(ctx context.Context, ceremonyID string, response []byte) (Result, error) {
	sessionData, ok := e.challenges.RemoveDiscoverableLogin(ceremonyID)
	if !ok {
		return Result{}, ErrInvalidChallenge
	}
	parsed, err := e.parser.ParseCredentialRequestResponseBytes(response)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeCredentialVerification, "bad credentials", err)
	}

	var account user.User
	handler := func(rawID, userHandle []byte) (webauthn.User, error) {
		owner, err := e.users.GetUser(ctx, string(userHandle))
		if err != nil {
			return nil, err
		}
		account = owner
		return e.loadCeremonyUser(ctx, owner)
	}
	_, credential, err := e.webAuthn.ValidatePasskeyLogin(handler, sessionData, parsed)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.CodeCredentialVerification, "bad credentials", err)
	}
	return e.authenticate(ctx, account, credential)
}

// authenticate finalizes a verified login: the stored credential picks up the
// verifier's updated state and a last-used timestamp, and a session token is
// minted for the account. Login sessions start with no scopes.
func (e *Engine) authenticate(ctx context.Context, account user.User, credential *webauthn.Credential) (Result, error) {
	record, err := e.credentials.GetCredential(ctx, encodeCredentialID(credential.ID))
	if err != nil {
		return Result{}, fmt.Errorf("load credential: %w", err)
	}
	blob, err := encodeCredentialJSON(credential)
	if err != nil {
		return Result{}, err
	}
	now := e.clock()
	record.CredentialJSON = blob
	record.LastUsedAt = &now
	if err := e.credentials.UpdateCredential(ctx, record); err != nil {
		return Result{}, fmt.Errorf("update credential: %w", err)
	}

	sessionToken, claims, err := e.sessions.Login(account.ID)
	if err != nil {
		return Result{}, fmt.Errorf("mint session: %w", err)
	}
	return Result{User: account, Token: sessionToken, Claims: claims}, nil
}
