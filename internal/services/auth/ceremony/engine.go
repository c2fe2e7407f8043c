// Package ceremony orchestrates the passkey registration and login protocols:
// two-phase start/finish exchanges with server-held transient state between
// the phases.
package ceremony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	apperrors "github.com/starhaven/platform/internal/platform/errors"
	"github.com/starhaven/platform/internal/platform/id"
	"github.com/starhaven/platform/internal/services/auth/challenge"
	"github.com/starhaven/platform/internal/services/auth/passkey"
	"github.com/starhaven/platform/internal/services/auth/session"
	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/token"
	"github.com/starhaven/platform/internal/services/auth/user"
)

var (
	// ErrInvalidChallenge indicates a ceremony id that is unknown or already
	// consumed. The client must restart the ceremony.
	ErrInvalidChallenge = apperrors.New(apperrors.CodeInvalidChallenge, "invalid challenge")
	// ErrUsernameMismatch indicates a ceremony username that does not match
	// the logged-in user.
	ErrUsernameMismatch = apperrors.New(apperrors.CodeUnauthorized, "username does not match the logged-in user")
	// ErrNoPasskeys indicates a login attempt for a username with no
	// registered passkeys. This reveals username existence; accepted tradeoff.
	ErrNoPasskeys = apperrors.New(apperrors.CodeNoPasskeys, "no passkeys found for this user")
	// ErrBadCredentials indicates the verifier rejected the client response:
	// signature, origin, or challenge mismatch. Detail is logged server-side.
	ErrBadCredentials = apperrors.New(apperrors.CodeCredentialVerification, "bad credentials")
)

// verifier is the slice of the WebAuthn library the engine calls. The
// cryptographic checks live entirely behind it.
type verifier interface {
	BeginRegistration(user webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	CreateCredential(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error)
	BeginLogin(user webauthn.User, opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin(opts ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	ValidateLogin(user webauthn.User, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error)
	ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, session webauthn.SessionData, response *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error)
}

type credentialParser interface {
	ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error)
	ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error)
}

type defaultCredentialParser struct{}

func (defaultCredentialParser) ParseCredentialCreationResponseBytes(data []byte) (*protocol.ParsedCredentialCreationData, error) {
	return protocol.ParseCredentialCreationResponseBytes(data)
}

func (defaultCredentialParser) ParseCredentialRequestResponseBytes(data []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return protocol.ParseCredentialRequestResponseBytes(data)
}

// Engine runs the three passkey ceremonies against the injected challenge
// store and the external user/credential store.
type Engine struct {
	users       storage.UserStore
	credentials storage.CredentialStore
	challenges  *challenge.Store
	sessions    *session.Manager
	webAuthn    verifier
	parser      credentialParser
	clock       func() time.Time
	idGenerator func() (string, error)
}

// New builds a ceremony engine. The challenge store is constructed by the
// caller and owns all transient ceremony state for the process lifetime.
func New(users storage.UserStore, credentials storage.CredentialStore, challenges *challenge.Store, sessions *session.Manager, cfg passkey.Config) (*Engine, error) {
	webAuthn, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}
	return &Engine{
		users:       users,
		credentials: credentials,
		challenges:  challenges,
		sessions:    sessions,
		webAuthn:    webAuthn,
		parser:      defaultCredentialParser{},
		clock:       time.Now,
		idGenerator: id.NewID,
	}, nil
}

// Result is the outcome of a successful finish: the authenticated user and
// the minted session token. The transport layer turns the token into the
// session cookie.
type Result struct {
	User   user.User
	Token  string
	Claims token.Claims
}

// ceremonyUser adapts a platform user to the WebAuthn user contract.
type ceremonyUser struct {
	id          string
	name        string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.id)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnIcon() string {
	return ""
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// loadCeremonyUser builds the WebAuthn view of a stored user with its full,
// current credential set.
func (e *Engine) loadCeremonyUser(ctx context.Context, base user.User) (*ceremonyUser, error) {
	records, err := e.credentials.ListCredentialsByUser(ctx, base.ID)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	decoded, err := decodeStoredCredentials(records)
	if err != nil {
		return nil, err
	}
	return &ceremonyUser{id: base.ID, name: base.Username, credentials: decoded}, nil
}

func decodeStoredCredentials(records []storage.Credential) ([]webauthn.Credential, error) {
	if len(records) == 0 {
		return nil, nil
	}
	credentials := make([]webauthn.Credential, 0, len(records))
	for _, record := range records {
		var credential webauthn.Credential
		if err := json.Unmarshal([]byte(record.CredentialJSON), &credential); err != nil {
			return nil, fmt.Errorf("decode credential %s: %w", record.CredentialID, err)
		}
		credentials = append(credentials, credential)
	}
	return credentials, nil
}

func encodeCredentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func encodeCredentialJSON(credential *webauthn.Credential) (string, error) {
	blob, err := json.Marshal(credential)
	if err != nil {
		return "", fmt.Errorf("encode credential: %w", err)
	}
	return string(blob), nil
}
