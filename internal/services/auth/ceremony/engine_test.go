package ceremony

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/starhaven/platform/internal/services/auth/challenge"
	"github.com/starhaven/platform/internal/services/auth/session"
	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/token"
	"github.com/starhaven/platform/internal/services/auth/user"
)

type fakeUserStore struct {
	users  map[string]user.User
	getErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]user.User)}
}

func (s *fakeUserStore) GetUser(_ context.Context, userID string) (user.User, error) {
	if s.getErr != nil {
		return user.User{}, s.getErr
	}
	u, ok := s.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *fakeUserStore) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	if s.getErr != nil {
		return user.User{}, s.getErr
	}
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *fakeUserStore) GetUserByNormalizedUsername(_ context.Context, normalized string) (user.User, error) {
	if s.getErr != nil {
		return user.User{}, s.getErr
	}
	for _, u := range s.users {
		if u.UsernameNormalized == normalized {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

type fakeCredentialStore struct {
	credentials  map[string]storage.Credential
	users        *fakeUserStore
	createdUsers []user.User
	createErr    error
	getErr       error
	listErr      error
	updateErr    error
}

func newFakeCredentialStore(users *fakeUserStore) *fakeCredentialStore {
	return &fakeCredentialStore{credentials: make(map[string]storage.Credential), users: users}
}

func (s *fakeCredentialStore) GetCredential(_ context.Context, credentialID string) (storage.Credential, error) {
	if s.getErr != nil {
		return storage.Credential{}, s.getErr
	}
	credential, ok := s.credentials[credentialID]
	if !ok {
		return storage.Credential{}, storage.ErrNotFound
	}
	return credential, nil
}

func (s *fakeCredentialStore) ListCredentialsByUser(_ context.Context, userID string) ([]storage.Credential, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	credentials := make([]storage.Credential, 0)
	for _, credential := range s.credentials {
		if credential.UserID == userID {
			credentials = append(credentials, credential)
		}
	}
	return credentials, nil
}

func (s *fakeCredentialStore) UpdateCredential(_ context.Context, credential storage.Credential) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.credentials[credential.CredentialID] = credential
	return nil
}

func (s *fakeCredentialStore) CreateCredential(_ context.Context, newUser *user.User, credential storage.Credential) error {
	if s.createErr != nil {
		return s.createErr
	}
	if _, ok := s.credentials[credential.CredentialID]; ok {
		return storage.ErrCredentialExists
	}
	if newUser != nil {
		for _, u := range s.users.users {
			if u.UsernameNormalized == newUser.UsernameNormalized {
				return storage.ErrUsernameTaken
			}
		}
		s.users.users[newUser.ID] = *newUser
		s.createdUsers = append(s.createdUsers, *newUser)
	}
	s.credentials[credential.CredentialID] = credential
	return nil
}

func verifiedCredential(id string) *webauthn.Credential {
	return &webauthn.Credential{ID: []byte(id)}
}

type fakeVerifier struct {
	credential           *webauthn.Credential
	sessionData          webauthn.SessionData
	userHandle           []byte
	beginRegistrationErr error
	createCredentialErr  error
	beginLoginErr        error
	validateLoginErr     error
	registrationOpts     int
}

func (f *fakeVerifier) verifiedCredential() *webauthn.Credential {
	if f.credential != nil {
		return f.credential
	}
	return &webauthn.Credential{ID: []byte("cred")}
}

func (f *fakeVerifier) BeginRegistration(_ webauthn.User, opts ...webauthn.RegistrationOption) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	if f.beginRegistrationErr != nil {
		return nil, nil, f.beginRegistrationErr
	}
	f.registrationOpts = len(opts)
	data := f.sessionData
	return &protocol.CredentialCreation{}, &data, nil
}

func (f *fakeVerifier) CreateCredential(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialCreationData) (*webauthn.Credential, error) {
	if f.createCredentialErr != nil {
		return nil, f.createCredentialErr
	}
	return f.verifiedCredential(), nil
}

func (f *fakeVerifier) BeginLogin(_ webauthn.User, _ ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginLoginErr != nil {
		return nil, nil, f.beginLoginErr
	}
	data := f.sessionData
	return &protocol.CredentialAssertion{}, &data, nil
}

func (f *fakeVerifier) BeginDiscoverableLogin(_ ...webauthn.LoginOption) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	if f.beginLoginErr != nil {
		return nil, nil, f.beginLoginErr
	}
	data := f.sessionData
	return &protocol.CredentialAssertion{}, &data, nil
}

func (f *fakeVerifier) ValidateLogin(_ webauthn.User, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (*webauthn.Credential, error) {
	if f.validateLoginErr != nil {
		return nil, f.validateLoginErr
	}
	return f.verifiedCredential(), nil
}

func (f *fakeVerifier) ValidatePasskeyLogin(handler webauthn.DiscoverableUserHandler, _ webauthn.SessionData, _ *protocol.ParsedCredentialAssertionData) (webauthn.User, *webauthn.Credential, error) {
	if f.validateLoginErr != nil {
		return nil, nil, f.validateLoginErr
	}
	credential := f.verifiedCredential()
	loginUser, err := handler(credential.ID, f.userHandle)
	if err != nil {
		return nil, nil, err
	}
	return loginUser, credential, nil
}

type fakeParser struct {
	creationErr  error
	assertionErr error
}

func (f *fakeParser) ParseCredentialCreationResponseBytes(_ []byte) (*protocol.ParsedCredentialCreationData, error) {
	if f.creationErr != nil {
		return nil, f.creationErr
	}
	return &protocol.ParsedCredentialCreationData{}, nil
}

func (f *fakeParser) ParseCredentialRequestResponseBytes(_ []byte) (*protocol.ParsedCredentialAssertionData, error) {
	if f.assertionErr != nil {
		return nil, f.assertionErr
	}
	return &protocol.ParsedCredentialAssertionData{}, nil
}

type testEngine struct {
	engine      *Engine
	users       *fakeUserStore
	credentials *fakeCredentialStore
	verifier    *fakeVerifier
	parser      *fakeParser
	sessions    *session.Manager
	clock       time.Time
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	users := newFakeUserStore()
	credentials := newFakeCredentialStore(users)
	verifier := &fakeVerifier{}
	parser := &fakeParser{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	codec, err := token.NewCodec(bytes.Repeat([]byte{0x2a}, 32))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	codec.WithClock(func() time.Time { return fixed })
	sessions := session.NewManager(codec, users, true).WithClock(func() time.Time { return fixed })

	engine := &Engine{
		users:       users,
		credentials: credentials,
		challenges:  challenge.NewStore(),
		sessions:    sessions,
		webAuthn:    verifier,
		parser:      parser,
		clock:       func() time.Time { return fixed },
		idGenerator: func() (string, error) { return "ceremony-1", nil },
	}
	return &testEngine{
		engine:      engine,
		users:       users,
		credentials: credentials,
		verifier:    verifier,
		parser:      parser,
		sessions:    sessions,
		clock:       fixed,
	}
}

func (te *testEngine) addUser(t *testing.T, id, username string) user.User {
	t.Helper()
	u := user.User{
		ID:                 id,
		Username:           username,
		UsernameNormalized: user.Normalize(username),
		CreatedAt:          te.clock,
	}
	te.users.users[id] = u
	return u
}

func (te *testEngine) addCredential(t *testing.T, userID, credentialID string) storage.Credential {
	t.Helper()
	blob, err := encodeCredentialJSON(&webauthn.Credential{ID: []byte(credentialID)})
	if err != nil {
		t.Fatalf("encode credential: %v", err)
	}
	credential := storage.Credential{
		CredentialID:   encodeCredentialID([]byte(credentialID)),
		UserID:         userID,
		CredentialJSON: blob,
		CreatedAt:      te.clock,
	}
	te.credentials.credentials[credential.CredentialID] = credential
	return credential
}

func (te *testEngine) loggedInSession(t *testing.T, userID string) session.Session {
	t.Helper()
	encoded, _, err := te.sessions.Login(userID)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	s := te.sessions.Resolve(encoded)
	if !s.LoggedIn() {
		t.Fatalf("expected logged-in session")
	}
	return s
}

func (te *testEngine) anonymousSession() session.Session {
	return te.sessions.Resolve("")
}
