// Package session turns successful ceremonies into signed session tokens and
// resolves incoming tokens back into authenticated identities.
//
// Sessions are stateless: the token in the cookie is the whole session. Every
// request decodes its own cookie; nothing is cached across requests.
package session

import (
	"context"
	"log"
	"time"

	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/token"
	"github.com/starhaven/platform/internal/services/auth/user"
)

// Lifetime is the session duration, used identically for the claim expiry and
// the cookie max-age.
const Lifetime = 30 * 24 * time.Hour

// Manager mints and resolves session tokens.
type Manager struct {
	codec  *token.Codec
	users  storage.UserStore
	secure bool
	clock  func() time.Time
}

// NewManager builds a session manager around a claims codec and the user
// store used for subject lookups.
func NewManager(codec *token.Codec, users storage.UserStore, secure bool) *Manager {
	return &Manager{codec: codec, users: users, secure: secure, clock: time.Now}
}

// WithClock overrides the manager clock. Intended for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	if clock != nil {
		m.clock = clock
	}
	return m
}

// Login mints a signed token for the user with the given scopes.
func (m *Manager) Login(userID string, scopes ...token.Scope) (string, token.Claims, error) {
	claims := token.NewClaims(userID, scopes, Lifetime, m.clock())
	encoded, err := m.codec.Encode(claims)
	if err != nil {
		return "", token.Claims{}, err
	}
	return encoded, claims, nil
}

// Resolve derives the session for a request from its cookie value. An absent
// or invalid token yields an anonymous session, never an error: failures are
// logged server-side and the client simply is not logged in.
func (m *Manager) Resolve(cookieValue string) Session {
	if cookieValue == "" {
		return Session{users: m.users}
	}
	claims, err := m.codec.Decode(cookieValue)
	if err != nil {
		log.Printf("session token validation failed: %v", err)
		return Session{users: m.users}
	}
	return Session{claims: &claims, users: m.users}
}

// Session is the per-request authenticated view. Derived fresh from the
// cookie on every request and never persisted.
type Session struct {
	claims *token.Claims
	users  storage.UserStore
}

// LoggedIn reports whether the session carries valid claims.
func (s Session) LoggedIn() bool {
	return s.claims != nil
}

// UserID returns the authenticated subject id.
func (s Session) UserID() (string, bool) {
	if s.claims == nil {
		return "", false
	}
	return s.claims.Subject, true
}

// Scopes returns the scopes granted to the session. Empty for anonymous
// sessions.
func (s Session) Scopes() []token.Scope {
	if s.claims == nil {
		return nil
	}
	return s.claims.Scopes
}

// HasScope reports whether the session grants the given scope. Always false
// when unauthenticated.
func (s Session) HasScope(scope token.Scope) bool {
	if s.claims == nil {
		return false
	}
	return s.claims.HasScope(scope)
}

// User fetches the session user from the store. The second return is false
// for anonymous sessions; store errors propagate.
func (s Session) User(ctx context.Context) (user.User, bool, error) {
	if s.claims == nil || s.users == nil {
		return user.User{}, false, nil
	}
	found, err := s.users.GetUser(ctx, s.claims.Subject)
	if err != nil {
		return user.User{}, false, err
	}
	return found, true, nil
}
