package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

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
	found, ok := s.users[userID]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return found, nil
}

func (s *fakeUserStore) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func (s *fakeUserStore) GetUserByNormalizedUsername(_ context.Context, normalized string) (user.User, error) {
	for _, u := range s.users {
		if u.UsernameNormalized == normalized {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

func testManager(t *testing.T, users storage.UserStore, now time.Time) *Manager {
	t.Helper()
	codec, err := token.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	codec = codec.WithClock(func() time.Time { return now })
	return NewManager(codec, users, false).WithClock(func() time.Time { return now })
}

func TestLoginResolveRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	users := newFakeUserStore()
	users.users["user-1"] = user.User{ID: "user-1", Username: "alice", UsernameNormalized: "alice"}
	manager := testManager(t, users, now)

	encoded, claims, err := manager.Login("user-1", token.ScopeCreateMod)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("claims subject = %q", claims.Subject)
	}
	if !claims.ExpiresAt.Equal(now.Add(Lifetime)) {
		t.Fatalf("claims expiry = %v, want %v", claims.ExpiresAt, now.Add(Lifetime))
	}

	sess := manager.Resolve(encoded)
	if !sess.LoggedIn() {
		t.Fatal("expected logged-in session")
	}
	if id, ok := sess.UserID(); !ok || id != "user-1" {
		t.Fatalf("user id = %q, %v", id, ok)
	}
	if !sess.HasScope(token.ScopeCreateMod) {
		t.Fatal("expected create_mod scope")
	}
	if sess.HasScope(token.ScopeAdminister) {
		t.Fatal("unexpected administer scope")
	}

	found, ok, err := sess.User(context.Background())
	if err != nil || !ok {
		t.Fatalf("user lookup: %v, %v", err, ok)
	}
	if found.Username != "alice" {
		t.Fatalf("username = %q", found.Username)
	}
}

func TestResolveInvalidTokenIsAnonymous(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	manager := testManager(t, newFakeUserStore(), now)

	for _, value := range []string{"", "garbage", "a.b.c"} {
		sess := manager.Resolve(value)
		if sess.LoggedIn() {
			t.Fatalf("expected anonymous session for %q", value)
		}
		if sess.HasScope(token.ScopeCreateMod) {
			t.Fatal("anonymous session must grant no scopes")
		}
		if _, ok := sess.UserID(); ok {
			t.Fatal("anonymous session must have no user id")
		}
		if _, ok, err := sess.User(context.Background()); ok || err != nil {
			t.Fatalf("anonymous user lookup = %v, %v", ok, err)
		}
	}
}

func TestResolveExpiredTokenIsAnonymous(t *testing.T) {
	minted := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	manager := testManager(t, newFakeUserStore(), minted)
	encoded, _, err := manager.Login("user-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	later := testManager(t, newFakeUserStore(), minted.Add(Lifetime+time.Hour))
	if later.Resolve(encoded).LoggedIn() {
		t.Fatal("expected expired token to resolve as anonymous")
	}
}

func TestSessionUserPropagatesStoreError(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	users := newFakeUserStore()
	users.getErr = errors.New("connection refused")
	manager := testManager(t, users, now)

	encoded, _, err := manager.Login("user-1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, err := manager.Resolve(encoded).User(context.Background()); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestWriteCookie(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	manager := testManager(t, newFakeUserStore(), now)

	recorder := httptest.NewRecorder()
	manager.WriteCookie(recorder, "encoded-token")

	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != CookieName || cookie.Value != "encoded-token" {
		t.Fatalf("cookie = %s=%s", cookie.Name, cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Fatal("expected HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Fatal("expected SameSite=Lax")
	}
	if cookie.Path != "/" {
		t.Fatalf("path = %q", cookie.Path)
	}
	if want := int(Lifetime.Seconds()); cookie.MaxAge != want {
		t.Fatalf("max-age = %d, want %d", cookie.MaxAge, want)
	}
	if cookie.Secure {
		t.Fatal("expected insecure cookie for dev manager")
	}
}

func TestClearCookie(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	manager := testManager(t, newFakeUserStore(), now)

	recorder := httptest.NewRecorder()
	manager.ClearCookie(recorder)

	cookies := recorder.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	if cookies[0].Value != "" || cookies[0].MaxAge != -1 {
		t.Fatalf("expected expiring empty cookie, got value=%q max-age=%d", cookies[0].Value, cookies[0].MaxAge)
	}
}

func TestReadCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := ReadCookie(r); ok {
		t.Fatal("expected no cookie")
	}

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})
	value, ok := ReadCookie(r)
	if !ok || value != "abc" {
		t.Fatalf("read cookie = %q, %v", value, ok)
	}
}

func TestLifetimeMatchesThirtyDays(t *testing.T) {
	if got := strconv.Itoa(int(Lifetime.Seconds())); got != "2592000" {
		t.Fatalf("lifetime seconds = %s, want 2592000", got)
	}
}
