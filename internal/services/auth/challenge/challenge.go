// Package challenge holds the transient state of in-flight passkey
// ceremonies between their start and finish calls.
//
// A Store is constructed once at service start and injected into the
// ceremony engine. State lives in process memory only: a restart voids every
// in-flight ceremony, and entries for ceremonies that are never finished stay
// for the process lifetime (no TTL sweep exists yet).
package challenge

import (
	"sync"

	"github.com/go-webauthn/webauthn/webauthn"
)

// Registration is the state held between registration start and finish:
// the user id pre-allocated before the user row exists, and the verifier
// session data.
type Registration struct {
	UserID  string
	Session webauthn.SessionData
}

// table is a mutex-protected map with atomic take-and-delete semantics.
type table[V any] struct {
	mu      sync.Mutex
	entries map[string]V
}

func newTable[V any]() *table[V] {
	return &table[V]{entries: make(map[string]V)}
}

// insert stores value under key and returns the previous value, if any.
func (t *table[V]) insert(key string, value V) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	previous, existed := t.entries[key]
	t.entries[key] = value
	return previous, existed
}

// remove takes and deletes the value under key in one step, so concurrent
// removals of the same key yield exactly one success.
func (t *table[V]) remove(key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	return value, ok
}

// Store holds the three independent ceremony maps: registrations keyed by
// username, logins and discoverable logins keyed by random challenge id.
type Store struct {
	registrations *table[Registration]
	logins        *table[webauthn.SessionData]
	discoverable  *table[webauthn.SessionData]
}

// NewStore builds an empty ceremony state store.
func NewStore() *Store {
	return &Store{
		registrations: newTable[Registration](),
		logins:        newTable[webauthn.SessionData](),
		discoverable:  newTable[webauthn.SessionData](),
	}
}

// InsertRegistration stores a registration challenge under its username,
// returning any challenge it displaced.
func (s *Store) InsertRegistration(username string, reg Registration) (Registration, bool) {
	return s.registrations.insert(username, reg)
}

// RemoveRegistration consumes the registration challenge for a username.
func (s *Store) RemoveRegistration(username string) (Registration, bool) {
	return s.registrations.remove(username)
}

// InsertLogin stores a login challenge under its id.
func (s *Store) InsertLogin(id string, data webauthn.SessionData) {
	s.logins.insert(id, data)
}

// RemoveLogin consumes the login challenge for an id.
func (s *Store) RemoveLogin(id string) (webauthn.SessionData, bool) {
	return s.logins.remove(id)
}

// InsertDiscoverableLogin stores a discoverable login challenge under its id.
func (s *Store) InsertDiscoverableLogin(id string, data webauthn.SessionData) {
	s.discoverable.insert(id, data)
}

// RemoveDiscoverableLogin consumes the discoverable login challenge for an id.
func (s *Store) RemoveDiscoverableLogin(id string) (webauthn.SessionData, bool) {
	return s.discoverable.remove(id)
}
