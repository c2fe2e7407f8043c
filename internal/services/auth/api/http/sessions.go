package http

import (
	"errors"
	"net/http"

	"github.com/starhaven/platform/internal/services/auth/storage"
	"github.com/starhaven/platform/internal/services/auth/token"
)

type sessionResponse struct {
	LoggedIn bool          `json:"logged_in"`
	UserID   string        `json:"user_id,omitempty"`
	Username string        `json:"username,omitempty"`
	Scopes   []token.Scope `json:"scopes,omitempty"`
}

// handleSession reports the identity behind the request cookie. An invalid or
// absent cookie is not an error, just an anonymous session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	current := s.currentSession(r)
	if !current.LoggedIn() {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	account, ok, err := current.User(r.Context())
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !ok) {
		// Valid token for a user that no longer exists.
		s.sessions.ClearCookie(w)
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		LoggedIn: true,
		UserID:   account.ID,
		Username: account.Username,
		Scopes:   current.Scopes(),
	})
}

// handleLogout clears the session cookie. The token itself stays valid until
// expiry; logout is purely client-side state.
func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}
