// Package http exposes the passkey ceremonies and session endpoints over a
// JSON API.
package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	apperrors "github.com/starhaven/platform/internal/platform/errors"
	"github.com/starhaven/platform/internal/services/auth/ceremony"
	"github.com/starhaven/platform/internal/services/auth/session"
)

// Server routes ceremony and session requests to the auth engine.
type Server struct {
	engine   *ceremony.Engine
	sessions *session.Manager
}

// NewServer builds the auth HTTP surface.
func NewServer(engine *ceremony.Engine, sessions *session.Manager) *Server {
	return &Server{engine: engine, sessions: sessions}
}

// Handler returns the route table for the auth endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register/start", s.handleRegisterStart)
	mux.HandleFunc("POST /auth/register/finish", s.handleRegisterFinish)
	mux.HandleFunc("POST /auth/login/start", s.handleLoginStart)
	mux.HandleFunc("POST /auth/login/finish", s.handleLoginFinish)
	mux.HandleFunc("POST /auth/login/discoverable/start", s.handleDiscoverableStart)
	mux.HandleFunc("POST /auth/login/discoverable/finish", s.handleDiscoverableFinish)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/session", s.handleSession)
	return mux
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps a ceremony failure onto its HTTP status. Codes travel to
// the client; internal causes stay in the server log.
func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Printf("auth request failed: %v", err)
		writeJSON(w, status, errorResponse{Error: string(apperrors.CodeUnknown), ErrorDescription: "internal error"})
		return
	}

	message := err.Error()
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeJSON(w, status, errorResponse{Error: string(code), ErrorDescription: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", ErrorDescription: "malformed request body"})
		return false
	}
	return true
}

// currentSession resolves the request's cookie into a session. Absent or
// invalid cookies yield an anonymous session.
func (s *Server) currentSession(r *http.Request) session.Session {
	value, _ := session.ReadCookie(r)
	return s.sessions.Resolve(value)
}
