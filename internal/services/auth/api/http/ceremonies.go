package http

import (
	"encoding/json"
	"net/http"
)

type registerStartRequest struct {
	Username string `json:"username"`
}

type registerFinishRequest struct {
	Username   string          `json:"username"`
	Credential json.RawMessage `json:"credential"`
}

type loginStartRequest struct {
	Username string `json:"username"`
}

type loginFinishRequest struct {
	CeremonyID string          `json:"ceremony_id"`
	Credential json.RawMessage `json:"credential"`
}

type startLoginResponse struct {
	CeremonyID string `json:"ceremony_id"`
	Options    any    `json:"options"`
}

type finishResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) handleRegisterStart(w http.ResponseWriter, r *http.Request) {
	var req registerStartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	options, err := s.engine.StartRegistration(r.Context(), req.Username, s.currentSession(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (s *Server) handleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	var req registerFinishRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.FinishRegistration(r.Context(), req.Username, s.currentSession(r), req.Credential)
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.WriteCookie(w, result.Token)
	writeJSON(w, http.StatusOK, finishResponse{UserID: result.User.ID, Username: result.User.Username})
}

func (s *Server) handleLoginStart(w http.ResponseWriter, r *http.Request) {
	var req loginStartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ceremonyID, options, err := s.engine.StartLogin(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startLoginResponse{CeremonyID: ceremonyID, Options: options})
}

func (s *Server) handleLoginFinish(w http.ResponseWriter, r *http.Request) {
	var req loginFinishRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.FinishLogin(r.Context(), req.CeremonyID, req.Credential)
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.WriteCookie(w, result.Token)
	writeJSON(w, http.StatusOK, finishResponse{UserID: result.User.ID, Username: result.User.Username})
}

func (s *Server) handleDiscoverableStart(w http.ResponseWriter, r *http.Request) {
	ceremonyID, options, err := s.engine.StartDiscoverableLogin(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, startLoginResponse{CeremonyID: ceremonyID, Options: options})
}

func (s *Server) handleDiscoverableFinish(w http.ResponseWriter, r *http.Request) {
	var req loginFinishRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.engine.FinishDiscoverableLogin(r.Context(), req.CeremonyID, req.Credential)
	if err != nil {
		writeError(w, err)
		return
	}
	s.sessions.WriteCookie(w, result.Token)
	writeJSON(w, http.StatusOK, finishResponse{UserID: result.User.ID, Username: result.User.Username})
}
