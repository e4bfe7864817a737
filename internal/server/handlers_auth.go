package server

import (
	"net/http"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/auth"
	"github.com/mohammedemad618/amir-sub000/internal/storage/models"
	"github.com/mohammedemad618/amir-sub000/pkg/errors"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

func (s *Server) startSession(w http.ResponseWriter, status int, sess *auth.Session) {
	s.authn.SetCookie(w, sess.Token, sess.ExpiresAt)
	s.writeJSON(w, status, sessionResponse{
		User:      sess.User,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.auth.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		if errors.Is(err, errors.ErrEmailTaken) {
			s.security.LogFailedAuth(r, req.Email, "email_taken")
		}
		s.writeError(w, r, err)
		return
	}

	s.startSession(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidCredentials) {
			s.security.LogFailedAuth(r, req.Email, "invalid_credentials")
		}
		s.writeError(w, r, err)
		return
	}

	s.security.LogLogin(r, sess.User.ID)
	s.startSession(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.authn.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFrom(r.Context())
	user, err := s.auth.Me(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}
