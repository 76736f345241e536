package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/org/dealership/internal/auth"
	"github.com/org/dealership/internal/storage"
	"github.com/org/dealership/pkg/models"
)

// setSessionCookie stores token in a cookie scripts cannot read, sent only
// over TLS and on cross-site requests.
func (s *Server) setSessionCookie(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.guard.CookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.guard.CookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// LoginHandler handles POST /users/login
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, sess, err := s.authn.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			loginAttempts.WithLabelValues("failure").Inc()
			s.clearSessionCookie(w)
			writeError(w, http.StatusUnauthorized, "authentication failed")
			return
		}
		loginAttempts.WithLabelValues("error").Inc()
		writeInternal(w, r, err, "login")
		return
	}

	loginAttempts.WithLabelValues("success").Inc()
	log.Info().Int64("principal_id", sess.ID).Str("token_id", sess.TokenID).Msg("session issued")
	s.setSessionCookie(w, token, s.authn.TTL())
	w.WriteHeader(http.StatusNoContent)
}

// LogoutHandler handles POST /users/logout. Tokens are stateless, so logging
// out only removes the cookie from the client.
func (s *Server) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	s.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// MeHandler handles GET /users/me
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if sess == nil {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// RegisterHandler handles POST /users
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseRegistration(w, r)
	if !ok {
		return
	}
	if err := s.store.CreatePrincipal(r.Context(), p); err != nil {
		s.writePrincipalErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// ListUsersHandler handles GET /users
func (s *Server) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListPrincipals(r.Context())
	if err != nil {
		writeInternal(w, r, err, "listing principals")
		return
	}
	if items == nil {
		items = []*models.Principal{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetUserHandler handles GET /users/{id}
func (s *Server) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "principal not found")
		return
	}
	p, err := s.store.GetPrincipal(r.Context(), id)
	if err != nil {
		s.writePrincipalErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdateUserHandler handles PUT /users/{id}. The secret is always re-hashed.
func (s *Server) UpdateUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "principal not found")
		return
	}
	p, ok := s.parseRegistration(w, r)
	if !ok {
		return
	}
	p.ID = id
	if err := s.store.UpdatePrincipal(r.Context(), p); err != nil {
		s.writePrincipalErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteUserHandler handles DELETE /users/{id}
func (s *Server) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusNotFound, "principal not found")
		return
	}
	if err := s.store.DeletePrincipal(r.Context(), id); err != nil {
		s.writePrincipalErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) parseRegistration(w http.ResponseWriter, r *http.Request) (*models.Principal, bool) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	res, err := s.rules.Registration.ParseJSON(body, s.clock.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if !res.OK() {
		countViolations(s.rules.Registration.Kind(), res.Violations)
		writeViolations(w, res.Violations)
		return nil, false
	}
	hash, err := auth.HashPassword(res.Record.Password, s.cfg.BcryptCost)
	if err != nil {
		writeInternal(w, r, err, "hashing password")
		return nil, false
	}
	return &models.Principal{Name: res.Record.Name, Email: res.Record.Email, PasswordHash: hash}, true
}

func (s *Server) writePrincipalErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "principal not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "e-mail address already registered")
	case errors.Is(err, storage.ErrInvalidReference):
		writeError(w, http.StatusConflict, "principal is still referenced")
	default:
		writeInternal(w, r, err, "writing principal")
	}
}
