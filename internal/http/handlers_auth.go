package http

import (
	"errors"
	"net/http"

	"budgetshare/internal/core"
	"budgetshare/internal/log"
)

type authPageData struct {
	Next  string
	Email string
	Name  string
	Error string
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if _, err := s.authenticate(r); err == nil {
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", authPageData{Next: next})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	data := authPageData{Next: safeNext(p.Get("next")), Email: p.Get("email")}

	sess, u, err := s.auth.Login(r.Context(), data.Email, p.Raw("password"))
	if err != nil {
		status, rej := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Login failed", log.FieldError, err)
		}
		data.Error = rej.Message
		s.render(w, r, status, "login.html", data)
		return
	}

	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	s.logger.InfoContext(r.Context(), "Signed in", log.FieldUserID, u.ID)
	http.Redirect(w, r, data.Next, http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "register.html", authPageData{Next: safeNext(r.URL.Query().Get("next"))})
}

// handleRegister creates the account and signs it straight in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	data := authPageData{Next: safeNext(p.Get("next")), Email: p.Get("email"), Name: p.Get("name")}
	password := p.Raw("password")

	if _, err := s.auth.Register(r.Context(), data.Email, data.Name, password); err != nil {
		status, rej := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.ErrorContext(r.Context(), "Registration failed", log.FieldError, err)
		}
		data.Error = rej.Message
		s.render(w, r, status, "register.html", data)
		return
	}

	sess, _, err := s.auth.Login(r.Context(), data.Email, password)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Login after registration failed", log.FieldError, err)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	http.Redirect(w, r, data.Next, http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionToken(r)); err != nil && !errors.Is(err, core.ErrNotFound) {
		s.logger.ErrorContext(r.Context(), "Logout failed", log.FieldError, err)
	}
	s.clearSessionCookie(w)
	if isHTMX(r) {
		NewHTMXResponse().Redirect("/login").Write(w)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
