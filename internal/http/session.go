package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"budgetshare/internal/core"
	"budgetshare/internal/log"
)

type ctxKey int

const userKey ctxKey = iota

func withUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// userFrom returns the authenticated user stored by requireSession.
func userFrom(ctx context.Context) core.User {
	u, _ := ctx.Value(userKey).(core.User)
	return u
}

func callerFrom(ctx context.Context) core.Caller {
	return core.Caller{UserID: userFrom(ctx).ID}
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

// sessionToken reads a bearer token first, then the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) authenticate(r *http.Request) (core.User, error) {
	token := sessionToken(r)
	if token == "" {
		return core.User{}, core.ErrNotAuthenticated
	}
	return s.auth.Authenticate(r.Context(), token)
}

// requireSession resolves the caller before any ledger handler runs.
// Anonymous page loads are sent to the login page; htmx requests get
// an HX-Redirect instead.
func (s *Server) requireSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		u, err := s.authenticate(r)
		if err != nil {
			if !errors.Is(err, core.ErrNotAuthenticated) {
				s.logger.ErrorContext(r.Context(), "Session lookup failed", log.FieldError, err)
				NewHTMXResponse().Status(http.StatusInternalServerError).TriggerErrorNotification(genericFailure).Write(w)
				return
			}
			login := "/login?next=" + url.QueryEscape(r.URL.RequestURI())
			if isHTMX(r) {
				NewHTMXResponse().Status(http.StatusUnauthorized).Redirect(login).Write(w)
				return
			}
			if r.Method == http.MethodGet {
				http.Redirect(w, r, login, http.StatusSeeOther)
				return
			}
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}

		ctx := withUser(r.Context(), u)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, u.ID))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
