package server

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
)

// browserSessionID returns the session cookie value, issuing a new cookie
// when the browser has none
func (s *Server) browserSessionID(w http.ResponseWriter, r *http.Request) string {
	name := s.config.GetSessionCookieName()
	if cookie, err := r.Cookie(name); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return cookie.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.config.GetSessionPersistTTL().Seconds()),
	})
	return id
}

// redirectSuccess helper for htmx-aware success redirects
func redirectSuccess(w http.ResponseWriter, r *http.Request, path string) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

// redirectWithError redirects to path carrying the user facing text of err
func redirectWithError(w http.ResponseWriter, r *http.Request, path string, err error) {
	redirectSuccess(w, r, withParam(path, "error", apperrors.UserMessage(err)))
}

// redirectWithMessage redirects to path carrying a confirmation message
func redirectWithMessage(w http.ResponseWriter, r *http.Request, path, message string) {
	redirectSuccess(w, r, withParam(path, "message", message))
}

func withParam(path, key, value string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
