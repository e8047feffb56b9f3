package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeJSON = "application/json"
)

// HealthHandler reports liveness and the number of live browser sessions
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":           "ok",
			"browser_sessions": s.browsers.len(),
		})
	}
}

// statusFor maps an error to the HTTP status of its error page
func statusFor(err error) int {
	switch apperrors.Kind(err) {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindDenied:
		return http.StatusForbidden
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// failed logs err and renders the matching error page
func (s *Server) failed(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg(msg)
	s.renderError(w, r, statusFor(err), err)
}
