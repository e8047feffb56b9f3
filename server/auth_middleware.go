package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/movie-ratings/auth"
	"github.com/jrsteele09/movie-ratings/backend"
	"github.com/jrsteele09/movie-ratings/guard"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
)

type viewContextKey struct{}

// viewContext is what RequireView hands to the guarded handler.
type viewContext struct {
	browser *browserSession
	state   auth.State
}

// RequireView resolves the browser's auth state and applies the route guard.
// Requests arriving while the state is still loading wait up to the await
// timeout, then get the loading page.
func (s *Server) RequireView(requirement guard.Requirement) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			browser, state, err := s.settle(w, r)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("auth state unavailable")
				s.renderError(w, r, http.StatusServiceUnavailable, err)
				return
			}

			decision := guard.Check(state, requirement, r.URL.Path)
			switch decision.Outcome {
			case guard.Redirect:
				redirectSuccess(w, r, decision.Target)
				return
			case guard.Wait:
				s.renderLoading(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), viewContextKey{}, &viewContext{browser: browser, state: state})
			next(w, r.WithContext(ctx))
		}
	}
}

// settle returns the browser session and its auth state once loading has
// finished or the await timeout passed
func (s *Server) settle(w http.ResponseWriter, r *http.Request) (*browserSession, auth.State, error) {
	id := s.browserSessionID(w, r)
	for attempt := 0; ; attempt++ {
		browser, err := s.browsers.get(r.Context(), id)
		if err != nil {
			return nil, auth.State{}, err
		}

		if browser.coordinator.State().SignedIn() {
			// Refreshes an expiring access token; the store notifies the coordinator
			if _, err := browser.store.GetSession(r.Context()); err != nil {
				s.logger.Warn().Err(err).Str("browser_session", shortID(id)).Msg("session refresh failed")
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.awaitTimeout)
		state, err := browser.coordinator.Await(ctx)
		cancel()
		switch {
		case err == nil, apperrors.Is(err, context.DeadlineExceeded):
			return browser, state, nil
		case apperrors.Is(err, auth.ErrCoordinatorClosed) && attempt == 0:
			// Swept between lookup and await
			continue
		default:
			return nil, auth.State{}, err
		}
	}
}

func viewFrom(r *http.Request) *viewContext {
	if v, ok := r.Context().Value(viewContextKey{}).(*viewContext); ok {
		return v
	}
	return &viewContext{}
}

// dataContext attaches the caller's session so data requests run under its
// row level policies
func dataContext(r *http.Request) context.Context {
	return backend.ContextWithSession(r.Context(), viewFrom(r).state.Session)
}
