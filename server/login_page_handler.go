package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/movie-ratings/guard"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
)

// loginPage contains data for rendering the login page
type loginPage struct {
	SignUp bool
	Email  string // Preserve email on error
}

// LoginPageHandler displays the login form, or the sign up form with ?mode=signup
func (s *Server) LoginPageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := loginPage{
			SignUp: r.URL.Query().Get("mode") == "signup",
			Email:  r.URL.Query().Get("email"),
		}
		title := "Sign in"
		if page.SignUp {
			title = "Create account"
		}
		s.render(w, http.StatusOK, "login.html", s.newPageData(r, title, page))
	}
}

// LoginSubmissionHandler processes the login form submission
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := credentialsForm(w, r)
		if !ok {
			return
		}
		browser := viewFrom(r).browser
		if err := browser.coordinator.SignIn(r.Context(), email, password); err != nil {
			s.logger.Debug().Err(err).Msg("sign in failed")
			redirectWithError(w, r, loginURL(email, false), err)
			return
		}
		s.redirectAfterSignIn(w, r, browser)
	}
}

// SignupSubmissionHandler registers an account and signs it in unless the
// backend requires email confirmation first
func (s *Server) SignupSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email, password, ok := credentialsForm(w, r)
		if !ok {
			return
		}
		browser := viewFrom(r).browser
		pending, err := browser.coordinator.SignUp(r.Context(), email, password)
		if err != nil {
			s.logger.Debug().Err(err).Msg("sign up failed")
			redirectWithError(w, r, loginURL(email, true), err)
			return
		}
		if pending {
			redirectWithMessage(w, r, loginURL(email, false), "Account created, check your email to confirm it")
			return
		}
		s.redirectAfterSignIn(w, r, browser)
	}
}

// ForgotPasswordHandler emails a password reset link for the address in the form
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}
		email := strings.TrimSpace(r.FormValue("email"))
		redirectTo := s.config.GetBaseURL() + RouteResetPassword

		browser := viewFrom(r).browser
		if err := browser.coordinator.SendPasswordReset(r.Context(), email, redirectTo); err != nil {
			s.logger.Debug().Err(err).Msg("password reset failed")
			redirectWithError(w, r, loginURL(email, false), err)
			return
		}
		redirectWithMessage(w, r, loginURL(email, false), "Password reset email sent, check your inbox")
	}
}

// LogoutHandler revokes the backend session. A failed revocation keeps the
// browser signed in so the user can retry.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		browser := viewFrom(r).browser
		if err := browser.coordinator.SignOut(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("sign out failed")
			redirectWithError(w, r, RouteHome, err)
			return
		}
		redirectWithMessage(w, r, RouteHome, "You have been signed out")
	}
}

// ResetPasswordHandler is the landing page of password reset emails
func (s *Server) ResetPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, http.StatusOK, "reset_password.html", s.newPageData(r, "Reset password", nil))
	}
}

// redirectAfterSignIn sends a freshly signed in browser where the login view
// would send it. When the role is still resolving the browser goes back to
// the login view, which waits for it.
func (s *Server) redirectAfterSignIn(w http.ResponseWriter, r *http.Request, browser *browserSession) {
	ctx, cancel := context.WithTimeout(r.Context(), s.awaitTimeout)
	defer cancel()
	state, _ := browser.coordinator.Await(ctx)

	if decision := guard.Check(state, guard.RequireNone, guard.LoginView); decision.Outcome == guard.Redirect {
		redirectSuccess(w, r, decision.Target)
		return
	}
	redirectSuccess(w, r, RouteLogin)
}

func credentialsForm(w http.ResponseWriter, r *http.Request) (email, password string, ok bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return "", "", false
	}
	email = strings.TrimSpace(r.FormValue("email"))
	password = r.FormValue("password")
	if email == "" || password == "" {
		redirectWithError(w, r, loginURL(email, r.URL.Path == RouteAuthSignup),
			apperrors.NewValidationError("credentials", "Email and password are required"))
		return "", "", false
	}
	return email, password, true
}

func loginURL(email string, signUp bool) string {
	q := url.Values{}
	if email != "" {
		q.Set("email", email)
	}
	if signUp {
		q.Set("mode", "signup")
	}
	if len(q) == 0 {
		return RouteLogin
	}
	return RouteLogin + "?" + q.Encode()
}
