package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/sessions"
)

var _ sessions.Authenticator = (*Auth)(nil)

// Auth is the GoTrue client.
type Auth struct {
	client *Client
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// tokenResponse is a GoTrue session. Sign up without auto confirmation
// returns the bare user instead, which decodes with an empty AccessToken.
type tokenResponse struct {
	AccessToken  string     `json:"access_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	RefreshToken string     `json:"refresh_token"`
	User         gotrueUser `json:"user"`
}

type gotrueError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (a *Auth) PasswordGrant(ctx context.Context, email, password string) (*backend.Session, error) {
	var tok tokenResponse
	err := a.client.do(ctx, request{
		service:   "gotrue",
		operation: "password_grant",
		method:    http.MethodPost,
		path:      authPath + "/token",
		query:     url.Values{"grant_type": {"password"}},
		body:      map[string]string{"email": email, "password": password},
	}, &tok, mapAuthError)
	if err != nil {
		return nil, err
	}
	return a.session(ctx, tok)
}

func (a *Auth) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	var raw json.RawMessage
	err := a.client.do(ctx, request{
		service:   "gotrue",
		operation: "signup",
		method:    http.MethodPost,
		path:      authPath + "/signup",
		body:      map[string]string{"email": email, "password": password},
	}, &raw, mapAuthError)
	if err != nil {
		return nil, err
	}

	var tok tokenResponse
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "[Auth SignUp] decode response: %v", err)
	}
	if tok.AccessToken == "" {
		// Confirmation email sent, no session yet
		return nil, nil
	}
	return a.session(ctx, tok)
}

func (a *Auth) Refresh(ctx context.Context, refreshToken string) (*backend.Session, error) {
	var tok tokenResponse
	err := a.client.do(ctx, request{
		service:   "gotrue",
		operation: "refresh_grant",
		method:    http.MethodPost,
		path:      authPath + "/token",
		query:     url.Values{"grant_type": {"refresh_token"}},
		body:      map[string]string{"refresh_token": refreshToken},
	}, &tok, mapAuthError)
	if err != nil {
		return nil, err
	}
	return a.session(ctx, tok)
}

func (a *Auth) Logout(ctx context.Context, accessToken string) error {
	return a.client.do(ctx, request{
		service:   "gotrue",
		operation: "logout",
		method:    http.MethodPost,
		path:      authPath + "/logout",
		bearer:    accessToken,
	}, nil, mapAuthError)
}

func (a *Auth) Recover(ctx context.Context, email, redirectTo string) error {
	query := url.Values{}
	if redirectTo != "" {
		query.Set("redirect_to", redirectTo)
	}
	return a.client.do(ctx, request{
		service:   "gotrue",
		operation: "recover",
		method:    http.MethodPost,
		path:      authPath + "/recover",
		query:     query,
		body:      map[string]string{"email": email},
	}, nil, mapAuthError)
}

// session converts a token response, checking the access token names the
// same user the response does
func (a *Auth) session(ctx context.Context, tok tokenResponse) (*backend.Session, error) {
	if tok.AccessToken == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "[Auth session] response has no access token")
	}
	claims, err := a.verify(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if tok.User.ID != "" && claims.Subject != tok.User.ID {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[Auth session] token subject does not match user")
	}

	expiresAt := time.Time{}
	switch {
	case tok.ExpiresAt > 0:
		expiresAt = time.Unix(tok.ExpiresAt, 0)
	case tok.ExpiresIn > 0:
		expiresAt = a.client.nowTime().Add(time.Duration(tok.ExpiresIn) * time.Second)
	case claims.ExpiresAt != nil:
		expiresAt = claims.ExpiresAt.Time
	}

	email := tok.User.Email
	if email == "" {
		email = claims.Email
	}
	return &backend.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    expiresAt.UTC(),
		Identity:     backend.Identity{ID: claims.Subject, Email: email},
	}, nil
}

// verify checks the token signature against the project JWKS when one is
// configured and returns its claims
func (a *Auth) verify(ctx context.Context, accessToken string) (*accessClaims, error) {
	if a.client.keys != nil {
		if _, err := a.client.keys.VerifySignature(ctx, accessToken); err != nil {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[Auth verify] signature: %v", err)
		}
	}
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[Auth verify] parse claims: %v", err)
	}
	if claims.Subject == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[Auth verify] token has no subject")
	}
	return claims, nil
}

func mapAuthError(status int, body []byte) error {
	var e gotrueError
	_ = json.Unmarshal(body, &e)
	message := describe(e.ErrorDescription, e.Msg, e.Message, e.Error)
	code := e.ErrorCode
	if code == "" {
		code = e.Error
	}

	switch {
	case code == "email_not_confirmed":
		return apperrors.Wrapf(apperrors.ErrEmailNotConfirmed, "%s", message)
	case code == "invalid_credentials", code == "invalid_grant", code == "refresh_token_not_found", code == "refresh_token_already_used":
		return apperrors.Wrapf(apperrors.ErrInvalidCredentials, "%s", message)
	case code == "user_already_exists", code == "email_exists", strings.Contains(strings.ToLower(message), "already registered"):
		return apperrors.Wrapf(apperrors.ErrConflict, "%s", message)
	case code == "weak_password", code == "validation_failed", code == "email_address_invalid":
		return apperrors.NewValidationError("credentials", message)
	case code == "session_not_found", code == "bad_jwt":
		return apperrors.Wrapf(apperrors.ErrSessionMissing, "%s", message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return apperrors.NewValidationError("credentials", message)
	}
	return statusError(status, message)
}
