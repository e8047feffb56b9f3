package memory

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/sessions"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var _ sessions.Authenticator = (*Backend)(nil)

// tokenClaims mirrors the claims the hosted auth service puts in access tokens
type tokenClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return apperrors.NewValidationError("email", "A valid email address is required")
	}
	if len(password) < minPasswordLength {
		return apperrors.NewValidationError("password", "Password should be at least 6 characters")
	}
	return nil
}

func (b *Backend) createAccount(email, password string, confirmed bool) (*account, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.bcryptCost)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "[Backend createAccount] hash password: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.accounts[email]; exists {
		return nil, apperrors.Wrapf(apperrors.ErrConflict, "[Backend createAccount] user already registered")
	}
	acc := &account{
		ID:           newID(),
		Email:        email,
		PasswordHash: hash,
		Confirmed:    confirmed,
		CreatedAt:    b.now(),
	}
	b.accounts[email] = acc
	return acc, nil
}

func (b *Backend) PasswordGrant(_ context.Context, email, password string) (*backend.Session, error) {
	b.mu.RLock()
	acc, ok := b.accounts[normalizeEmail(email)]
	b.mu.RUnlock()

	if !ok {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}
	if !acc.Confirmed {
		return nil, apperrors.ErrEmailNotConfirmed
	}
	return b.issueSession(acc)
}

func (b *Backend) SignUp(_ context.Context, email, password string) (*backend.Session, error) {
	acc, err := b.createAccount(email, password, !b.requireConfirmation)
	if err != nil {
		return nil, err
	}
	if !acc.Confirmed {
		b.logger.Info().Str("email", acc.Email).Msg("confirmation email queued")
		return nil, nil
	}
	return b.issueSession(acc)
}

func (b *Backend) Refresh(_ context.Context, refreshToken string) (*backend.Session, error) {
	b.mu.Lock()
	grant, ok := b.refreshTokens[refreshToken]
	if ok {
		// Refresh tokens are single use
		delete(b.refreshTokens, refreshToken)
	}
	var acc *account
	for _, a := range b.accounts {
		if a.ID == grant.AccountID {
			acc = a
			break
		}
	}
	b.mu.Unlock()

	if !ok || acc == nil {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidCredentials, "[Backend Refresh] invalid refresh token")
	}
	return b.issueSessionWithID(acc, grant.SessionID)
}

func (b *Backend) Logout(_ context.Context, accessToken string) error {
	claims, err := b.parseToken(accessToken)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for token, grant := range b.refreshTokens {
		if grant.SessionID == claims.ID {
			delete(b.refreshTokens, token)
		}
	}
	return nil
}

func (b *Backend) Recover(_ context.Context, email, redirectTo string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperrors.NewValidationError("email", "Please enter your email address")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	// Unknown addresses succeed silently so accounts cannot be enumerated
	if _, ok := b.accounts[email]; ok {
		b.outbox = append(b.outbox, PasswordReset{Email: email, RedirectTo: redirectTo, SentAt: b.now()})
	}
	return nil
}

func (b *Backend) issueSession(acc *account) (*backend.Session, error) {
	return b.issueSessionWithID(acc, newID())
}

func (b *Backend) issueSessionWithID(acc *account, sessionID string) (*backend.Session, error) {
	now := b.now()
	expiresAt := now.Add(b.tokenTTL)
	claims := tokenClaims{
		Email: acc.Email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signingKey)
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "[Backend issueSession] sign token: %v", err)
	}

	refreshToken := newID()
	b.mu.Lock()
	b.refreshTokens[refreshToken] = refreshGrant{AccountID: acc.ID, SessionID: sessionID}
	b.mu.Unlock()

	return &backend.Session{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
		ExpiresAt:    expiresAt.Truncate(time.Second),
		Identity:     backend.Identity{ID: acc.ID, Email: acc.Email},
	}, nil
}

// parseToken validates an access token issued by this backend
func (b *Backend) parseToken(accessToken string) (*tokenClaims, error) {
	if accessToken == "" {
		return nil, apperrors.ErrSessionMissing
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(*jwt.Token) (any, error) {
		return b.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.nowTime))
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrDenied, "[Backend parseToken] %v", err)
	}
	return claims, nil
}
