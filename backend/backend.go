// Package backend describes the capability surface of the hosted backend the
// client talks to: a session store (managed auth) and a data client (managed
// database with row level security and aggregation views).
package backend

import (
	"context"
	"time"
)

// Identity is the authenticated principal as known to the session store.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Session pairs an identity with the credentials issued for it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"user"`
}

// Expired reports whether the access token is past its expiry at now
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthEvent names the reason a session change notification was emitted.
type AuthEvent string

const (
	EventInitialSession   AuthEvent = "INITIAL_SESSION"
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEvent = "USER_UPDATED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// SessionListener receives session changes in the order they occurred.
// session is nil when the session was cleared.
type SessionListener func(event AuthEvent, session *Session)

// SessionStore issues and validates credentials, persists the session and
// emits change notifications. One SessionStore serves one end user.
type SessionStore interface {
	// GetSession is a one-shot read of the persisted session, nil when signed out
	GetSession(ctx context.Context) (*Session, error)

	// OnSessionChange registers a listener and returns its unsubscribe handle
	OnSessionChange(listener SessionListener) (unsubscribe func())

	// SignInWithPassword authenticates with email and password
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignUp registers a new account. The session is nil when the account
	// must confirm its email address first.
	SignUp(ctx context.Context, email, password string) (*Session, error)

	// SignOut revokes and clears the persisted session
	SignOut(ctx context.Context) error

	// SendPasswordReset emails a reset link that lands on redirectTo
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
}

// Tables and views exposed by the hosted database
const (
	TableMovies  = "movies"
	TableRatings = "ratings"
	TableUsers   = "users"

	ViewMovieStats     = "movie_stats"
	ViewRatingWithUser = "rating_with_user"
	ViewUserProfile    = "user_profile"
)

// DataClient is the row level access to the hosted database. Rows are
// decoded from their JSON representation into dest.
type DataClient interface {
	// Select decodes every matching row into dest (a pointer to a slice)
	Select(ctx context.Context, q Query, dest any) error

	// SelectOne decodes exactly one row into dest, ErrNotFound when none match
	SelectOne(ctx context.Context, q Query, dest any) error

	// Insert adds a row; the stored representation is decoded into dest when not nil
	Insert(ctx context.Context, table string, payload any, dest any) error

	// Update patches every row matching filters
	Update(ctx context.Context, table string, filters []Filter, payload any) error

	// Upsert inserts or, on conflict with onConflict columns, updates a row
	Upsert(ctx context.Context, table string, payload any, onConflict string) error

	// Delete removes every row matching filters
	Delete(ctx context.Context, table string, filters []Filter) error
}

type sessionContextKey struct{}

// ContextWithSession attaches the caller's session so data requests run with
// its access token and are subject to its row level policies.
func ContextWithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext returns the session attached by ContextWithSession
func SessionFromContext(ctx context.Context) *Session {
	session, _ := ctx.Value(sessionContextKey{}).(*Session)
	return session
}
