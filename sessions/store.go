package sessions

import (
	"context"
	"sync"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Authenticator is the raw credential API of the hosted auth service.
type Authenticator interface {
	PasswordGrant(ctx context.Context, email, password string) (*backend.Session, error)
	SignUp(ctx context.Context, email, password string) (*backend.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*backend.Session, error)
	Logout(ctx context.Context, accessToken string) error
	Recover(ctx context.Context, email, redirectTo string) error
}

var _ backend.SessionStore = (*Store)(nil)

// Store is the session store of one browser session: it keeps the current
// backend session, persists it under key, refreshes it when it expires and
// notifies listeners of every change.
type Store struct {
	auth      Authenticator
	repo      Repo
	key       string
	listeners backend.Listeners
	logger    zerolog.Logger

	mu      sync.Mutex
	loaded  bool
	current *backend.Session
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithStoreLogger sets the store logger
func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates the session store persisted under key
func NewStore(auth Authenticator, repo Repo, key string, options ...StoreOption) *Store {
	s := &Store{
		auth:   auth,
		repo:   repo,
		key:    key,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With().Str("session_key", key).Logger()
	return s
}

func (s *Store) OnSessionChange(listener backend.SessionListener) func() {
	return s.listeners.Add(listener)
}

// Listeners returns the number of registered listeners
func (s *Store) Listeners() int {
	return s.listeners.Len()
}

func (s *Store) GetSession(ctx context.Context) (*backend.Session, error) {
	s.mu.Lock()
	if err := s.loadLocked(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	current := s.current
	s.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	refreshed, event, err := s.ensureFresh(ctx, current)
	if err != nil {
		return nil, err
	}
	if event != "" {
		s.listeners.Emit(event, refreshed)
	}
	return copySession(refreshed), nil
}

func (s *Store) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	session, err := s.repo.Load(ctx, s.key)
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound):
		session = nil
	case err != nil:
		return apperrors.Wrapf(err, "[Store GetSession] load persisted session")
	}
	s.current = session
	s.loaded = true
	return nil
}

// ensureFresh refreshes current when its access token is no longer valid.
// A rejected refresh token clears the session.
func (s *Store) ensureFresh(ctx context.Context, current *backend.Session) (*backend.Session, backend.AuthEvent, error) {
	src := &refreshSource{ctx: ctx, auth: s.auth, refreshToken: current.RefreshToken}
	token := toOAuth2Token(current)
	reuse := oauth2.ReuseTokenSource(token, src)

	if _, err := reuse.Token(); err != nil {
		if apperrors.Is(err, apperrors.ErrTransport) {
			return nil, "", apperrors.Wrapf(err, "[Store GetSession] refresh session")
		}
		s.logger.Info().Err(err).Msg("refresh rejected, clearing session")
		s.clear(ctx, current)
		return nil, backend.EventSignedOut, nil
	}
	if src.refreshed == nil {
		return current, "", nil
	}

	s.mu.Lock()
	if s.current == nil || s.current.AccessToken != current.AccessToken {
		// Superseded by a sign in or sign out while refreshing
		latest := copySession(s.current)
		s.mu.Unlock()
		return latest, "", nil
	}
	s.current = src.refreshed
	s.mu.Unlock()
	s.persist(ctx, src.refreshed)
	return src.refreshed, backend.EventTokenRefreshed, nil
}

func (s *Store) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	session, err := s.auth.PasswordGrant(ctx, email, password)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Store SignInWithPassword]")
	}
	s.set(ctx, session)
	s.listeners.Emit(backend.EventSignedIn, session)
	return copySession(session), nil
}

func (s *Store) SignUp(ctx context.Context, email, password string) (*backend.Session, error) {
	session, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return nil, apperrors.Wrapf(err, "[Store SignUp]")
	}
	if session == nil {
		// Email confirmation pending
		return nil, nil
	}
	s.set(ctx, session)
	s.listeners.Emit(backend.EventSignedIn, session)
	return copySession(session), nil
}

func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if err := s.loadLocked(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	current := s.current
	s.mu.Unlock()

	if current != nil {
		err := s.auth.Logout(ctx, current.AccessToken)
		if err != nil && !apperrors.Is(err, apperrors.ErrDenied) && !apperrors.Is(err, apperrors.ErrSessionMissing) {
			return apperrors.Wrapf(err, "[Store SignOut]")
		}
	}
	s.clear(ctx, current)
	s.listeners.Emit(backend.EventSignedOut, nil)
	return nil
}

func (s *Store) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	if err := s.auth.Recover(ctx, email, redirectTo); err != nil {
		return apperrors.Wrapf(err, "[Store SendPasswordReset]")
	}
	return nil
}

func (s *Store) set(ctx context.Context, session *backend.Session) {
	s.mu.Lock()
	s.current = copySession(session)
	s.loaded = true
	s.mu.Unlock()
	s.persist(ctx, session)
}

// clear drops the session if it is still previous
func (s *Store) clear(ctx context.Context, previous *backend.Session) {
	s.mu.Lock()
	if previous != nil && s.current != nil && s.current.AccessToken != previous.AccessToken {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.loaded = true
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, s.key); err != nil {
		s.logger.Warn().Err(err).Msg("failed to delete persisted session")
	}
}

func (s *Store) persist(ctx context.Context, session *backend.Session) {
	if err := s.repo.Save(ctx, s.key, session); err != nil {
		// The in-memory session stays valid for this process
		s.logger.Warn().Err(err).Msg("failed to persist session")
	}
}

// refreshSource adapts Authenticator.Refresh to an oauth2.TokenSource so
// oauth2.ReuseTokenSource decides when a refresh is due.
type refreshSource struct {
	ctx          context.Context
	auth         Authenticator
	refreshToken string
	refreshed    *backend.Session
}

func (r *refreshSource) Token() (*oauth2.Token, error) {
	if r.refreshToken == "" {
		return nil, apperrors.ErrSessionMissing
	}
	session, err := r.auth.Refresh(r.ctx, r.refreshToken)
	if err != nil {
		return nil, err
	}
	r.refreshed = session
	return toOAuth2Token(session), nil
}

func toOAuth2Token(session *backend.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  session.AccessToken,
		TokenType:    session.TokenType,
		RefreshToken: session.RefreshToken,
		Expiry:       session.ExpiresAt,
	}
}

func copySession(session *backend.Session) *backend.Session {
	if session == nil {
		return nil
	}
	copied := *session
	return &copied
}
