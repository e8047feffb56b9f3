package sessions_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/sessions"
	fakesessionrepo "github.com/jrsteele09/movie-ratings/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	mu         sync.Mutex
	refreshErr error
	logoutErr  error
	refreshes  int
	logouts    int
}

func (f *fakeAuthenticator) session(id string, ttl time.Duration) *backend.Session {
	return &backend.Session{
		AccessToken:  "access-" + id,
		RefreshToken: "refresh-" + id,
		TokenType:    "bearer",
		ExpiresAt:    time.Now().Add(ttl),
		Identity:     backend.Identity{ID: id, Email: id + "@example.com"},
	}
}

func (f *fakeAuthenticator) PasswordGrant(_ context.Context, email, password string) (*backend.Session, error) {
	if password != "secret" {
		return nil, apperrors.ErrInvalidCredentials
	}
	return f.session(email, time.Hour), nil
}

func (f *fakeAuthenticator) SignUp(_ context.Context, email, _ string) (*backend.Session, error) {
	if email == "pending" {
		return nil, nil
	}
	return f.session(email, time.Hour), nil
}

func (f *fakeAuthenticator) Refresh(_ context.Context, refreshToken string) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	s := f.session("alice", time.Hour)
	s.AccessToken = "access-refreshed"
	return s, nil
}

func (f *fakeAuthenticator) Logout(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return f.logoutErr
}

func (f *fakeAuthenticator) Recover(context.Context, string, string) error {
	return nil
}

type recordedEvent struct {
	event   backend.AuthEvent
	session *backend.Session
}

func record(store *sessions.Store) *[]recordedEvent {
	events := &[]recordedEvent{}
	store.OnSessionChange(func(event backend.AuthEvent, session *backend.Session) {
		*events = append(*events, recordedEvent{event, session})
	})
	return events
}

func TestStoreSignInPersistsAndNotifies(t *testing.T) {
	repo := fakesessionrepo.NewFakeSessionRepo()
	store := sessions.NewStore(&fakeAuthenticator{}, repo, "browser")
	events := record(store)

	session, err := store.SignInWithPassword(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, "alice", session.Identity.ID)

	require.Len(t, *events, 1)
	require.Equal(t, backend.EventSignedIn, (*events)[0].event)
	require.Equal(t, "alice", (*events)[0].session.Identity.ID)

	persisted, err := repo.Load(context.Background(), "browser")
	require.NoError(t, err)
	require.Equal(t, session.AccessToken, persisted.AccessToken)

	got, err := store.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.AccessToken, got.AccessToken)
}

func TestStoreInvalidCredentials(t *testing.T) {
	store := sessions.NewStore(&fakeAuthenticator{}, fakesessionrepo.NewFakeSessionRepo(), "browser")
	events := record(store)

	_, err := store.SignInWithPassword(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.Empty(t, *events)

	got, err := store.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreSignUpPendingConfirmation(t *testing.T) {
	store := sessions.NewStore(&fakeAuthenticator{}, fakesessionrepo.NewFakeSessionRepo(), "browser")
	events := record(store)

	session, err := store.SignUp(context.Background(), "pending", "secret")
	require.NoError(t, err)
	require.Nil(t, session)
	require.Empty(t, *events)
}

func TestStoreRefreshesExpiredSession(t *testing.T) {
	auth := &fakeAuthenticator{}
	repo := fakesessionrepo.NewFakeSessionRepo()
	require.NoError(t, repo.Save(context.Background(), "browser", auth.session("alice", -time.Minute)))

	store := sessions.NewStore(auth, repo, "browser")
	events := record(store)

	got, err := store.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access-refreshed", got.AccessToken)
	require.Equal(t, 1, auth.refreshes)
	require.Len(t, *events, 1)
	require.Equal(t, backend.EventTokenRefreshed, (*events)[0].event)

	// A fresh token is reused
	_, err = store.GetSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, auth.refreshes)
}

func TestStoreRejectedRefreshClearsSession(t *testing.T) {
	auth := &fakeAuthenticator{refreshErr: apperrors.ErrInvalidCredentials}
	repo := fakesessionrepo.NewFakeSessionRepo()
	require.NoError(t, repo.Save(context.Background(), "browser", auth.session("alice", -time.Minute)))

	store := sessions.NewStore(auth, repo, "browser")
	events := record(store)

	got, err := store.GetSession(context.Background())
	require.NoError(t, err)
	require.Nil(t, got)
	require.Len(t, *events, 1)
	require.Equal(t, backend.EventSignedOut, (*events)[0].event)
	require.Nil(t, (*events)[0].session)

	_, err = repo.Load(context.Background(), "browser")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStoreRefreshTransportFailure(t *testing.T) {
	auth := &fakeAuthenticator{refreshErr: apperrors.ErrTransport}
	repo := fakesessionrepo.NewFakeSessionRepo()
	require.NoError(t, repo.Save(context.Background(), "browser", auth.session("alice", -time.Minute)))

	store := sessions.NewStore(auth, repo, "browser")
	_, err := store.GetSession(context.Background())
	require.ErrorIs(t, err, apperrors.ErrTransport)

	// The session is kept for a later retry
	_, err = repo.Load(context.Background(), "browser")
	require.NoError(t, err)
}

func TestStoreSignOut(t *testing.T) {
	t.Run("clears and notifies", func(t *testing.T) {
		auth := &fakeAuthenticator{}
		repo := fakesessionrepo.NewFakeSessionRepo()
		store := sessions.NewStore(auth, repo, "browser")
		_, err := store.SignInWithPassword(context.Background(), "alice", "secret")
		require.NoError(t, err)
		events := record(store)

		require.NoError(t, store.SignOut(context.Background()))
		require.Equal(t, 1, auth.logouts)
		require.Len(t, *events, 1)
		require.Equal(t, backend.EventSignedOut, (*events)[0].event)
		require.Zero(t, repo.Len())
	})

	t.Run("transport failure keeps session", func(t *testing.T) {
		auth := &fakeAuthenticator{logoutErr: apperrors.ErrTransport}
		store := sessions.NewStore(auth, fakesessionrepo.NewFakeSessionRepo(), "browser")
		_, err := store.SignInWithPassword(context.Background(), "alice", "secret")
		require.NoError(t, err)

		require.ErrorIs(t, store.SignOut(context.Background()), apperrors.ErrTransport)
		got, err := store.GetSession(context.Background())
		require.NoError(t, err)
		require.NotNil(t, got)
	})

	t.Run("revoked token still signs out locally", func(t *testing.T) {
		auth := &fakeAuthenticator{logoutErr: apperrors.ErrDenied}
		store := sessions.NewStore(auth, fakesessionrepo.NewFakeSessionRepo(), "browser")
		_, err := store.SignInWithPassword(context.Background(), "alice", "secret")
		require.NoError(t, err)

		require.NoError(t, store.SignOut(context.Background()))
		got, err := store.GetSession(context.Background())
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestStoreUnsubscribe(t *testing.T) {
	store := sessions.NewStore(&fakeAuthenticator{}, fakesessionrepo.NewFakeSessionRepo(), "browser")
	calls := 0
	unsubscribe := store.OnSessionChange(func(backend.AuthEvent, *backend.Session) { calls++ })
	require.Equal(t, 1, store.Listeners())

	unsubscribe()
	unsubscribe()
	require.Zero(t, store.Listeners())

	_, err := store.SignInWithPassword(context.Background(), "alice", "secret")
	require.NoError(t, err)
	require.Zero(t, calls)
}
